package subjectcrop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
)

// AspectMode selects how the crop's aspect ratio is corrected.
type AspectMode string

const (
	// AspectNone leaves the padded box untouched.
	AspectNone AspectMode = "none"
	// AspectOriginal reshapes the box to the input image's own ratio.
	AspectOriginal AspectMode = "original"
	// AspectCustom reshapes the box to Request.AspectRatio.
	AspectCustom AspectMode = "custom"
)

// Stage names one executed pipeline transition.
type Stage string

const (
	StageLoaded          Stage = "loaded"
	StageDetected        Stage = "detected"
	StageSelected        Stage = "selected"
	StagePadded          Stage = "padded"
	StageAspectCorrected Stage = "aspect-corrected"
	StageCropped         Stage = "cropped"
	StageVisualized      Stage = "visualized"
)

// Request configures one crop invocation.
type Request struct {
	Method      Method
	TargetLabel string
	// Confidence is the minimum score for neural candidates; 0 applies
	// the method's default.
	Confidence float64
	// Padding grows the selected box by this percent of its own
	// dimensions on each side, 0-100.
	Padding float64
	Aspect  AspectMode
	// AspectRatio is a "16:9" or "1.78" style string, required when
	// Aspect is AspectCustom.
	AspectRatio string
	// Threshold is the binary threshold for the contour method; 0 uses
	// the default of 240.
	Threshold int
	// Detections plus SelectedIndex replay a previous detection run so
	// re-selecting does not repeat inference.
	Detections    []Detection
	SelectedIndex *int
	Visualize     bool
}

// validate checks everything that can fail before touching pixels and
// resolves the target aspect ratio for custom mode.
func (r *Request) validate() (float64, error) {
	if r.Aspect == "" {
		r.Aspect = AspectNone
	}
	if !r.Method.Valid() && r.Detections == nil {
		return 0, errf(KindInvalidConfiguration, "unknown detection method %q", r.Method)
	}
	if r.Padding < 0 || r.Padding > 100 {
		return 0, errf(KindInvalidConfiguration, "padding must be between 0 and 100 percent, got %g", r.Padding)
	}
	switch r.Aspect {
	case AspectNone, AspectOriginal:
		return 0, nil
	case AspectCustom:
		return ParseAspectRatio(r.AspectRatio)
	default:
		return 0, errf(KindInvalidConfiguration, "unknown aspect mode %q", r.Aspect)
	}
}

// Result is the complete outcome of one crop invocation.
type Result struct {
	// Box is the final clamped crop rectangle.
	Box image.Rectangle
	// Crop holds the encoded cropped raster.
	Crop []byte
	// Visualization is the annotated overlay, present when requested.
	Visualization []byte
	// Detections is the full candidate list behind the crop so a caller
	// can re-select without re-running inference.
	Detections    []Detection
	SelectedIndex int
	// RatioDeviation is set when clamping at an image edge kept the crop
	// from reaching the requested aspect ratio exactly.
	RatioDeviation bool
	// Stages records the executed pipeline transitions in order.
	Stages []Stage
	// Summary is a human-readable processing report.
	Summary string
}

// Options tune the engine. Zero values fall back to DefaultOptions.
type Options struct {
	// InferenceTimeout bounds a single neural detection pass.
	InferenceTimeout time.Duration
	// CropFormat is "jpeg", "png" or "webp".
	CropFormat string
	// CropQuality applies to lossy formats, 1-100.
	CropQuality int
	Logger      *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		InferenceTimeout: 30 * time.Second,
		CropFormat:       "jpeg",
		CropQuality:      95,
	}
}

// Engine runs the crop pipeline:
//
//	Loaded -> Detected -> Selected -> Padded -> AspectCorrected -> Cropped -> Visualized
//
// Each invocation is independent; the only shared state is the injected
// DetectorSource.
type Engine struct {
	src  DetectorSource
	opts Options
	log  *slog.Logger
}

func NewEngine(src DetectorSource, opts *Options) *Engine {
	o := DefaultOptions()
	if opts != nil {
		if opts.InferenceTimeout > 0 {
			o.InferenceTimeout = opts.InferenceTimeout
		}
		if opts.CropFormat != "" {
			o.CropFormat = opts.CropFormat
		}
		if opts.CropQuality > 0 {
			o.CropQuality = opts.CropQuality
		}
		o.Logger = opts.Logger
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{src: src, opts: o, log: logger}
}

// Crop runs the full pipeline for a single selected candidate.
func (e *Engine) Crop(ctx context.Context, imageData []byte, req Request) (*Result, error) {
	ratio, err := req.validate()
	if err != nil {
		return nil, err
	}

	f, err := NewFrame(imageData)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &Result{Stages: []Stage{StageLoaded}}
	sum := newSummary(f, req.Method)

	dets := req.Detections
	if dets == nil {
		dets, err = e.detect(ctx, f, req)
		if err != nil {
			return nil, err
		}
		res.Stages = append(res.Stages, StageDetected)
	} else {
		// re-selection fast path: replay the stored candidate list
		// instead of repeating inference
		sum.line("using %d previously detected candidates", len(dets))
	}
	res.Detections = dets
	sum.candidates(dets)

	sel, idx, err := selectDetection(dets, req.TargetLabel, req.SelectedIndex)
	if err != nil {
		return nil, err
	}
	res.Stages = append(res.Stages, StageSelected)
	res.SelectedIndex = idx
	sum.selected(sel, req.TargetLabel)

	box, err := padBox(sel.Box, req.Padding, f.Bounds())
	if err != nil {
		return nil, err
	}
	res.Stages = append(res.Stages, StagePadded)
	if req.Padding > 0 {
		sum.line("bounds with %g%% padding: %v", req.Padding, box)
	}

	switch req.Aspect {
	case AspectOriginal:
		box, res.RatioDeviation = adjustAspect(box, f.AspectRatio(), f.Bounds())
		sum.line("bounds with original aspect ratio: %v", box)
	case AspectCustom:
		box, res.RatioDeviation = adjustAspect(box, ratio, f.Bounds())
		sum.line("bounds with custom aspect ratio %s (%.2f:1): %v", req.AspectRatio, ratio, box)
	}
	// AspectNone still counts as an executed transition
	res.Stages = append(res.Stages, StageAspectCorrected)
	if res.RatioDeviation {
		sum.line("note: crop touches the image edge, requested ratio is best effort")
	}

	box = clampBox(box, f.Bounds())
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return nil, errf(KindNoDetection, "crop region collapsed to %v", box)
	}
	res.Box = box

	cropped, err := f.crop(box)
	if err != nil {
		return nil, err
	}
	res.Crop, err = encodeMat(cropped, e.opts.CropFormat, e.opts.CropQuality)
	cropped.Close()
	if err != nil {
		return nil, err
	}
	res.Stages = append(res.Stages, StageCropped)
	sum.cropped(box)

	if req.Visualize {
		res.Visualization, err = renderOverlay(f, dets, idx, box)
		if err != nil {
			return nil, err
		}
		res.Stages = append(res.Stages, StageVisualized)
	}

	res.Summary = sum.String()
	e.log.Info("crop complete", "method", req.Method, "box", box, "candidates", len(dets))
	return res, nil
}

// detect resolves the detector and runs it, bounding neural inference by
// the configured timeout.
func (e *Engine) detect(ctx context.Context, f *Frame, req Request) ([]Detection, error) {
	det, err := e.src.Detector(ctx, req.Method)
	if err != nil {
		return nil, err
	}
	params := Params{Threshold: req.Threshold, Confidence: req.Confidence}

	if !req.Method.Neural() {
		dets, err := det.Detect(ctx, f, params)
		if err != nil {
			// classical heuristics legitimately find nothing; their
			// misfires are "no detection", not failures
			e.log.Warn("classical detection failed", "method", req.Method, "err", err)
			return nil, nil
		}
		return dets, nil
	}

	dctx, cancel := context.WithTimeout(ctx, e.opts.InferenceTimeout)
	defer cancel()

	type detectOut struct {
		dets []Detection
		err  error
	}
	ch := make(chan detectOut, 1)
	go func() {
		dets, derr := det.Detect(dctx, f, params)
		ch <- detectOut{dets, derr}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, errf(KindInferenceTimeout, "%s inference exceeded %v", req.Method, e.opts.InferenceTimeout)
			}
			var se *Error
			if errors.As(out.err, &se) {
				return nil, out.err
			}
			return nil, wrapErr(KindInternal, out.err, "%s detection failed", req.Method)
		}
		return out.dets, nil
	case <-dctx.Done():
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errf(KindInferenceTimeout, "%s inference exceeded %v", req.Method, e.opts.InferenceTimeout)
		}
		return nil, wrapErr(KindInternal, ctx.Err(), "detection canceled")
	}
}

// summary accumulates the human-readable processing report.
type summary struct {
	b strings.Builder
}

func newSummary(f *Frame, m Method) *summary {
	s := &summary{}
	s.line("image: %d x %d pixels, aspect ratio %.2f:1", f.Width, f.Height, f.AspectRatio())
	if m != "" {
		s.line("detecting subject using %s method", m)
	}
	return s
}

func (s *summary) line(format string, args ...any) {
	fmt.Fprintf(&s.b, format+"\n", args...)
}

func (s *summary) candidates(dets []Detection) {
	if len(dets) == 0 {
		return
	}
	s.line("candidates (%d):", len(dets))
	for i, d := range dets {
		s.line("  %d. %s: %.2f at %v", i+1, d.Label, d.Confidence, d.Box)
	}
}

func (s *summary) selected(d Detection, target string) {
	s.line("selected: %s (confidence %.2f)", d.Label, d.Confidence)
	if target != "" {
		s.line("  (searched for: %s)", target)
	}
	s.line("initial bounds: %v", d.Box)
}

func (s *summary) cropped(box image.Rectangle) {
	w, h := box.Dx(), box.Dy()
	s.line("crop: %d x %d pixels (%.2f:1)", w, h, float64(w)/float64(h))
}

func (s *summary) String() string { return s.b.String() }
