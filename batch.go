package subjectcrop

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

// NamedCrop is one artifact of a batch run.
type NamedCrop struct {
	// Name is deterministic and collision-free:
	// {base}_{rank}_{label}_{confidence}.{ext}
	Name      string
	Bytes     []byte
	Box       image.Rectangle
	Detection Detection
}

// BatchCrop detects once and crops every candidate independently, one
// artifact per detection in confidence order. Only neural methods may
// return multiple candidates, so batch mode rejects the classical ones.
// Cancellation aborts before any artifact is produced for the caller.
func (e *Engine) BatchCrop(ctx context.Context, imageData []byte, base string, req Request) ([]NamedCrop, error) {
	if !req.Method.Neural() {
		return nil, errf(KindInvalidConfiguration, "batch crop requires a multi-candidate method, %q returns a single candidate", req.Method)
	}
	ratio, err := req.validate()
	if err != nil {
		return nil, err
	}
	if base == "" {
		base = "crop"
	}

	f, err := NewFrame(imageData)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dets, err := e.detect(ctx, f, req)
	if err != nil {
		return nil, err
	}
	if req.TargetLabel != "" {
		matched := dets[:0:0]
		for _, d := range dets {
			if strings.EqualFold(d.Label, req.TargetLabel) {
				matched = append(matched, d)
			}
		}
		if len(matched) == 0 && len(dets) > 0 {
			return nil, errf(KindLabelNotFound, "%d detections, none labeled %q", len(dets), req.TargetLabel)
		}
		dets = matched
	}
	if len(dets) == 0 {
		return nil, errf(KindNoDetection, "no candidates detected")
	}

	ext := e.opts.CropFormat
	if ext == "" || ext == "jpg" {
		ext = "jpeg"
	}
	crops := make([]NamedCrop, 0, len(dets))
	for rank, det := range dets {
		if err := ctx.Err(); err != nil {
			return nil, wrapErr(KindInternal, err, "batch crop canceled")
		}
		box, err := padBox(det.Box, req.Padding, f.Bounds())
		if err != nil {
			return nil, err
		}
		switch req.Aspect {
		case AspectOriginal:
			box, _ = adjustAspect(box, f.AspectRatio(), f.Bounds())
		case AspectCustom:
			box, _ = adjustAspect(box, ratio, f.Bounds())
		}
		box = clampBox(box, f.Bounds())
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}
		m, err := f.crop(box)
		if err != nil {
			return nil, err
		}
		data, err := encodeMat(m, e.opts.CropFormat, e.opts.CropQuality)
		m.Close()
		if err != nil {
			return nil, err
		}
		crops = append(crops, NamedCrop{
			Name:      fmt.Sprintf("%s_%d_%s_%.2f.%s", base, rank, sanitizeLabel(det.Label), det.Confidence, ext),
			Bytes:     data,
			Box:       box,
			Detection: det,
		})
	}
	if len(crops) == 0 {
		return nil, errf(KindNoDetection, "every candidate collapsed after geometry")
	}
	e.log.Info("batch crop complete", "method", req.Method, "crops", len(crops))
	return crops, nil
}

// WriteCrops persists a completed batch under dir and returns the file
// paths. It is called only after BatchCrop succeeded as a whole, so a
// canceled run never leaves partial output behind.
func WriteCrops(dir string, crops []NamedCrop) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(KindInternal, err, "create output directory")
	}
	paths := make([]string, 0, len(crops))
	for _, c := range crops {
		p := filepath.Join(dir, c.Name)
		if err := os.WriteFile(p, c.Bytes, 0o644); err != nil {
			return nil, wrapErr(KindInternal, err, "write %s", c.Name)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// sanitizeLabel makes a class label safe for file names.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "object"
	}
	return s
}
