package subjectcrop

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakeSource serves a canned detector for any method, so engine tests
// exercise the pipeline without model weights.
type fakeSource struct {
	det Detector
	err error
}

func (s *fakeSource) Detector(ctx context.Context, m Method) (Detector, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.det, nil
}

type cannedDetector struct {
	dets []Detection
}

func (d cannedDetector) Detect(ctx context.Context, f *Frame, p Params) ([]Detection, error) {
	return d.dets, nil
}

type slowDetector struct {
	delay time.Duration
}

func (d slowDetector) Detect(ctx context.Context, f *Frame, p Params) ([]Detection, error) {
	select {
	case <-time.After(d.delay):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// testPNG renders a white canvas with a dark square and encodes it, the
// kind of input every pipeline test needs.
func testPNG(t *testing.T, w, h int, square image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if image.Pt(x, y).In(square) {
				img.Set(x, y, color.RGBA{30, 30, 30, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testEngine(dets []Detection) *Engine {
	return NewEngine(&fakeSource{det: cannedDetector{dets: dets}}, nil)
}

func pipelineDetections() []Detection {
	return []Detection{
		{Box: image.Rect(40, 40, 120, 120), Label: "person", Confidence: 0.92, Method: MethodYOLO},
		{Box: image.Rect(130, 20, 190, 90), Label: "dog", Confidence: 0.81, Method: MethodYOLO},
		{Box: image.Rect(10, 140, 70, 190), Label: "cat", Confidence: 0.55, Method: MethodYOLO},
	}
}

func TestCropPipelineStages(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	res, err := e.Crop(context.Background(), data, Request{Method: MethodYOLO, Visualize: true})
	if err != nil {
		t.Fatal(err)
	}

	want := []Stage{StageLoaded, StageDetected, StageSelected, StagePadded, StageAspectCorrected, StageCropped, StageVisualized}
	if !reflect.DeepEqual(res.Stages, want) {
		t.Errorf("stages = %v, want %v", res.Stages, want)
	}
	if res.SelectedIndex != 0 {
		t.Errorf("selected index = %d, want 0", res.SelectedIndex)
	}
	if res.Box != image.Rect(40, 40, 120, 120) {
		t.Errorf("box = %v, want the top candidate unpadded", res.Box)
	}
	if len(res.Crop) == 0 {
		t.Error("crop bytes empty")
	}
	if len(res.Visualization) == 0 {
		t.Error("visualization requested but empty")
	}
	if len(res.Detections) != 3 {
		t.Errorf("detections = %d, want all 3 candidates returned", len(res.Detections))
	}
	if !strings.Contains(res.Summary, "person") {
		t.Errorf("summary does not mention the selected label:\n%s", res.Summary)
	}
}

func TestCropAspectNoneRecordsStage(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	res, err := e.Crop(context.Background(), data, Request{Method: MethodYOLO, Aspect: AspectNone})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range res.Stages {
		if s == StageAspectCorrected {
			found = true
		}
	}
	if !found {
		t.Errorf("aspect none skipped the aspect stage: %v", res.Stages)
	}
	if res.RatioDeviation {
		t.Error("aspect none reported a ratio deviation")
	}
}

func TestCropPaddingAndCustomAspect(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 400, 400, image.Rect(40, 40, 120, 120))

	res, err := e.Crop(context.Background(), data, Request{
		Method:      MethodYOLO,
		Padding:     10,
		Aspect:      AspectCustom,
		AspectRatio: "1:1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.RatioDeviation {
		t.Errorf("square crop in ample bounds deviated: %v", res.Box)
	}
	if res.Box.Dx() != res.Box.Dy() {
		t.Errorf("box = %v, want square", res.Box)
	}
	// 10% of an 80px box pads 8px per side
	if want := image.Rect(32, 32, 128, 128); res.Box != want {
		t.Errorf("box = %v, want %v", res.Box, want)
	}
}

func TestCropLabelNotFound(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	_, err := e.Crop(context.Background(), data, Request{Method: MethodYOLO, TargetLabel: "bicycle"})
	if KindOf(err) != KindLabelNotFound {
		t.Errorf("kind = %v, want label not found", KindOf(err))
	}
}

func TestCropNothingDetected(t *testing.T) {
	e := testEngine(nil)
	data := testPNG(t, 200, 200, image.Rectangle{})

	_, err := e.Crop(context.Background(), data, Request{Method: MethodYOLO})
	if KindOf(err) != KindNoDetection {
		t.Errorf("kind = %v, want no detection", KindOf(err))
	}
}

func TestCropInvalidInputs(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	cases := []struct {
		name string
		req  Request
	}{
		{"bad method", Request{Method: "face"}},
		{"bad padding", Request{Method: MethodYOLO, Padding: 150}},
		{"bad aspect mode", Request{Method: MethodYOLO, Aspect: "letterbox"}},
		{"bad aspect ratio", Request{Method: MethodYOLO, Aspect: AspectCustom, AspectRatio: "abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Crop(context.Background(), data, tc.req)
			if KindOf(err) != KindInvalidConfiguration {
				t.Errorf("kind = %v, want invalid configuration", KindOf(err))
			}
		})
	}
}

func TestCropRejectsGarbageImage(t *testing.T) {
	e := testEngine(pipelineDetections())
	_, err := e.Crop(context.Background(), []byte("not an image"), Request{Method: MethodYOLO})
	if KindOf(err) != KindInvalidImage {
		t.Errorf("kind = %v, want invalid image", KindOf(err))
	}
}

func TestCropReselectionMatchesFreshRun(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	fresh, err := e.Crop(context.Background(), data, Request{Method: MethodYOLO, TargetLabel: "cat", Padding: 5})
	if err != nil {
		t.Fatal(err)
	}
	if fresh.SelectedIndex != 2 {
		t.Fatalf("fresh run selected %d, want the cat at 2", fresh.SelectedIndex)
	}

	idx := 2
	replay, err := e.Crop(context.Background(), data, Request{
		Detections:    fresh.Detections,
		SelectedIndex: &idx,
		Padding:       5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if replay.Box != fresh.Box {
		t.Errorf("replayed box %v differs from fresh %v", replay.Box, fresh.Box)
	}
	if !bytes.Equal(replay.Crop, fresh.Crop) {
		t.Error("replayed crop bytes differ from the fresh run")
	}
	for _, s := range replay.Stages {
		if s == StageDetected {
			t.Error("replay re-ran detection")
		}
	}
}

func TestCropInferenceTimeout(t *testing.T) {
	e := NewEngine(&fakeSource{det: slowDetector{delay: time.Second}}, &Options{InferenceTimeout: 20 * time.Millisecond})
	data := testPNG(t, 100, 100, image.Rect(20, 20, 60, 60))

	start := time.Now()
	_, err := e.Crop(context.Background(), data, Request{Method: MethodDETR})
	if KindOf(err) != KindInferenceTimeout {
		t.Fatalf("kind = %v, want inference timeout", KindOf(err))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout took %v, detector delay leaked into the caller", elapsed)
	}
}

func TestBatchCropOnePerCandidate(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	crops, err := e.BatchCrop(context.Background(), data, "photo", Request{Method: MethodYOLO})
	if err != nil {
		t.Fatal(err)
	}
	if len(crops) != 3 {
		t.Fatalf("got %d crops, want 3", len(crops))
	}
	seen := map[string]bool{}
	for i, c := range crops {
		if seen[c.Name] {
			t.Errorf("duplicate artifact name %q", c.Name)
		}
		seen[c.Name] = true
		if len(c.Bytes) == 0 {
			t.Errorf("crop %d has no bytes", i)
		}
		if !strings.HasPrefix(c.Name, "photo_") {
			t.Errorf("name %q missing the base prefix", c.Name)
		}
	}
	if crops[0].Name != "photo_0_person_0.92.jpeg" {
		t.Errorf("first name = %q, want photo_0_person_0.92.jpeg", crops[0].Name)
	}
}

func TestBatchCropFiltersByLabel(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	crops, err := e.BatchCrop(context.Background(), data, "photo", Request{Method: MethodYOLO, TargetLabel: "dog"})
	if err != nil {
		t.Fatal(err)
	}
	if len(crops) != 1 || crops[0].Detection.Label != "dog" {
		t.Errorf("got %d crops, want exactly the dog", len(crops))
	}

	_, err = e.BatchCrop(context.Background(), data, "photo", Request{Method: MethodYOLO, TargetLabel: "bicycle"})
	if KindOf(err) != KindLabelNotFound {
		t.Errorf("kind = %v, want label not found", KindOf(err))
	}
}

func TestBatchCropRejectsClassicalMethods(t *testing.T) {
	e := testEngine(nil)
	for _, m := range []Method{MethodContour, MethodSaliency, MethodEdge, MethodGrabCut} {
		_, err := e.BatchCrop(context.Background(), nil, "photo", Request{Method: m})
		if KindOf(err) != KindInvalidConfiguration {
			t.Errorf("%s: kind = %v, want invalid configuration", m, KindOf(err))
		}
	}
}

func TestBatchCropCanceledProducesNothing(t *testing.T) {
	e := testEngine(pipelineDetections())
	data := testPNG(t, 200, 200, image.Rect(40, 40, 120, 120))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	crops, err := e.BatchCrop(ctx, data, "photo", Request{Method: MethodYOLO})
	if err == nil {
		t.Fatal("canceled batch succeeded")
	}
	if crops != nil {
		t.Errorf("canceled batch returned %d crops, want none", len(crops))
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"person":        "person",
		"Traffic Light": "traffic-light",
		"  ?!  ":        "object",
		"wine glass":    "wine-glass",
	}
	for in, want := range cases {
		if got := sanitizeLabel(in); got != want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
