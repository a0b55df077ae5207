package subjectcrop

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// Default weight file names under ModelConfig.ModelDir.
const (
	yoloModelFile   = "yolo12x.onnx"
	detrModelFile   = "detr-resnet-50.onnx"
	rtdetrModelFile = "rtdetr_r101vd.onnx"
	rfdetrModelFile = "rf-detr-large.onnx"
)

// Per-method defaults, matching the thresholds the models were tuned with.
const (
	defaultYOLOConfidence   = 0.5
	defaultDETRConfidence   = 0.7
	defaultRTDETRConfidence = 0.5
	yoloIoUThreshold        = 0.45
	yoloInputSize           = 640
	detrInputSize           = 800
	rtdetrInputSize         = 640
	rfdetrInputSize         = 560
)

// ImageNet channel statistics for the DETR-family preprocessing.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

var ortEnv struct {
	once sync.Once
	err  error
}

// initRuntime points onnxruntime at the shared library and initializes
// the environment exactly once for the whole process.
func initRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxModel wraps one loaded inference session. Sessions are safe for
// concurrent Run calls over fixed weights.
type onnxModel struct {
	session *ort.DynamicAdvancedSession
	opts    *ort.SessionOptions
	numOut  int
}

func loadONNXModel(path string, threads int) (*onnxModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if threads > 0 {
		_ = opts.SetIntraOpNumThreads(threads)
		_ = opts.SetInterOpNumThreads(threads)
	}
	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}
	session, err := ort.NewDynamicAdvancedSession(path, inNames, outNames, opts)
	if err != nil {
		opts.Destroy()
		return nil, err
	}
	return &onnxModel{session: session, opts: opts, numOut: len(outputs)}, nil
}

type tensorData struct {
	shape []int64
	data  []float32
}

func (m *onnxModel) run(input []float32, shape ort.Shape) ([]tensorData, error) {
	in, err := ort.NewTensor(shape, input)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	outs := make([]ort.Value, m.numOut)
	if err := m.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, err
	}

	results := make([]tensorData, 0, len(outs))
	for _, out := range outs {
		t, ok := out.(*ort.Tensor[float32])
		if !ok {
			out.Destroy()
			continue
		}
		dims := t.GetShape()
		td := tensorData{
			shape: append([]int64(nil), dims...),
			data:  append([]float32(nil), t.GetData()...),
		}
		t.Destroy()
		results = append(results, td)
	}
	return results, nil
}

func (m *onnxModel) close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.opts != nil {
		m.opts.Destroy()
	}
}

// neuralDetector builds the adapter for a loaded model.
func neuralDetector(method Method, model *onnxModel) Detector {
	switch method {
	case MethodYOLO:
		return &yoloDetector{model: model}
	case MethodDETR:
		return &transformerDetector{
			model: model, method: MethodDETR, inputSize: detrInputSize,
			imagenet: true, softmax: true, label: cocoLabel91,
			defaultConf: defaultDETRConfidence,
		}
	case MethodRTDETR:
		return &transformerDetector{
			model: model, method: MethodRTDETR, inputSize: rtdetrInputSize,
			label: cocoLabel80, defaultConf: defaultRTDETRConfidence,
		}
	case MethodRFDETR:
		return &transformerDetector{
			model: model, method: MethodRFDETR, inputSize: rfdetrInputSize,
			imagenet: true, label: cocoLabel91,
			defaultConf: defaultYOLOConfidence,
		}
	default:
		return nil
	}
}

// yoloDetector decodes single-pass detector output of shape
// [1, 4+classes, anchors] with boxes as cx,cy,w,h in letterbox pixels.
type yoloDetector struct {
	model *onnxModel
}

func (d *yoloDetector) Detect(ctx context.Context, f *Frame, p Params) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	conf := p.Confidence
	if conf <= 0 {
		conf = defaultYOLOConfidence
	}

	data, scale := letterboxTensor(img, yoloInputSize)
	outs, err := d.model.run(data, ort.NewShape(1, 3, yoloInputSize, yoloInputSize))
	if err != nil {
		return nil, wrapErr(KindInternal, err, "yolo inference failed")
	}
	if len(outs) == 0 || len(outs[0].shape) != 3 {
		return nil, errf(KindInternal, "unexpected yolo output layout")
	}

	out := outs[0]
	classes := int(out.shape[1]) - 4
	anchors := int(out.shape[2])
	if classes <= 0 || anchors <= 0 {
		return nil, errf(KindInternal, "unexpected yolo output shape %v", out.shape)
	}

	var dets []Detection
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := 0, float32(0)
		for c := 0; c < classes; c++ {
			if s := out.data[(4+c)*anchors+i]; s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if float64(bestScore) < conf {
			continue
		}
		cx := float64(out.data[0*anchors+i])
		cy := float64(out.data[1*anchors+i])
		w := float64(out.data[2*anchors+i])
		h := float64(out.data[3*anchors+i])
		box := image.Rect(
			int(math.Round((cx-w/2)/scale)),
			int(math.Round((cy-h/2)/scale)),
			int(math.Round((cx+w/2)/scale)),
			int(math.Round((cy+h/2)/scale)),
		)
		box = clampBox(box, f.Bounds())
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}
		dets = append(dets, Detection{
			Box:        box,
			Label:      cocoLabel80(bestClass),
			Confidence: float64(bestScore),
			Method:     MethodYOLO,
		})
	}
	return nonMaxSuppression(dets, yoloIoUThreshold), nil
}

// transformerDetector covers the DETR family. The variants differ only in
// input size, normalization, score activation and label vocabulary; all
// emit per-query class logits plus normalized cx,cy,w,h boxes.
type transformerDetector struct {
	model       *onnxModel
	method      Method
	inputSize   int
	imagenet    bool // ImageNet mean/std vs plain [0,1] scaling
	softmax     bool // trailing no-object class under softmax vs sigmoid
	label       func(int) string
	defaultConf float64
}

func (d *transformerDetector) Detect(ctx context.Context, f *Frame, p Params) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	conf := p.Confidence
	if conf <= 0 {
		conf = d.defaultConf
	}

	data := resizeTensor(img, d.inputSize, d.imagenet)
	outs, err := d.model.run(data, ort.NewShape(1, 3, int64(d.inputSize), int64(d.inputSize)))
	if err != nil {
		return nil, wrapErr(KindInternal, err, "%s inference failed", d.method)
	}

	var logits, boxes *tensorData
	for i := range outs {
		t := &outs[i]
		if len(t.shape) != 3 {
			continue
		}
		if t.shape[2] == 4 {
			boxes = t
		} else {
			logits = t
		}
	}
	if logits == nil || boxes == nil || logits.shape[1] != boxes.shape[1] {
		return nil, errf(KindInternal, "unexpected %s output layout", d.method)
	}

	queries := int(logits.shape[1])
	classes := int(logits.shape[2])
	var dets []Detection
	for q := 0; q < queries; q++ {
		row := logits.data[q*classes : (q+1)*classes]
		var bestClass int
		var bestScore float64
		if d.softmax {
			// the trailing class is "no object" and never wins a detection
			probs := softmax(row)
			for c := 0; c < classes-1; c++ {
				if probs[c] > bestScore {
					bestClass, bestScore = c, probs[c]
				}
			}
		} else {
			for c := 0; c < classes; c++ {
				if s := sigmoid(float64(row[c])); s > bestScore {
					bestClass, bestScore = c, s
				}
			}
		}
		if bestScore < conf {
			continue
		}
		cx := float64(boxes.data[q*4+0]) * float64(f.Width)
		cy := float64(boxes.data[q*4+1]) * float64(f.Height)
		w := float64(boxes.data[q*4+2]) * float64(f.Width)
		h := float64(boxes.data[q*4+3]) * float64(f.Height)
		box := clampBox(image.Rect(
			int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
			int(math.Round(cx+w/2)), int(math.Round(cy+h/2)),
		), f.Bounds())
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}
		dets = append(dets, Detection{
			Box:        box,
			Label:      d.label(bestClass),
			Confidence: bestScore,
			Method:     d.method,
		})
	}
	sortDetections(dets)
	return dets, nil
}

// letterboxTensor scales img into a size x size square anchored top-left,
// pads the remainder with neutral gray, and returns the CHW tensor in
// [0,1] plus the scale that maps letterbox pixels back to the original.
func letterboxTensor(img image.Image, size int) ([]float32, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	resized := resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)

	plane := size * size
	data := make([]float32, 3*plane)
	for i := range data {
		data[i] = 114.0 / 255.0
	}
	rb := resized.Bounds()
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := y*size + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return data, scale
}

// resizeTensor stretches img to a size x size square and returns the CHW
// tensor, optionally normalized with ImageNet statistics.
func resizeTensor(img image.Image, size int, imagenet bool) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	plane := size * size
	data := make([]float32, 3*plane)
	rb := resized.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := y*size + x
			rf := float32(r>>8) / 255.0
			gf := float32(g>>8) / 255.0
			bf := float32(b>>8) / 255.0
			if imagenet {
				rf = (rf - imagenetMean[0]) / imagenetStd[0]
				gf = (gf - imagenetMean[1]) / imagenetStd[1]
				bf = (bf - imagenetMean[2]) / imagenetStd[2]
			}
			data[idx] = rf
			data[plane+idx] = gf
			data[2*plane+idx] = bf
		}
	}
	return data
}

func softmax(row []float32) []float64 {
	out := make([]float64, len(row))
	maxv := float64(row[0])
	for _, v := range row[1:] {
		if float64(v) > maxv {
			maxv = float64(v)
		}
	}
	var sum float64
	for i, v := range row {
		out[i] = math.Exp(float64(v) - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// nonMaxSuppression drops candidates overlapping a stronger candidate of
// the same class beyond the IoU threshold.
func nonMaxSuppression(dets []Detection, iou float64) []Detection {
	sortDetections(dets)
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if k.Label == d.Label && boxIoU(k.Box, d.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func boxIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}
