package subjectcrop

import (
	"context"
	"image"

	"gocv.io/x/gocv"
)

// Defaults for the classical heuristics, matching the tuned values the
// methods ship with.
const (
	defaultThreshold     = 240
	edgeLowThreshold     = 50
	edgeHighThreshold    = 150
	edgeDilateIterations = 2
	saliencyBlurKernel   = 21
	grabCutIterations    = 5
	grabCutMargin        = 0.10
)

// Classical heuristics emit one synthetic candidate with confidence 1.
// A frame where the heuristic isolates nothing yields an empty slice,
// never an error.

type contourDetector struct{}

func (contourDetector) Detect(_ context.Context, f *Frame, p Params) ([]Detection, error) {
	thresh := p.Threshold
	if thresh <= 0 {
		thresh = defaultThreshold
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, float32(thresh), 255, gocv.ThresholdBinaryInv)

	rect, ok := largestContourRect(bin)
	if !ok {
		return nil, nil
	}
	return []Detection{{Box: rect, Label: "object", Confidence: 1, Method: MethodContour}}, nil
}

type saliencyDetector struct{}

// Detect builds a blur-difference saliency map: pixels that differ
// strongly from their heavily blurred neighborhood are salient. The box
// covers the union of all salient regions, not just the largest one.
func (saliencyDetector) Detect(_ context.Context, f *Frame, _ Params) ([]Detection, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(saliencyBlurKernel, saliencyBlurKernel), 0, 0, gocv.BorderDefault)

	sal := gocv.NewMat()
	defer sal.Close()
	gocv.AbsDiff(gray, blurred, &sal)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(sal, &bin, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil, nil
	}
	union := gocv.BoundingRect(contours.At(0))
	for i := 1; i < contours.Size(); i++ {
		union = union.Union(gocv.BoundingRect(contours.At(i)))
	}
	return []Detection{{Box: union, Label: "salient region", Confidence: 1, Method: MethodSaliency}}, nil
}

type edgeDetector struct{}

func (edgeDetector) Detect(_ context.Context, f *Frame, _ Params) ([]Detection, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, edgeLowThreshold, edgeHighThreshold)

	// close gaps between edge fragments before contouring
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(edges, &dilated, kernel)
	for i := 1; i < edgeDilateIterations; i++ {
		gocv.Dilate(dilated, &dilated, kernel)
	}

	rect, ok := largestContourRect(dilated)
	if !ok {
		return nil, nil
	}
	return []Detection{{Box: rect, Label: "edge object", Confidence: 1, Method: MethodEdge}}, nil
}

type grabCutDetector struct{}

func (grabCutDetector) Detect(_ context.Context, f *Frame, _ Params) ([]Detection, error) {
	marginX := int(float64(f.Width) * grabCutMargin)
	marginY := int(float64(f.Height) * grabCutMargin)
	seed := image.Rect(marginX, marginY, f.Width-marginX, f.Height-marginY)
	if seed.Dx() <= 0 || seed.Dy() <= 0 {
		return nil, nil
	}

	mask := gocv.NewMatWithSize(f.Height, f.Width, gocv.MatTypeCV8U)
	defer mask.Close()
	bgd := gocv.NewMat()
	defer bgd.Close()
	fgd := gocv.NewMat()
	defer fgd.Close()

	gocv.GrabCut(f.mat, &mask, seed, &bgd, &fgd, grabCutIterations, gocv.GCInitWithRect)

	// mask values: 0/2 background, 1/3 foreground; odd values are foreground
	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), f.Height, f.Width, gocv.MatTypeCV8U)
	defer ones.Close()
	fg := gocv.NewMat()
	defer fg.Close()
	gocv.BitwiseAnd(mask, ones, &fg)

	rect, ok := largestContourRect(fg)
	if !ok {
		// segmentation collapsed, keep the seed rectangle
		rect = seed
	}
	return []Detection{{Box: rect, Label: "foreground", Confidence: 1, Method: MethodGrabCut}}, nil
}

func largestContourRect(bin gocv.Mat) (image.Rectangle, bool) {
	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}
	return gocv.BoundingRect(contours.At(best)), true
}
