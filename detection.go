package subjectcrop

import (
	"context"
	"encoding/json"
	"image"
	"sort"
)

// Method identifies one of the supported detection strategies.
type Method string

const (
	MethodContour  Method = "contour"
	MethodSaliency Method = "saliency"
	MethodEdge     Method = "edge"
	MethodGrabCut  Method = "grabcut"
	MethodYOLO     Method = "yolo"
	MethodDETR     Method = "detr"
	MethodRTDETR   Method = "rt-detr"
	MethodRFDETR   Method = "rf-detr"
)

// Methods lists every supported method in presentation order.
var Methods = []Method{
	MethodContour, MethodSaliency, MethodEdge, MethodGrabCut,
	MethodYOLO, MethodDETR, MethodRTDETR, MethodRFDETR,
}

// ParseMethod converts a user supplied method name.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", errf(KindInvalidConfiguration, "unknown detection method %q", s)
	}
	return m, nil
}

func (m Method) Valid() bool {
	switch m {
	case MethodContour, MethodSaliency, MethodEdge, MethodGrabCut,
		MethodYOLO, MethodDETR, MethodRTDETR, MethodRFDETR:
		return true
	}
	return false
}

// Neural reports whether the method runs a pre-trained neural detector.
// Neural methods can return more than one candidate; the classical ones
// always return at most a single synthetic candidate.
func (m Method) Neural() bool {
	switch m {
	case MethodYOLO, MethodDETR, MethodRTDETR, MethodRFDETR:
		return true
	}
	return false
}

// Detection is one candidate subject region found by a detection method.
// Detections are immutable once produced.
type Detection struct {
	Box        image.Rectangle
	Label      string
	Confidence float64
	Method     Method
}

// Area returns the pixel area of the detection box.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

type detectionJSON struct {
	Box        [4]int  `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method,omitempty"`
}

// MarshalJSON encodes the box as [x0, y0, x1, y1] so stored detection
// lists round-trip bit exactly through the front ends.
func (d Detection) MarshalJSON() ([]byte, error) {
	return json.Marshal(detectionJSON{
		Box:        [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y},
		Label:      d.Label,
		Confidence: d.Confidence,
		Method:     d.Method,
	})
}

func (d *Detection) UnmarshalJSON(data []byte) error {
	var w detectionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.Box = image.Rect(w.Box[0], w.Box[1], w.Box[2], w.Box[3])
	d.Label = w.Label
	d.Confidence = w.Confidence
	d.Method = w.Method
	return nil
}

// Params carries the per-request knobs a detector may honor.
type Params struct {
	// Threshold is the binary threshold for the contour method (0-255).
	Threshold int
	// Confidence is the minimum confidence for neural methods.
	Confidence float64
}

// Detector turns a frame into zero or more candidate detections, ordered
// by descending confidence. Implementations must not retain the frame.
type Detector interface {
	Detect(ctx context.Context, f *Frame, p Params) ([]Detection, error)
}

// sortDetections orders candidates by descending confidence, keeping the
// producer's order for equal scores.
func sortDetections(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}
