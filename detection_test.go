package subjectcrop

import (
	"encoding/json"
	"image"
	"testing"
)

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		if err != nil {
			t.Errorf("ParseMethod(%q) error: %v", m, err)
		}
		if got != m {
			t.Errorf("ParseMethod(%q) = %q", m, got)
		}
	}
	for _, s := range []string{"", "YOLO", "rtdetr", "face", "grab cut"} {
		if _, err := ParseMethod(s); KindOf(err) != KindInvalidConfiguration {
			t.Errorf("ParseMethod(%q): kind = %v, want invalid configuration", s, KindOf(err))
		}
	}
}

func TestMethodNeural(t *testing.T) {
	neural := map[Method]bool{
		MethodContour: false, MethodSaliency: false, MethodEdge: false, MethodGrabCut: false,
		MethodYOLO: true, MethodDETR: true, MethodRTDETR: true, MethodRFDETR: true,
	}
	for m, want := range neural {
		if m.Neural() != want {
			t.Errorf("%s.Neural() = %v, want %v", m, m.Neural(), want)
		}
	}
}

func TestDetectionJSONBoxEncoding(t *testing.T) {
	d := Detection{Box: image.Rect(4, 8, 120, 240), Label: "person", Confidence: 0.87, Method: MethodYOLO}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"box":[4,8,120,240],"label":"person","confidence":0.87,"method":"yolo"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}

	var back Detection
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("round trip = %+v, want %+v", back, d)
	}
}

func TestSortDetectionsStable(t *testing.T) {
	dets := []Detection{
		{Label: "a", Confidence: 0.5},
		{Label: "b", Confidence: 0.9},
		{Label: "c", Confidence: 0.5},
	}
	sortDetections(dets)
	labels := []string{dets[0].Label, dets[1].Label, dets[2].Label}
	if labels[0] != "b" || labels[1] != "a" || labels[2] != "c" {
		t.Errorf("order = %v, want [b a c]", labels)
	}
}
