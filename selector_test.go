package subjectcrop

import (
	"image"
	"testing"
)

func candidates() []Detection {
	return []Detection{
		{Box: image.Rect(0, 0, 100, 100), Label: "person", Confidence: 0.9, Method: MethodYOLO},
		{Box: image.Rect(10, 10, 200, 200), Label: "dog", Confidence: 0.8, Method: MethodYOLO},
		{Box: image.Rect(20, 20, 60, 60), Label: "person", Confidence: 0.6, Method: MethodYOLO},
	}
}

func TestSelectBestByConfidence(t *testing.T) {
	got, idx, err := selectDetection(candidates(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 || got.Label != "person" || got.Confidence != 0.9 {
		t.Errorf("selected %v at %d, want the 0.9 person at 0", got, idx)
	}
}

func TestSelectConfidenceTieGoesToLargerBox(t *testing.T) {
	dets := []Detection{
		{Box: image.Rect(0, 0, 10, 10), Label: "cat", Confidence: 0.7},
		{Box: image.Rect(0, 0, 50, 50), Label: "cat", Confidence: 0.7},
	}
	_, idx, err := selectDetection(dets, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Errorf("selected index %d, want the larger box at 1", idx)
	}
}

func TestSelectFullTieKeepsFirst(t *testing.T) {
	dets := []Detection{
		{Box: image.Rect(0, 0, 10, 10), Label: "cat", Confidence: 0.7},
		{Box: image.Rect(90, 90, 100, 100), Label: "cat", Confidence: 0.7},
	}
	_, idx, err := selectDetection(dets, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Errorf("selected index %d, want the earlier candidate at 0", idx)
	}
}

func TestSelectByLabel(t *testing.T) {
	got, idx, err := selectDetection(candidates(), "DOG", nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 || got.Label != "dog" {
		t.Errorf("selected %v at %d, want dog at 1", got, idx)
	}
}

func TestSelectLabelNotFound(t *testing.T) {
	_, _, err := selectDetection(candidates(), "bicycle", nil)
	if KindOf(err) != KindLabelNotFound {
		t.Errorf("kind = %v, want label not found", KindOf(err))
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	_, _, err := selectDetection(nil, "person", nil)
	if KindOf(err) != KindNoDetection {
		t.Errorf("kind = %v, want no detection", KindOf(err))
	}
}

func TestSelectExplicitIndexWins(t *testing.T) {
	idx2 := 2
	got, idx, err := selectDetection(candidates(), "dog", &idx2)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 || got.Confidence != 0.6 {
		t.Errorf("selected %v at %d, want index 2 regardless of label", got, idx)
	}
}

func TestSelectIndexOutOfRange(t *testing.T) {
	for _, i := range []int{-1, 3, 100} {
		i := i
		_, _, err := selectDetection(candidates(), "", &i)
		if KindOf(err) != KindInvalidConfiguration {
			t.Errorf("index %d: kind = %v, want invalid configuration", i, KindOf(err))
		}
	}
}
