package subjectcrop

import "strings"

// selectDetection picks one candidate from a confidence-ordered list.
//
// An explicit index wins outright (the interactive re-selection path) and
// is only bounds-checked, never re-filtered. Otherwise a target label
// restricts the field to case-insensitive exact matches. Ties on
// confidence go to the larger box, then to the earlier candidate, so the
// choice is deterministic for a given input.
func selectDetection(dets []Detection, targetLabel string, index *int) (Detection, int, error) {
	if index != nil {
		if *index < 0 || *index >= len(dets) {
			return Detection{}, -1, errf(KindInvalidConfiguration, "selected index %d out of range, have %d detections", *index, len(dets))
		}
		return dets[*index], *index, nil
	}
	if len(dets) == 0 {
		return Detection{}, -1, errf(KindNoDetection, "no candidates detected")
	}
	if targetLabel != "" {
		best := -1
		for i, d := range dets {
			if !strings.EqualFold(d.Label, targetLabel) {
				continue
			}
			if best < 0 || betterDetection(d, dets[best]) {
				best = i
			}
		}
		if best < 0 {
			return Detection{}, -1, errf(KindLabelNotFound, "%d detections, none labeled %q", len(dets), targetLabel)
		}
		return dets[best], best, nil
	}
	best := 0
	for i := 1; i < len(dets); i++ {
		if betterDetection(dets[i], dets[best]) {
			best = i
		}
	}
	return dets[best], best, nil
}

func betterDetection(a, b Detection) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Area() > b.Area()
}
