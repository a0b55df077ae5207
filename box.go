package subjectcrop

import (
	"image"
	"math"
	"strconv"
	"strings"
)

// aspectTolerance is the relative deviation below which a box is
// considered to already match the target ratio.
const aspectTolerance = 0.01

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampBox(b, bounds image.Rectangle) image.Rectangle {
	return image.Rect(
		clamp(b.Min.X, bounds.Min.X, bounds.Max.X),
		clamp(b.Min.Y, bounds.Min.Y, bounds.Max.Y),
		clamp(b.Max.X, bounds.Min.X, bounds.Max.X),
		clamp(b.Max.Y, bounds.Min.Y, bounds.Max.Y),
	)
}

// padBox grows b symmetrically by percent of its own width and height
// on each side, then clamps the result to bounds.
func padBox(b image.Rectangle, percent float64, bounds image.Rectangle) (image.Rectangle, error) {
	if percent < 0 || percent > 100 {
		return image.Rectangle{}, errf(KindInvalidConfiguration, "padding must be between 0 and 100 percent, got %g", percent)
	}
	if percent == 0 {
		return clampBox(b, bounds), nil
	}
	padX := int(math.Round(float64(b.Dx()) * percent / 100))
	padY := int(math.Round(float64(b.Dy()) * percent / 100))
	padded := image.Rect(b.Min.X-padX, b.Min.Y-padY, b.Max.X+padX, b.Max.Y+padY)
	return clampBox(padded, bounds), nil
}

// adjustAspect reshapes b so its width:height ratio equals ratio, growing
// only the shorter dimension about the box center. When the grown box
// overruns bounds it is shifted back inside and finally clamped; deviated
// reports whether the clamped result misses the target ratio by more than
// the tolerance (box pinned against an image edge).
func adjustAspect(b image.Rectangle, ratio float64, bounds image.Rectangle) (image.Rectangle, bool) {
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return clampBox(b, bounds), true
	}
	maxW, maxH := bounds.Max.X, bounds.Max.Y

	cur := float64(w) / float64(h)
	if math.Abs(cur-ratio) < aspectTolerance {
		return b, false
	}

	x0, y0, x1, y1 := b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	if cur > ratio {
		// too wide: grow height about the center
		newH := int(math.Round(float64(w) / ratio))
		diff := newH - h
		y0 = max(0, y0-diff/2)
		y1 = min(maxH, y1+diff/2)
		if y0 == 0 {
			y1 = min(maxH, newH)
		} else if y1 == maxH {
			y0 = max(0, maxH-newH)
		}
	} else {
		// too tall: grow width about the center
		newW := int(math.Round(float64(h) * ratio))
		diff := newW - w
		x0 = max(0, x0-diff/2)
		x1 = min(maxW, x1+diff/2)
		if x0 == 0 {
			x1 = min(maxW, newW)
		} else if x1 == maxW {
			x0 = max(0, maxW-newW)
		}
	}

	out := clampBox(image.Rect(x0, y0, x1, y1), bounds)
	got := float64(out.Dx()) / float64(out.Dy())
	deviated := math.Abs(got-ratio)/ratio > aspectTolerance
	return out, deviated
}

// ParseAspectRatio parses a width:height ratio such as "16:9", "4:3" or a
// bare decimal like "1.78" into a positive float.
func ParseAspectRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errf(KindInvalidConfiguration, "empty aspect ratio")
	}
	if w, h, ok := strings.Cut(s, ":"); ok {
		wf, errW := strconv.ParseFloat(strings.TrimSpace(w), 64)
		hf, errH := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if errW != nil || errH != nil || wf <= 0 || hf <= 0 {
			return 0, errf(KindInvalidConfiguration, "invalid aspect ratio %q", s)
		}
		return wf / hf, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 {
		return 0, errf(KindInvalidConfiguration, "invalid aspect ratio %q", s)
	}
	return r, nil
}
