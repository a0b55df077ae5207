package subjectcrop

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorSelected  = color.RGBA{G: 255}         // green
	colorCandidate = color.RGBA{R: 255, G: 255} // yellow
	colorLabelText = color.RGBA{}               // black on the colored chip
)

// renderOverlay draws every candidate on a copy of the frame, highlights
// the selected one, and stamps the final crop coordinates in the corner.
func renderOverlay(f *Frame, dets []Detection, selectedIdx int, finalBox image.Rectangle) ([]byte, error) {
	vis := f.mat.Clone()
	defer vis.Close()

	if len(dets) > 0 {
		for i, det := range dets {
			col := colorCandidate
			thickness := 2
			if i == selectedIdx {
				col = colorSelected
				thickness = 3
			}
			gocv.Rectangle(&vis, det.Box, col, thickness)
			drawLabelChip(&vis, det, col)
		}
	} else {
		gocv.Rectangle(&vis, finalBox, colorSelected, 3)
	}

	banner := fmt.Sprintf("crop: (%d, %d, %d, %d)", finalBox.Min.X, finalBox.Min.Y, finalBox.Max.X, finalBox.Max.Y)
	gocv.PutText(&vis, banner, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, colorSelected, 2)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, vis)
	if err != nil {
		return nil, wrapErr(KindInternal, err, "visualization encode failed")
	}
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	buf.Close()
	return out, nil
}

// drawLabelChip paints a filled background behind the label text so it
// stays readable over any image content.
func drawLabelChip(vis *gocv.Mat, det Detection, col color.RGBA) {
	text := fmt.Sprintf("%s: %.2f", det.Label, det.Confidence)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.6, 2)

	y := det.Box.Min.Y - 10
	if y < size.Y+10 {
		y = size.Y + 10
	}
	chip := image.Rect(det.Box.Min.X, y-size.Y-8, det.Box.Min.X+size.X+10, y+4)
	gocv.Rectangle(vis, chip, col, -1)
	gocv.PutText(vis, text, image.Pt(det.Box.Min.X+5, y-4), gocv.FontHersheySimplex, 0.6, colorLabelText, 2)
}
