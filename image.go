package subjectcrop

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

var acceptedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Frame is a decoded input raster owned by a single processing
// invocation. The pixel data is never mutated; every transform clones.
type Frame struct {
	data   []byte
	mat    gocv.Mat
	img    image.Image
	Width  int
	Height int
}

// NewFrame decodes raw JPEG, PNG or WebP bytes.
func NewFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, errf(KindInvalidImage, "empty image data")
	}
	mt := mimetype.Detect(data)
	if !slices.Contains(acceptedTypes, mt.String()) {
		return nil, errf(KindInvalidImage, "unsupported format %q, only JPEG, PNG and WebP are accepted", mt.String())
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, wrapErr(KindInvalidImage, err, "decode failed")
	}
	if mat.Empty() {
		return nil, errf(KindInvalidImage, "decode produced an empty raster")
	}
	return &Frame{
		data:   data,
		mat:    mat,
		Width:  mat.Cols(),
		Height: mat.Rows(),
	}, nil
}

// Bounds returns the frame rectangle, origin at (0,0).
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// AspectRatio returns width divided by height.
func (f *Frame) AspectRatio() float64 {
	return float64(f.Width) / float64(f.Height)
}

// Image returns the frame as an image.Image, decoding it lazily from the
// original bytes. The neural adapters use this view so they stay valid
// even after the Mat is released.
func (f *Frame) Image() (image.Image, error) {
	if f.img != nil {
		return f.img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(f.data))
	if err != nil {
		return nil, wrapErr(KindInvalidImage, err, "decode failed")
	}
	f.img = img
	return img, nil
}

// Close releases the underlying Mat. The image.Image view stays usable.
func (f *Frame) Close() {
	if !f.mat.Empty() {
		f.mat.Close()
	}
}

// crop clones the region r out of the frame.
func (f *Frame) crop(r image.Rectangle) (gocv.Mat, error) {
	r = clampBox(r, f.Bounds())
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return gocv.Mat{}, errf(KindInternal, "degenerate crop region %v", r)
	}
	region := f.mat.Region(r)
	defer region.Close()
	return region.Clone(), nil
}

// encodeMat serializes a Mat in the requested output format.
func encodeMat(m gocv.Mat, format string, quality int) ([]byte, error) {
	img, err := m.ToImage()
	if err != nil {
		return nil, wrapErr(KindInternal, err, "mat conversion failed")
	}
	return encodeImage(img, format, quality)
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "", "jpeg", "jpg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	default:
		return nil, errf(KindInvalidConfiguration, "unsupported output format %q", format)
	}
	if err != nil {
		return nil, wrapErr(KindInternal, err, "encode failed")
	}
	return buf.Bytes(), nil
}
