package subjectcrop

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"testing"
)

func TestNewFrameDimensions(t *testing.T) {
	f := loadTestFrame(t, 320, 180, image.Rect(10, 10, 50, 50))
	if f.Width != 320 || f.Height != 180 {
		t.Errorf("frame is %dx%d, want 320x180", f.Width, f.Height)
	}
	if got := f.Bounds(); got != image.Rect(0, 0, 320, 180) {
		t.Errorf("bounds = %v", got)
	}
	if r := f.AspectRatio(); r < 1.77 || r > 1.79 {
		t.Errorf("aspect ratio = %g, want ~1.78", r)
	}
}

func TestNewFrameRejectsUnsupportedData(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": nil,
		"text":  []byte("definitely not pixels"),
		"gif":   {'G', 'I', 'F', '8', '9', 'a', 0, 0},
	} {
		if _, err := NewFrame(data); KindOf(err) != KindInvalidImage {
			t.Errorf("%s: kind = %v, want invalid image", name, KindOf(err))
		}
	}
}

func TestFrameImageSurvivesClose(t *testing.T) {
	f, err := NewFrame(testPNG(t, 64, 48, image.Rect(8, 8, 24, 24)))
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("image bounds = %v, want 64x48", b)
	}
}

func TestFrameCropSize(t *testing.T) {
	f := loadTestFrame(t, 100, 100, image.Rect(20, 20, 60, 60))
	m, err := f.crop(image.Rect(10, 10, 50, 40))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.Cols() != 40 || m.Rows() != 30 {
		t.Errorf("crop is %dx%d, want 40x30", m.Cols(), m.Rows())
	}
}

func TestEncodeImageFormats(t *testing.T) {
	f := loadTestFrame(t, 40, 40, image.Rect(5, 5, 20, 20))
	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}

	jpegSig := []byte{0xFF, 0xD8}
	pngSig := []byte{0x89, 'P', 'N', 'G'}
	for _, tc := range []struct {
		format string
		sig    []byte
	}{
		{"jpeg", jpegSig},
		{"jpg", jpegSig},
		{"", jpegSig},
		{"png", pngSig},
		{"webp", []byte("RIFF")},
	} {
		data, err := encodeImage(img, tc.format, 90)
		if err != nil {
			t.Errorf("format %q: %v", tc.format, err)
			continue
		}
		if !bytes.HasPrefix(data, tc.sig) {
			t.Errorf("format %q: output does not start with expected signature", tc.format)
		}
	}

	if _, err := encodeImage(img, "tiff", 90); KindOf(err) != KindInvalidConfiguration {
		t.Errorf("tiff: kind = %v, want invalid configuration", KindOf(err))
	}
}
