package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	if got, err := Sniff(encodePNG(t, 4, 4)); err != nil || got != MimePNG {
		t.Fatalf("Sniff(png): got=%q err=%v", got, err)
	}
	if got, err := Sniff(encodeJPEG(t, 4, 4)); err != nil || got != MimeJPEG {
		t.Fatalf("Sniff(jpeg): got=%q err=%v", got, err)
	}
	if _, err := Sniff([]byte("GIF89a......")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("Sniff(gif): want ErrUnsupportedImage got=%v", err)
	}
	if _, err := Sniff(nil); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("Sniff(nil): want ErrUnsupportedImage got=%v", err)
	}
}

func TestMimeHelpers(t *testing.T) {
	if MimeFromName("Photo.JPEG") != MimeJPEG || MimeFromName("x.png") != MimePNG || MimeFromName("x.webp") != "" {
		t.Fatalf("MimeFromName mismatch")
	}
	if !Supported("image/jpg") || !Supported("image/png; charset=binary") || Supported("image/gif") {
		t.Fatalf("Supported mismatch")
	}
	if Extension(MimeJPEG) != ".jpg" || Extension(MimePNG) != ".png" {
		t.Fatalf("Extension mismatch")
	}
	if got := DataURL("image/png", []byte("hi")); got != "data:image/png;base64,aGk=" {
		t.Fatalf("DataURL: got=%q", got)
	}
}

func TestDownscale(t *testing.T) {
	small := encodePNG(t, 10, 8)
	out, mime, err := Downscale(small, MimePNG, 64)
	if err != nil {
		t.Fatalf("Downscale(small): %v", err)
	}
	if mime != MimePNG || !bytes.Equal(out, small) {
		t.Fatalf("Downscale(small): expected untouched input")
	}

	large := encodePNG(t, 200, 100)
	out, mime, err = Downscale(large, MimePNG, 50)
	if err != nil {
		t.Fatalf("Downscale(large): %v", err)
	}
	if mime != MimeJPEG {
		t.Fatalf("mime: want=%q got=%q", MimeJPEG, mime)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if format != "jpeg" || cfg.Width != 50 || cfg.Height != 25 {
		t.Fatalf("downscaled: format=%s %dx%d", format, cfg.Width, cfg.Height)
	}

	if _, _, err := Downscale([]byte("not an image"), MimePNG, 10); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("Downscale(garbage): want decode error got=%v", err)
	}
}

func TestFitWithin(t *testing.T) {
	if w, h := fitWithin(100, 400, 200); w != 50 || h != 200 {
		t.Fatalf("portrait: got=%dx%d", w, h)
	}
	if w, h := fitWithin(1000, 1, 100); w != 100 || h != 1 {
		t.Fatalf("thin: got=%dx%d", w, h)
	}
}
