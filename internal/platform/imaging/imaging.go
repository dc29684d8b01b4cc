// Package imaging sniffs, validates and downsizes uploaded images before they are captioned.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

// Supported reports whether mime is one of the accepted upload formats.
func Supported(mime string) bool {
	switch normalize(mime) {
	case MimeJPEG, MimePNG:
		return true
	default:
		return false
	}
}

// Sniff detects the type from the bytes themselves; the client-supplied name is not trusted.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	mime := normalize(mimetype.Detect(data).String())
	if !Supported(mime) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	return mime, nil
}

// MimeFromName maps a file extension to a supported mime, or "" when unknown.
func MimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".png":
		return MimePNG
	default:
		return ""
	}
}

// Extension returns the canonical file extension for a supported mime.
func Extension(mime string) string {
	switch normalize(mime) {
	case MimeJPEG:
		return ".jpg"
	case MimePNG:
		return ".png"
	default:
		return ""
	}
}

func DataURL(mime string, data []byte) string {
	return "data:" + normalize(mime) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Downscale re-encodes the image as JPEG when its longest side exceeds maxSide.
// Images already within bounds, or maxSide <= 0, are returned untouched.
func Downscale(data []byte, mime string, maxSide int) ([]byte, string, error) {
	if maxSide <= 0 {
		return data, mime, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data, mime, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	w, h := fitWithin(cfg.Width, cfg.Height, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), MimeJPEG, nil
}

func fitWithin(w, h, maxSide int) (int, int) {
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}

func normalize(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		return MimeJPEG
	}
	return mime
}
