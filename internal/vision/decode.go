package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrImageTooLarge is returned when a screenshot exceeds the byte or pixel ceiling.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUndecodableImage is returned when the payload is not a supported image.
	ErrUndecodableImage = errors.New("invalid image")
)

// DecodeScreenshot decodes a base64 payload (optionally a data URL) into a grayscale image.
// The byte ceiling is checked against the encoded string before any decoding work.
func DecodeScreenshot(encoded string, maxBytes, maxPixels int) (*image.Gray, error) {
	payload := strings.TrimSpace(encoded)
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	if maxBytes > 0 && len(payload) > maxBytes {
		return nil, ErrImageTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrUndecodableImage, err)
		}
	}
	return decodeGray(bytes.NewReader(raw), maxPixels)
}

// LoadGray reads an image file from disk and converts it to grayscale.
func LoadGray(path string, maxPixels int) (*image.Gray, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return decodeGray(f, maxPixels)
}

func decodeGray(r io.ReadSeeker, maxPixels int) (*image.Gray, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUndecodableImage
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, ErrImageTooLarge
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind image: %w", err)
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return ToGray(img), nil
}

// ToGray returns img as a zero-origin grayscale image.
func ToGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok && gray.Rect.Min == (image.Point{}) {
		return gray
	}
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}

// resize scales src to the given dimensions with bilinear interpolation.
func resize(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
