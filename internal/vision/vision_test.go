package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"phishguard/backend/internal/scoring"
)

// syntheticLogo renders a pseudo-random pattern of black and white blocks.
func syntheticLogo(seed uint32, size, block int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	state := seed
	for by := 0; by < size; by += block {
		for bx := 0; bx < size; bx += block {
			state = state*1664525 + 1013904223
			var v uint8
			if state>>31 == 1 {
				v = 255
			}
			for y := by; y < by+block && y < size; y++ {
				for x := bx; x < bx+block && x < size; x++ {
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	return img
}

func embed(logo *image.Gray, width, height, ox, oy int) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	for i := range canvas.Pix {
		canvas.Pix[i] = 255
	}
	b := logo.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			canvas.SetGray(ox+x, oy+y, logo.GrayAt(x, y))
		}
	}
	return canvas
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func dataURL(t *testing.T, img image.Image) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, img))
}

func writeReference(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), encodePNG(t, img), 0o600); err != nil {
		t.Fatalf("write reference: %v", err)
	}
}

func newTestAnalyzer(t *testing.T, detector Detector) (*Analyzer, *image.Gray) {
	t.Helper()
	policy := scoring.DefaultPolicy().Visual
	dir := t.TempDir()
	paypal := syntheticLogo(7, 160, 8)
	writeReference(t, dir, "paypal_logo.png", paypal)
	writeReference(t, dir, "acme-header.png", syntheticLogo(99, 160, 8))

	brands, err := LoadBrands(dir, DefaultWhitelist(), NewExtractor(policy), policy.MaxPixels)
	if err != nil {
		t.Fatalf("load brands: %v", err)
	}
	if brands.Len() != 2 {
		t.Fatalf("expected 2 brands got %d", brands.Len())
	}
	return NewAnalyzer(policy, brands, detector), embed(paypal, 400, 300, 100, 60)
}
