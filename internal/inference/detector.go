package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"phishguard/backend/internal/vision"
)

// RemoteDetector calls a logo detection service.
type RemoteDetector struct {
	remote
	confidence float64
}

// NewRemoteDetector returns ErrDisabled when no base URL is configured. confidence is forwarded
// to the service as its detection floor.
func NewRemoteDetector(cfg Config, confidence float64) (*RemoteDetector, error) {
	r, err := newRemote(cfg)
	if err != nil {
		return nil, err
	}
	return &RemoteDetector{remote: r, confidence: confidence}, nil
}

// Enabled reports whether the client can make outbound calls.
func (d *RemoteDetector) Enabled() bool {
	return d != nil && d.baseURL != ""
}

type detectRequest struct {
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
}

type detectResponse struct {
	Detections []struct {
		Brand      string    `json:"brand"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"`
	} `json:"detections"`
}

// Detect posts the image as base64 PNG to {base}/detect.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]vision.Detection, error) {
	if !d.Enabled() {
		return nil, ErrDisabled
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	payload := detectRequest{
		Image:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		Confidence: d.confidence,
	}
	var decoded detectResponse
	if err := d.post(ctx, "/detect", payload, &decoded); err != nil {
		return nil, err
	}

	out := make([]vision.Detection, 0, len(decoded.Detections))
	for _, det := range decoded.Detections {
		brand := strings.ToLower(strings.TrimSpace(det.Brand))
		if brand == "" {
			continue
		}
		detection := vision.Detection{Brand: brand, Confidence: det.Confidence}
		if len(det.BBox) == 4 {
			detection.Box = &vision.Box{X1: det.BBox[0], Y1: det.BBox[1], X2: det.BBox[2], Y2: det.BBox[3]}
		}
		out = append(out, detection)
	}
	return out, nil
}
