package vision

import (
	"context"
	"image"
	"strings"

	"github.com/sirupsen/logrus"
)

// Locator methods reported on results.
const (
	MethodDetector = "detector"
	MethodFeatures = "features"
)

// Box is an axis-aligned bounding box in screenshot pixels.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is a brand located in a screenshot.
type Detection struct {
	Brand      string  `json:"brand"`
	Confidence float64 `json:"confidence,omitempty"`
	Inliers    int     `json:"inliers,omitempty"`
	Box        *Box    `json:"box,omitempty"`
}

// Detector is a learned logo detector.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

type located struct {
	method    string
	detection *Detection
	reason    string
}

type locator interface {
	locate(ctx context.Context, img *image.Gray) (located, error)
}

// detectorLocator asks the learned detector first and uses feature matching when it fails.
type detectorLocator struct {
	detector    Detector
	fallback    locator
	confidence  float64
	topFraction float64
}

func (d *detectorLocator) locate(ctx context.Context, img *image.Gray) (located, error) {
	detections, err := d.detector.Detect(ctx, img)
	if err != nil {
		logrus.WithError(err).Warn("logo detector failed, falling back to feature matching")
		return d.fallback.locate(ctx, img)
	}
	detections = FilterDetections(detections, d.confidence, d.topFraction, img.Rect.Dy())
	dominant, ok := Dominant(detections)
	if !ok {
		return located{method: MethodDetector}, nil
	}
	return located{method: MethodDetector, detection: &dominant}, nil
}

// FilterDetections drops detections below the confidence floor and, when topFraction is set,
// those whose box centre lies below that fraction of the image height.
func FilterDetections(detections []Detection, confidence, topFraction float64, height int) []Detection {
	var out []Detection
	for _, det := range detections {
		det.Brand = strings.ToLower(strings.TrimSpace(det.Brand))
		if det.Brand == "" || det.Confidence < confidence {
			continue
		}
		if topFraction > 0 && det.Box != nil {
			if (det.Box.Y1+det.Box.Y2)/2 > float64(height)*topFraction {
				continue
			}
		}
		out = append(out, det)
	}
	return out
}

// Dominant returns the highest-confidence detection. Ties keep the earlier one.
func Dominant(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best := detections[0]
	for _, det := range detections[1:] {
		if det.Confidence > best.Confidence {
			best = det
		}
	}
	return best, true
}
