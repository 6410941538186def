package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/inference"
	"phishguard/backend/internal/scoring"
	"phishguard/backend/internal/vision"
)

// Assets names the files and endpoints an engine is built from. Empty values disable the
// corresponding capability.
type Assets struct {
	PolicyPath         string
	BrandsDir          string
	WhitelistPath      string
	ModelPath          string
	ClassifierURL      string
	DetectorURL        string
	DetectorConfidence float64
	InferenceTimeout   time.Duration
	MaxScreenshotBytes int
}

// LoadConfig resolves assets into an engine configuration. A broken policy, whitelist or brand
// directory is an error; optional capabilities that fail to load are logged and left absent.
func LoadConfig(a Assets) (Config, error) {
	policy, err := scoring.LoadPolicy(a.PolicyPath)
	if err != nil {
		return Config{}, err
	}
	if a.MaxScreenshotBytes > 0 {
		policy.Visual.MaxImageBytes = a.MaxScreenshotBytes
	}
	if a.DetectorConfidence > 0 && a.DetectorConfidence < 1 {
		policy.Visual.DetectorConfidence = a.DetectorConfidence
	}

	whitelist, err := vision.LoadWhitelist(a.WhitelistPath)
	if err != nil {
		return Config{}, err
	}
	brands, err := vision.LoadBrands(a.BrandsDir, whitelist, vision.NewExtractor(policy.Visual), policy.Visual.MaxPixels)
	if err != nil {
		return Config{}, fmt.Errorf("brand references: %w", err)
	}

	remoteCfg := inference.Config{Timeout: a.InferenceTimeout}

	var remote scoring.TextClassifier
	remoteCfg.BaseURL = a.ClassifierURL
	if client, err := inference.NewRemoteClassifier(remoteCfg); err == nil {
		remote = client
		logrus.WithField("url", a.ClassifierURL).Info("remote text classifier enabled")
	} else if !errors.Is(err, inference.ErrDisabled) {
		logrus.WithError(err).Warn("remote text classifier unavailable")
	}

	var local scoring.TextClassifier
	if model, err := inference.LoadLinearModel(a.ModelPath); err == nil {
		local = model
		logrus.WithField("path", a.ModelPath).Info("content model loaded")
	} else if !errors.Is(err, inference.ErrDisabled) {
		logrus.WithError(err).WithField("path", a.ModelPath).Warn("content model unavailable, heuristic only")
	}

	var detector vision.Detector
	remoteCfg.BaseURL = a.DetectorURL
	if client, err := inference.NewRemoteDetector(remoteCfg, policy.Visual.DetectorConfidence); err == nil {
		detector = client
		logrus.WithField("url", a.DetectorURL).Info("logo detector enabled")
	} else if !errors.Is(err, inference.ErrDisabled) {
		logrus.WithError(err).Warn("logo detector unavailable, using feature matching")
	}

	return Config{
		Policy:     policy,
		Brands:     brands,
		Classifier: inference.WithFallback(remote, local),
		Detector:   detector,
	}, nil
}
