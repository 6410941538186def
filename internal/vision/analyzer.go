package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/match"
	"phishguard/backend/internal/scoring"
)

// Result is the visual partial score with the matcher verdict and the brand it was based on.
type Result struct {
	scoring.PartialScore
	Verdict    scoring.Verdict `json:"verdict"`
	Method     string          `json:"method,omitempty"`
	Brand      string          `json:"brand,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Inliers    int             `json:"inliers,omitempty"`
}

// Analyzer is the visual brand matcher. The locating strategy is fixed at construction: the
// learned detector when one is supplied, feature matching otherwise.
type Analyzer struct {
	policy    scoring.VisualPolicy
	brands    *BrandSet
	locator   locator
	detector  bool
	sensitive []*regexp.Regexp
	trusted   []string
}

// NewAnalyzer builds the matcher. brands must have been loaded with an extractor built from the
// same policy.
func NewAnalyzer(policy scoring.VisualPolicy, brands *BrandSet, detector Detector) *Analyzer {
	features := NewFeatureMatcher(policy, NewExtractor(policy), brands)
	a := &Analyzer{policy: policy, brands: brands, locator: features}
	if detector != nil {
		a.detector = true
		a.locator = &detectorLocator{
			detector:    detector,
			fallback:    features,
			confidence:  policy.DetectorConfidence,
			topFraction: policy.DetectorTopFraction,
		}
	}
	for _, phrase := range policy.SensitivePhrases {
		if p := strings.ToLower(strings.TrimSpace(phrase)); p != "" {
			a.sensitive = append(a.sensitive, regexp.MustCompile(`\b`+regexp.QuoteMeta(p)+`\b`))
		}
	}
	for _, tld := range policy.TrustedTLDs {
		if t := strings.Trim(strings.ToLower(strings.TrimSpace(tld)), "."); t != "" {
			a.trusted = append(a.trusted, t)
		}
	}
	return a
}

// DetectorEnabled reports whether the learned detector strategy is active.
func (a *Analyzer) DetectorEnabled() bool {
	return a != nil && a.detector
}

// Brands exposes the reference set.
func (a *Analyzer) Brands() *BrandSet {
	return a.brands
}

// Analyze decodes the screenshot and evaluates it. Decoding problems produce an error verdict
// with score 0.
func (a *Analyzer) Analyze(ctx context.Context, screenshot, rawURL, text string) Result {
	img, err := DecodeScreenshot(screenshot, a.policy.MaxImageBytes, a.policy.MaxPixels)
	if err != nil {
		logrus.WithError(err).Warn("screenshot rejected")
		if errors.Is(err, ErrImageTooLarge) {
			return errorResult("image too large")
		}
		return errorResult("invalid image")
	}
	return a.AnalyzeImage(ctx, img, rawURL, text)
}

// AnalyzeImage evaluates a decoded screenshot. Failures inside the matcher, including panics, are
// reported as an error verdict and never escape.
func (a *Analyzer) AnalyzeImage(ctx context.Context, img *image.Gray, rawURL, text string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("visual matcher failure")
			result = errorResult("visual analysis failed")
		}
	}()

	found, err := a.locator.locate(ctx, img)
	if err != nil {
		logrus.WithError(err).Error("visual matcher failure")
		return errorResult("visual analysis failed")
	}
	if found.detection == nil {
		reasons := []string{}
		if found.reason != "" {
			reasons = append(reasons, found.reason)
		}
		reasons = append(reasons, "no brand match")
		return Result{
			PartialScore: scoring.NewPartialScore(scoring.SignalVisual, 0, reasons...),
			Verdict:      scoring.VerdictSafe,
			Method:       found.method,
		}
	}
	logrus.WithFields(logrus.Fields{
		"brand":      found.detection.Brand,
		"method":     found.method,
		"confidence": found.detection.Confidence,
		"inliers":    found.detection.Inliers,
	}).Info("visual brand match")
	return a.Decide(*found.detection, found.method, rawURL, text)
}

// Decide cross-checks a located brand against the URL host and the page text.
func (a *Analyzer) Decide(det Detection, method, rawURL, text string) Result {
	result := Result{
		Method:     method,
		Brand:      det.Brand,
		Confidence: det.Confidence,
		Inliers:    det.Inliers,
	}
	safe := func(reason string) Result {
		result.PartialScore = scoring.NewPartialScore(scoring.SignalVisual, 0, reason)
		result.Verdict = scoring.VerdictSafe
		return result
	}

	host := ""
	if profile, err := match.ParseURL(rawURL); err == nil {
		host = profile.Host
	}
	for _, domain := range a.brands.Domains(det.Brand) {
		if match.HostMatches(host, domain) {
			return safe(fmt.Sprintf("verified %s branding", det.Brand))
		}
	}
	for _, tld := range a.trusted {
		if match.HostUnderSuffix(host, tld) {
			return safe(fmt.Sprintf("%s branding on trusted .%s domain", det.Brand, tld))
		}
	}
	if normalized := scoring.NormalizeText(text); normalized != "" && !a.hasSensitivePhrase(normalized) {
		return safe(fmt.Sprintf("%s branding without sensitive-action text", det.Brand))
	}

	shown := host
	if shown == "" {
		shown = "unparseable"
	}
	result.PartialScore = scoring.NewPartialScore(scoring.SignalVisual, a.policy.PhishingScore,
		fmt.Sprintf("visuals show '%s' but host %s is not an official domain", det.Brand, shown))
	result.Verdict = scoring.VerdictPhishing
	return result
}

func (a *Analyzer) hasSensitivePhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range a.sensitive {
		if phrase.MatchString(lower) {
			return true
		}
	}
	return false
}

func errorResult(reason string) Result {
	return Result{
		PartialScore: scoring.NewPartialScore(scoring.SignalVisual, 0, reason),
		Verdict:      scoring.VerdictError,
	}
}
