package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Policy holds every tuning knob used by the scorers. Values are plain data so a deployment can
// audit them, override them from JSON and test them without touching code.
type Policy struct {
	URL     URLPolicy     `json:"url"`
	Content ContentPolicy `json:"content"`
	Visual  VisualPolicy  `json:"visual"`
	Fusion  FusionPolicy  `json:"fusion"`
}

// URLPolicy configures the lexical URL scorer.
type URLPolicy struct {
	MalformedScore        int      `json:"malformed_score"`
	TrustedDomains        []string `json:"trusted_domains"`
	IPLiteralPenalty      int      `json:"ip_literal_penalty"`
	InsecureSchemePenalty int      `json:"insecure_scheme_penalty"`
	MaxURLLength          int      `json:"max_url_length"`
	LongURLPenalty        int      `json:"long_url_penalty"`
	SuspiciousTLDs        []string `json:"suspicious_tlds"`
	SuspiciousTLDPenalty  int      `json:"suspicious_tld_penalty"`
	SuspiciousKeywords    []string `json:"suspicious_keywords"`
	KeywordPenalty        int      `json:"keyword_penalty"`
	MaxReportedKeywords   int      `json:"max_reported_keywords"`
	MaxHostLabels         int      `json:"max_host_labels"`
	SubdomainPenalty      int      `json:"subdomain_penalty"`
	MaxSLDHyphens         int      `json:"max_sld_hyphens"`
	HyphenPenalty         int      `json:"hyphen_penalty"`
	LongDigitSLDLength    int      `json:"long_digit_sld_length"`
	LongDigitSLDPenalty   int      `json:"long_digit_sld_penalty"`
	DigitSLDPenalty       int      `json:"digit_sld_penalty"`
}

// TokenRule counts a word-boundary token as one heuristic hit once it occurs MinCount times.
type TokenRule struct {
	Token    string `json:"token"`
	Pattern  string `json:"pattern,omitempty"`
	MinCount int    `json:"min_count"`
}

// ContentPolicy configures the page text scorer.
type ContentPolicy struct {
	MinLength              int         `json:"min_length"`
	Phrases                []string    `json:"phrases"`
	Tokens                 []TokenRule `json:"tokens"`
	HitWeight              int         `json:"hit_weight"`
	HeuristicPriorityFloor int         `json:"heuristic_priority_floor"`
	MLWeight               float64     `json:"ml_weight"`
	HeuristicWeight        float64     `json:"heuristic_weight"`
	DeceptiveLinkPenalty   int         `json:"deceptive_link_penalty"`
}

// VisualPolicy configures screenshot decoding, the feature matching fallback and the brand decision.
type VisualPolicy struct {
	MaxImageBytes         int      `json:"max_image_bytes"`
	MaxPixels             int      `json:"max_pixels"`
	DetectorConfidence    float64  `json:"detector_confidence"`
	DetectorTopFraction   float64  `json:"detector_top_fraction"`
	MaxFeatures           int      `json:"max_features"`
	PyramidLevels         int      `json:"pyramid_levels"`
	ScaleFactor           float64  `json:"scale_factor"`
	FastThreshold         int      `json:"fast_threshold"`
	RatioTest             float64  `json:"ratio_test"`
	MinGoodMatches        int      `json:"min_good_matches"`
	ReprojectionTolerance float64  `json:"reprojection_tolerance"`
	RansacIterations      int      `json:"ransac_iterations"`
	MinInliers            int      `json:"min_inliers"`
	MarginMultiplier      float64  `json:"margin_multiplier"`
	AbsoluteInliers       int      `json:"absolute_inliers"`
	PhishingScore         int      `json:"phishing_score"`
	TrustedTLDs           []string `json:"trusted_tlds"`
	SensitivePhrases      []string `json:"sensitive_phrases"`
}

// Thresholds are inclusive lower bounds for a sensitivity level.
type Thresholds struct {
	Phishing   int `json:"phishing"`
	Suspicious int `json:"suspicious"`
}

// FusionPolicy configures how partial scores are combined.
type FusionPolicy struct {
	VetoContentBelow int                        `json:"veto_content_below"`
	VetoVisualLow    int                        `json:"veto_visual_low"`
	VetoVisualHigh   int                        `json:"veto_visual_high"`
	VetoFactor       float64                    `json:"veto_factor"`
	OverrideURLAbove int                        `json:"override_url_above"`
	URLWeight        float64                    `json:"url_weight"`
	ContentWeight    float64                    `json:"content_weight"`
	VisualWeight     float64                    `json:"visual_weight"`
	MLStyleAbove     int                        `json:"ml_style_above"`
	Thresholds       map[Sensitivity]Thresholds `json:"thresholds"`
}

// DefaultPolicy returns the reference tuning.
func DefaultPolicy() Policy {
	return Policy{
		URL: URLPolicy{
			MalformedScore:        50,
			IPLiteralPenalty:      60,
			InsecureSchemePenalty: 15,
			MaxURLLength:          75,
			LongURLPenalty:        10,
			SuspiciousTLDs: []string{
				"tk", "ml", "ga", "cf", "gq", "xyz", "top", "club", "online", "site",
				"live", "life", "biz", "icu", "buzz", "click", "link", "work", "rest",
				"cam", "zip", "mov", "country", "kim", "party", "review", "loan", "win",
				"bid", "date", "stream", "support",
			},
			SuspiciousTLDPenalty: 85,
			SuspiciousKeywords: []string{
				"login", "signin", "sign-in", "verify", "verification", "secure", "account",
				"update", "confirm", "banking", "password", "authenticate", "wallet",
				"suspend", "unlock", "billing", "webscr", "recover",
			},
			KeywordPenalty:      10,
			MaxReportedKeywords: 3,
			MaxHostLabels:       3,
			SubdomainPenalty:    15,
			MaxSLDHyphens:       1,
			HyphenPenalty:       20,
			LongDigitSLDLength:  10,
			LongDigitSLDPenalty: 55,
			DigitSLDPenalty:     10,
		},
		Content: ContentPolicy{
			MinLength: 20,
			Phrases: []string{
				"verify your account",
				"update your information",
				"confirm your identity",
				"your account has been suspended",
				"your account will be closed",
				"unauthorized login",
				"verify payment",
				"click below to verify",
				"urgent action required",
				"password expired",
				"transfer funds",
				"provide your password",
				"enter your credentials",
				"unusual sign-in activity",
				"your package could not be delivered",
				"confirm your payment details",
			},
			Tokens: []TokenRule{
				{Token: "verify", MinCount: 2},
				{Token: "password", MinCount: 1},
				{Token: "urgent", MinCount: 1},
				{Token: "delivery", MinCount: 1},
				{Token: "suspend", Pattern: `\bsuspend(ed)?\b`, MinCount: 1},
				{Token: "package", MinCount: 1},
				{Token: "failure", MinCount: 1},
			},
			HitWeight:              25,
			HeuristicPriorityFloor: 50,
			MLWeight:               0.8,
			HeuristicWeight:        0.2,
			DeceptiveLinkPenalty:   20,
		},
		Visual: VisualPolicy{
			MaxImageBytes:         10 * 1024 * 1024,
			MaxPixels:             16_000_000,
			DetectorConfidence:    0.5,
			MaxFeatures:           2000,
			PyramidLevels:         4,
			ScaleFactor:           1.2,
			FastThreshold:         20,
			RatioTest:             0.75,
			MinGoodMatches:        10,
			ReprojectionTolerance: 5.0,
			RansacIterations:      2000,
			MinInliers:            10,
			MarginMultiplier:      1.5,
			AbsoluteInliers:       40,
			PhishingScore:         95,
			TrustedTLDs:           []string{"gov", "edu", "mil", "int", "gov.uk", "ac.uk", "nhs.uk", "gov.au", "edu.au", "gc.ca", "gov.in", "ac.in", "gouv.fr", "europa.eu"},
			SensitivePhrases: []string{
				"password", "passcode", "sign in", "signin", "log in", "login",
				"credit card", "card number", "cvv", "expiry date", "billing",
				"payment", "bank account", "social security", "ssn",
				"verify your account", "confirm your identity", "account suspended",
				"account has been suspended", "account locked", "unusual activity",
			},
		},
		Fusion: FusionPolicy{
			VetoContentBelow: 5,
			VetoVisualLow:    50,
			VetoVisualHigh:   80,
			VetoFactor:       0.3,
			OverrideURLAbove: 80,
			URLWeight:        0.2,
			ContentWeight:    0.5,
			VisualWeight:     0.3,
			MLStyleAbove:     70,
			Thresholds: map[Sensitivity]Thresholds{
				SensitivityStrict:     {Phishing: 65, Suspicious: 35},
				SensitivityBalanced:   {Phishing: 75, Suspicious: 45},
				SensitivityPermissive: {Phishing: 85, Suspicious: 60},
			},
		},
	}
}

// LoadPolicy reads a JSON overlay on top of DefaultPolicy. Fields absent from the file keep their
// defaults; lists present in the file replace the default list.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Policy{}, fmt.Errorf("read scoring policy: %w", err)
	}
	if err := json.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("unmarshal scoring policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("validate scoring policy: %w", err)
	}
	return policy, nil
}

// Validate ensures the policy is internally consistent.
func (p Policy) Validate() error {
	if p.Content.MinLength < 0 {
		return errors.New("content min_length must not be negative")
	}
	if p.Visual.RatioTest <= 0 || p.Visual.RatioTest >= 1 {
		return errors.New("visual ratio_test must be in (0,1)")
	}
	if p.Visual.MinGoodMatches < 4 {
		return errors.New("visual min_good_matches must be at least 4")
	}
	if p.Visual.MinInliers < 1 {
		return errors.New("visual min_inliers must be positive")
	}
	if p.Visual.MarginMultiplier < 1 {
		return errors.New("visual margin_multiplier must be at least 1")
	}
	if p.Visual.ScaleFactor <= 1 && p.Visual.PyramidLevels > 1 {
		return errors.New("visual scale_factor must exceed 1 when using a pyramid")
	}
	levels := []Sensitivity{SensitivityStrict, SensitivityBalanced, SensitivityPermissive}
	var prev *Thresholds
	for _, level := range levels {
		th, ok := p.Fusion.Thresholds[level]
		if !ok {
			return fmt.Errorf("fusion thresholds missing for %s", level)
		}
		if th.Suspicious > th.Phishing {
			return fmt.Errorf("fusion thresholds for %s: suspicious above phishing", level)
		}
		if prev != nil && (th.Phishing < prev.Phishing || th.Suspicious < prev.Suspicious) {
			return fmt.Errorf("fusion thresholds for %s are stricter than a stricter level", level)
		}
		current := th
		prev = &current
	}
	return nil
}

// ThresholdsFor returns the thresholds for the sensitivity, defaulting to balanced.
func (p FusionPolicy) ThresholdsFor(level Sensitivity) Thresholds {
	if th, ok := p.Thresholds[level]; ok {
		return th
	}
	return p.Thresholds[SensitivityBalanced]
}
