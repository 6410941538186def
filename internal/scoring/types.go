package scoring

import (
	"context"
	"math"
	"strings"
)

// Signal names used on partial scores.
const (
	SignalURL     = "url"
	SignalContent = "content"
	SignalVisual  = "visual"
)

// Sensitivity selects the verdict thresholds applied by the fusion step.
type Sensitivity string

const (
	SensitivityStrict     Sensitivity = "strict"
	SensitivityBalanced   Sensitivity = "balanced"
	SensitivityPermissive Sensitivity = "permissive"
)

// ParseSensitivity maps client input onto a known level. Unknown or empty values fall back to balanced.
func ParseSensitivity(value string) Sensitivity {
	switch Sensitivity(strings.ToLower(strings.TrimSpace(value))) {
	case SensitivityStrict:
		return SensitivityStrict
	case SensitivityPermissive:
		return SensitivityPermissive
	default:
		return SensitivityBalanced
	}
}

// Verdict is the label attached to a score.
type Verdict string

const (
	VerdictSafe       Verdict = "safe"
	VerdictSuspicious Verdict = "suspicious"
	VerdictPhishing   Verdict = "phishing"
	// VerdictError is only produced by the visual matcher when it cannot evaluate the screenshot.
	VerdictError Verdict = "error"
)

// severity orders verdicts for comparisons.
func (v Verdict) severity() int {
	switch v {
	case VerdictPhishing:
		return 2
	case VerdictSuspicious:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether v is at least as severe as other.
func (v Verdict) AtLeast(other Verdict) bool {
	return v.severity() >= other.severity()
}

// PartialScore is the output of a single scorer for one request.
type PartialScore struct {
	Signal  string   `json:"signal"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// NewPartialScore clamps the score and copies the reasons so the result cannot be mutated through the input slice.
func NewPartialScore(signal string, score int, reasons ...string) PartialScore {
	out := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return PartialScore{Signal: signal, Score: Clamp(score), Reasons: out}
}

// TextClassifier maps normalized page text to a phishing probability in [0,1].
type TextClassifier interface {
	Probability(ctx context.Context, text string) (float64, error)
}

// Clamp restricts a score to [0,100].
func Clamp(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func clampFloat(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
