package scoring

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContentResult is the content partial score plus the sub-scores that produced it.
type ContentResult struct {
	PartialScore
	Heuristic int  `json:"heuristic"`
	ML        *int `json:"ml,omitempty"`
	Skipped   bool `json:"skipped"`
}

type tokenMatcher struct {
	name     string
	re       *regexp.Regexp
	minCount int
}

// ContentScorer combines a phrase/token heuristic with an optional text classifier. Whether the
// classifier is used is decided once, when the scorer is built.
type ContentScorer struct {
	policy     ContentPolicy
	phrases    []string
	tokens     []tokenMatcher
	classifier TextClassifier
}

// NewContentScorer compiles the policy. A nil classifier selects heuristic-only scoring.
func NewContentScorer(policy ContentPolicy, classifier TextClassifier) (*ContentScorer, error) {
	scorer := &ContentScorer{policy: policy, classifier: classifier}
	for _, phrase := range policy.Phrases {
		if normalized := strings.ToLower(NormalizeText(phrase)); normalized != "" {
			scorer.phrases = append(scorer.phrases, normalized)
		}
	}
	for _, rule := range policy.Tokens {
		pattern := rule.Pattern
		if pattern == "" {
			pattern = `\b` + regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(rule.Token))) + `\b`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile token %q: %w", rule.Token, err)
		}
		minCount := rule.MinCount
		if minCount <= 0 {
			minCount = 1
		}
		scorer.tokens = append(scorer.tokens, tokenMatcher{name: rule.Token, re: re, minCount: minCount})
	}
	return scorer, nil
}

// MLEnabled reports whether a text classifier was supplied.
func (s *ContentScorer) MLEnabled() bool {
	return s != nil && s.classifier != nil
}

// NormalizeText collapses all whitespace runs into single spaces and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Score evaluates page text. Text shorter than the minimum length scores 0 without consulting the
// classifier. deceptiveLinks is the client-reported count of anchors whose visible host differs
// from their target.
func (s *ContentScorer) Score(ctx context.Context, text string, deceptiveLinks int) ContentResult {
	normalized := NormalizeText(text)
	if len([]rune(normalized)) < s.policy.MinLength {
		return ContentResult{
			PartialScore: NewPartialScore(SignalContent, 0, "insufficient content"),
			Skipped:      true,
		}
	}

	heuristic, reasons := s.Heuristic(normalized)
	result := ContentResult{Heuristic: heuristic}

	final := heuristic
	if s.classifier != nil {
		prob, err := s.classifier.Probability(ctx, normalized)
		if err != nil {
			logrus.WithError(err).Warn("text classifier failed, scoring heuristic only")
			reasons = append(reasons, "ML classifier unavailable, heuristic only")
		} else {
			prob = clampFloat(prob, 0, 1)
			ml := Clamp(int(math.Round(prob * 100)))
			result.ML = &ml
			final = s.Combine(heuristic, ml)
			if heuristic >= s.policy.HeuristicPriorityFloor {
				reasons = append(reasons, "strong keyword evidence (heuristic priority)")
			}
			reasons = append(reasons, fmt.Sprintf("ML probability=%.3f", prob))
		}
	}

	if deceptiveLinks > 0 && s.policy.DeceptiveLinkPenalty > 0 {
		final += deceptiveLinks * s.policy.DeceptiveLinkPenalty
		reasons = append(reasons, fmt.Sprintf("Detected %d deceptive links", deceptiveLinks))
	}

	result.PartialScore = NewPartialScore(SignalContent, final, reasons...)
	return result
}

// Combine fuses the heuristic and ML sub-scores. Strong keyword evidence is trusted over the
// classifier; otherwise the classifier dominates.
func (s *ContentScorer) Combine(heuristic, ml int) int {
	if heuristic >= s.policy.HeuristicPriorityFloor {
		if ml > heuristic {
			return Clamp(ml)
		}
		return Clamp(heuristic)
	}
	blended := s.policy.MLWeight*float64(ml) + s.policy.HeuristicWeight*float64(heuristic)
	return Clamp(int(math.Round(blended)))
}

// Heuristic returns the keyword sub-score for already normalized text along with its reasons.
func (s *ContentScorer) Heuristic(normalized string) (int, []string) {
	lower := strings.ToLower(normalized)
	var phraseHits []string
	for _, phrase := range s.phrases {
		if strings.Contains(lower, phrase) {
			phraseHits = append(phraseHits, phrase)
		}
	}
	var tokenHits []string
	for _, token := range s.tokens {
		if len(token.re.FindAllStringIndex(lower, token.minCount)) >= token.minCount {
			tokenHits = append(tokenHits, token.name)
		}
	}

	hits := len(phraseHits) + len(tokenHits)
	var reasons []string
	if len(phraseHits) > 0 {
		reasons = append(reasons, "suspicious phrases: "+strings.Join(phraseHits, ", "))
	}
	if len(tokenHits) > 0 {
		reasons = append(reasons, "high-signal words: "+strings.Join(tokenHits, ", "))
	}
	if hits == 0 {
		reasons = append(reasons, "no suspicious phrases")
	}
	return Clamp(hits * s.policy.HitWeight), reasons
}
