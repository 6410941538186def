package inference

import (
	"context"

	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/scoring"
)

type classifierChain struct {
	primary  scoring.TextClassifier
	fallback scoring.TextClassifier
}

// WithFallback returns a classifier that asks the primary first and the fallback when the primary
// fails. A nil side collapses to the other; both nil yields nil, meaning no classifier.
func WithFallback(primary, fallback scoring.TextClassifier) scoring.TextClassifier {
	if isNil(primary) {
		if isNil(fallback) {
			return nil
		}
		return fallback
	}
	if isNil(fallback) {
		return primary
	}
	return &classifierChain{primary: primary, fallback: fallback}
}

func (c *classifierChain) Probability(ctx context.Context, text string) (float64, error) {
	p, err := c.primary.Probability(ctx, text)
	if err == nil {
		return p, nil
	}
	logrus.WithError(err).Warn("primary classifier failed, using fallback")
	return c.fallback.Probability(ctx, text)
}

func isNil(c scoring.TextClassifier) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *RemoteClassifier:
		return v == nil
	case *LinearModel:
		return v == nil
	default:
		return false
	}
}
