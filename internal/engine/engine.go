package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"phishguard/backend/internal/scoring"
	"phishguard/backend/internal/vision"
)

// Config wires the engine's static state. Nil capabilities select the fallback strategies.
type Config struct {
	Policy     scoring.Policy
	Brands     *vision.BrandSet
	Classifier scoring.TextClassifier
	Detector   vision.Detector
	// Sequential evaluates the three scorers one after another instead of concurrently.
	Sequential bool
}

// Request is one page to analyze.
type Request struct {
	RequestID           string
	URL                 string
	Text                string
	Screenshot          string
	Sensitivity         scoring.Sensitivity
	DeceptiveLinksCount int
}

// Result is the fused outcome plus the partial scores that produced it.
type Result struct {
	RequestID       string                `json:"request_id"`
	URL             string                `json:"url"`
	Score           int                   `json:"score"`
	Verdict         scoring.Verdict       `json:"verdict"`
	Reasons         []string              `json:"reasons"`
	Sensitivity     scoring.Sensitivity   `json:"sensitivity"`
	URLPartial      scoring.PartialScore  `json:"url_partial"`
	Content         scoring.ContentResult `json:"content_partial"`
	Visual          vision.Result         `json:"visual_partial"`
	VisualEffective float64               `json:"visual_effective"`
	Vetoed          bool                  `json:"vetoed"`
}

// Capabilities describes which optional collaborators are active.
type Capabilities struct {
	MLLoaded       bool `json:"ml_loaded"`
	DetectorLoaded bool `json:"detector_loaded"`
	Brands         int  `json:"brands"`
}

// Engine is safe for concurrent use; nothing it holds is mutated after New returns.
type Engine struct {
	policy     scoring.Policy
	urls       *scoring.URLScorer
	content    *scoring.ContentScorer
	visual     *vision.Analyzer
	sequential bool
}

// New validates the policy and builds the scorers.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy: %w", err)
	}
	content, err := scoring.NewContentScorer(cfg.Policy.Content, cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("content scorer: %w", err)
	}
	brands := cfg.Brands
	if brands == nil {
		brands = vision.NewBrandSet(nil, vision.DefaultWhitelist())
	}
	e := &Engine{
		policy:     cfg.Policy,
		urls:       scoring.NewURLScorer(cfg.Policy.URL),
		content:    content,
		visual:     vision.NewAnalyzer(cfg.Policy.Visual, brands, cfg.Detector),
		sequential: cfg.Sequential,
	}
	logrus.WithFields(logrus.Fields{
		"ml_loaded":       content.MLEnabled(),
		"detector_loaded": e.visual.DetectorEnabled(),
		"brands":          brands.Len(),
	}).Info("scan engine ready")
	return e, nil
}

// Policy returns the active scoring policy.
func (e *Engine) Policy() scoring.Policy {
	return e.policy
}

// Capabilities reports the active strategies.
func (e *Engine) Capabilities() Capabilities {
	return Capabilities{
		MLLoaded:       e.content.MLEnabled(),
		DetectorLoaded: e.visual.DetectorEnabled(),
		Brands:         e.visual.Brands().Len(),
	}
}

// Analyze scores the request. Input problems never fail the call; they surface as defensive
// scores and reasons on a complete result.
func (e *Engine) Analyze(ctx context.Context, req Request) Result {
	sensitivity := scoring.ParseSensitivity(string(req.Sensitivity))

	var (
		urlScore scoring.PartialScore
		content  scoring.ContentResult
		visual   vision.Result
	)
	tasks := []func(){
		func() { urlScore = e.urls.Score(req.URL) },
		func() { content = e.content.Score(ctx, req.Text, req.DeceptiveLinksCount) },
		func() { visual = e.scoreVisual(ctx, req) },
	}
	if e.sequential {
		for _, task := range tasks {
			task()
		}
	} else {
		var g errgroup.Group
		for _, task := range tasks {
			task := task
			g.Go(func() error {
				task()
				return nil
			})
		}
		_ = g.Wait()
	}

	outcome := scoring.Fuse(e.policy.Fusion, scoring.FusionInput{
		URL:         urlScore,
		Content:     content.PartialScore,
		Visual:      visual.PartialScore,
		ContentML:   content.ML,
		Sensitivity: sensitivity,
	})

	logrus.WithFields(logrus.Fields{
		"request_id":    req.RequestID,
		"score":         outcome.Score,
		"verdict":       outcome.Verdict,
		"url_score":     urlScore.Score,
		"content_score": content.Score,
		"visual_score":  visual.Score,
	}).Debug("scan fused")

	return Result{
		RequestID:       req.RequestID,
		URL:             req.URL,
		Score:           outcome.Score,
		Verdict:         outcome.Verdict,
		Reasons:         outcome.Reasons,
		Sensitivity:     sensitivity,
		URLPartial:      urlScore,
		Content:         content,
		Visual:          visual,
		VisualEffective: outcome.VisualEffective,
		Vetoed:          outcome.Vetoed,
	}
}

func (e *Engine) scoreVisual(ctx context.Context, req Request) vision.Result {
	if strings.TrimSpace(req.Screenshot) == "" {
		return vision.Result{
			PartialScore: scoring.NewPartialScore(scoring.SignalVisual, 0),
			Verdict:      scoring.VerdictSafe,
		}
	}
	return e.visual.Analyze(ctx, req.Screenshot, req.URL, req.Text)
}
