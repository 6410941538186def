package vision

import (
	"context"
	"image"
	"sort"

	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/scoring"
)

const ransacSeed = 0x7a11

// Bounds on how a reference logo may appear in a screenshot.
const (
	minLogoScale   = 0.125
	maxLogoScale   = 4
	maxLogoStretch = 2.5
)

// Candidate is a brand whose reference logo was geometrically verified in the screenshot.
type Candidate struct {
	Brand   string `json:"brand"`
	Inliers int    `json:"inliers"`
	Matches int    `json:"matches"`
}

// FeatureMatcher locates brand logos by descriptor matching and homography verification.
type FeatureMatcher struct {
	policy    scoring.VisualPolicy
	extractor *Extractor
	brands    *BrandSet
}

// NewFeatureMatcher builds a matcher over the reference set.
func NewFeatureMatcher(policy scoring.VisualPolicy, extractor *Extractor, brands *BrandSet) *FeatureMatcher {
	return &FeatureMatcher{policy: policy, extractor: extractor, brands: brands}
}

// Candidates returns every brand whose inlier count exceeds the floor, best first.
func (m *FeatureMatcher) Candidates(ctx context.Context, screen []Feature) ([]Candidate, error) {
	var out []Candidate
	for _, ref := range m.brands.References() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := Candidate{Brand: ref.Brand}
		for _, logo := range ref.Logos {
			matches, inliers := m.verify(logo, screen)
			if inliers > best.Inliers {
				best.Inliers, best.Matches = inliers, matches
			}
		}
		logrus.WithFields(logrus.Fields{"brand": ref.Brand, "inliers": best.Inliers}).Debug("brand verification")
		if best.Inliers > m.policy.MinInliers {
			out = append(out, best)
		}
	}
	sortCandidates(out)
	return out, nil
}

// verify returns the number of ratio-test survivors and RANSAC inliers for one reference logo.
// Only transforms that keep the logo a plausibly sized convex quad are counted.
func (m *FeatureMatcher) verify(logo Logo, screen []Feature) (int, int) {
	reference := logo.Features
	matches := RatioMatches(reference, screen, m.policy.RatioTest)
	if len(matches) < m.policy.MinGoodMatches {
		return len(matches), 0
	}
	src := make([]Point, len(matches))
	dst := make([]Point, len(matches))
	for i, match := range matches {
		q, t := reference[match.Query], screen[match.Train]
		src[i] = Point{X: q.X, Y: q.Y}
		dst[i] = Point{X: t.X, Y: t.Y}
	}
	shape := Shape{
		Width:    float64(logo.Width),
		Height:   float64(logo.Height),
		MinScale: minLogoScale,
		MaxScale: maxLogoScale,
		Stretch:  maxLogoStretch,
	}
	_, inliers, err := EstimateHomography(src, dst, m.policy.ReprojectionTolerance, m.policy.RansacIterations, ransacSeed, func(h Homography) bool {
		return h.Plausible(shape)
	})
	if err != nil {
		return len(matches), 0
	}
	return len(matches), inliers
}

func (m *FeatureMatcher) locate(ctx context.Context, img *image.Gray) (located, error) {
	screen := m.extractor.Extract(img)
	if len(screen) < 2 {
		return located{method: MethodFeatures, reason: "no features"}, nil
	}
	candidates, err := m.Candidates(ctx, screen)
	if err != nil {
		return located{}, err
	}
	winner, ok := SelectWinner(candidates, m.policy.MarginMultiplier, m.policy.AbsoluteInliers)
	if !ok {
		if len(candidates) > 1 {
			logrus.WithFields(logrus.Fields{
				"winner":    candidates[0].Brand,
				"runner_up": candidates[1].Brand,
			}).Info("ambiguous visual match, dropping result")
			return located{method: MethodFeatures, reason: "ambiguous visual match"}, nil
		}
		return located{method: MethodFeatures}, nil
	}
	return located{
		method:    MethodFeatures,
		detection: &Detection{Brand: winner.Brand, Inliers: winner.Inliers},
	}, nil
}

// SelectWinner accepts the best candidate when it has no runner-up, beats the runner-up by the
// margin multiplier, or clears the absolute inlier level.
func SelectWinner(candidates []Candidate, margin float64, absolute int) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sortCandidates(sorted)
	winner := sorted[0]
	if len(sorted) == 1 {
		return winner, true
	}
	runnerUp := sorted[1]
	if float64(winner.Inliers) > float64(runnerUp.Inliers)*margin || winner.Inliers > absolute {
		return winner, true
	}
	return Candidate{}, false
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Inliers != c[j].Inliers {
			return c[i].Inliers > c[j].Inliers
		}
		return c[i].Brand < c[j].Brand
	})
}
