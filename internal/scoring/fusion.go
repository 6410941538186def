package scoring

import (
	"math"
	"strings"
)

// FusionInput carries the three partial scores for a request.
type FusionInput struct {
	URL         PartialScore
	Content     PartialScore
	Visual      PartialScore
	ContentML   *int
	Sensitivity Sensitivity
}

// FusionOutcome is the combined score, verdict and merged reasons.
type FusionOutcome struct {
	Score           int      `json:"score"`
	Verdict         Verdict  `json:"verdict"`
	Reasons         []string `json:"reasons"`
	VisualEffective float64  `json:"visual_effective"`
	Vetoed          bool     `json:"vetoed"`
	Override        bool     `json:"override"`
}

// VetoVisual dampens a mid-range visual score that has no textual support.
func VetoVisual(p FusionPolicy, content, visual int) (float64, bool) {
	if content < p.VetoContentBelow && visual > p.VetoVisualLow && visual < p.VetoVisualHigh {
		return float64(visual) * p.VetoFactor, true
	}
	return float64(visual), false
}

// Fuse combines the partial scores. A URL score above the override level is conclusive on its
// own; otherwise the weighted sum applies.
func Fuse(p FusionPolicy, in FusionInput) FusionOutcome {
	visual, vetoed := VetoVisual(p, in.Content.Score, in.Visual.Score)

	var raw float64
	override := in.URL.Score > p.OverrideURLAbove
	if override {
		raw = math.Max(float64(in.URL.Score), math.Max(float64(in.Content.Score), visual))
	} else {
		raw = p.URLWeight*float64(in.URL.Score) + p.ContentWeight*float64(in.Content.Score) + p.VisualWeight*visual
	}
	score := Clamp(int(math.Round(raw)))

	reasons := mergeReasons(in.URL.Reasons, in.Content.Reasons, in.Visual.Reasons)
	if in.ContentML != nil && *in.ContentML > p.MLStyleAbove {
		reasons = appendUnique(reasons, "ML model recognized phishing writing style")
	}
	if vetoed {
		reasons = appendUnique(reasons, "visual brand impersonation dampened (no supporting text signal)")
	}
	if override {
		reasons = appendUnique(reasons, "single overwhelming signal")
	}

	return FusionOutcome{
		Score:           score,
		Verdict:         VerdictFor(p, score, in.Sensitivity),
		Reasons:         reasons,
		VisualEffective: visual,
		Vetoed:          vetoed,
		Override:        override,
	}
}

// VerdictFor maps a final score onto a verdict. Phishing is checked before suspicious.
func VerdictFor(p FusionPolicy, score int, level Sensitivity) Verdict {
	th := p.ThresholdsFor(level)
	switch {
	case score >= th.Phishing:
		return VerdictPhishing
	case score >= th.Suspicious:
		return VerdictSuspicious
	default:
		return VerdictSafe
	}
}

func mergeReasons(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, reason := range list {
			out = appendUnique(out, reason)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func appendUnique(list []string, reason string) []string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return list
	}
	for _, existing := range list {
		if existing == reason {
			return list
		}
	}
	return append(list, reason)
}
