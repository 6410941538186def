package scoring

import (
	"math"
	"testing"
)

func partial(signal string, score int, reasons ...string) PartialScore {
	return NewPartialScore(signal, score, reasons...)
}

func TestFuse(t *testing.T) {
	policy := DefaultPolicy().Fusion

	tests := []struct {
		name        string
		url         int
		content     int
		visual      int
		sensitivity Sensitivity
		score       int
		verdict     Verdict
	}{
		{"all clean", 0, 0, 0, SensitivityBalanced, 0, VerdictSafe},
		{"vetoed visual", 0, 0, 65, SensitivityBalanced, 6, VerdictSafe},
		{"supported visual", 0, 10, 70, SensitivityBalanced, 26, VerdictSafe},
		{"url override", 85, 10, 0, SensitivityBalanced, 85, VerdictPhishing},
		{"weighted balanced", 50, 80, 90, SensitivityBalanced, 77, VerdictPhishing},
		{"weighted permissive", 50, 80, 90, SensitivityPermissive, 77, VerdictSuspicious},
		{"content only", 15, 100, 0, SensitivityStrict, 53, VerdictSuspicious},
		{"visual high not vetoed", 0, 0, 90, SensitivityStrict, 27, VerdictSafe},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome := Fuse(policy, FusionInput{
				URL:         partial(SignalURL, tc.url),
				Content:     partial(SignalContent, tc.content),
				Visual:      partial(SignalVisual, tc.visual),
				Sensitivity: tc.sensitivity,
			})
			if outcome.Score != tc.score {
				t.Fatalf("expected score %d got %d", tc.score, outcome.Score)
			}
			if outcome.Verdict != tc.verdict {
				t.Fatalf("expected verdict %s got %s", tc.verdict, outcome.Verdict)
			}
		})
	}
}

func TestVetoVisual(t *testing.T) {
	policy := DefaultPolicy().Fusion

	effective, vetoed := VetoVisual(policy, 0, 65)
	if !vetoed || math.Abs(effective-19.5) > 1e-9 {
		t.Fatalf("expected vetoed 19.5 got %.2f (vetoed=%v)", effective, vetoed)
	}
	if effective >= 65 {
		t.Fatalf("vetoed contribution must be lower than the raw score")
	}

	for _, tc := range []struct{ content, visual int }{{5, 65}, {0, 50}, {0, 80}, {0, 95}} {
		if _, vetoed := VetoVisual(policy, tc.content, tc.visual); vetoed {
			t.Fatalf("content=%d visual=%d must not be vetoed", tc.content, tc.visual)
		}
	}
}

func TestFuseReasons(t *testing.T) {
	policy := DefaultPolicy().Fusion
	ml := 82
	outcome := Fuse(policy, FusionInput{
		URL:         partial(SignalURL, 90, "suspicious TLD .tk", "unencrypted connection (http)"),
		Content:     partial(SignalContent, 3, "no suspicious phrases"),
		Visual:      partial(SignalVisual, 60, "brand paypal on unlisted host", "suspicious TLD .tk"),
		ContentML:   &ml,
		Sensitivity: SensitivityBalanced,
	})

	expected := []string{
		"suspicious TLD .tk",
		"unencrypted connection (http)",
		"no suspicious phrases",
		"brand paypal on unlisted host",
		"ML model recognized phishing writing style",
		"visual brand impersonation dampened (no supporting text signal)",
		"single overwhelming signal",
	}
	if len(outcome.Reasons) != len(expected) {
		t.Fatalf("expected %d reasons got %v", len(expected), outcome.Reasons)
	}
	for i := range expected {
		if outcome.Reasons[i] != expected[i] {
			t.Fatalf("reason %d: expected %q got %q", i, expected[i], outcome.Reasons[i])
		}
	}
	if outcome.Score != 90 || !outcome.Override {
		t.Fatalf("expected override score 90 got %d", outcome.Score)
	}
}

func TestVerdictThresholds(t *testing.T) {
	policy := DefaultPolicy().Fusion
	tests := []struct {
		score   int
		level   Sensitivity
		verdict Verdict
	}{
		{65, SensitivityStrict, VerdictPhishing},
		{64, SensitivityStrict, VerdictSuspicious},
		{35, SensitivityStrict, VerdictSuspicious},
		{34, SensitivityStrict, VerdictSafe},
		{75, SensitivityBalanced, VerdictPhishing},
		{74, SensitivityBalanced, VerdictSuspicious},
		{45, SensitivityBalanced, VerdictSuspicious},
		{44, SensitivityBalanced, VerdictSafe},
		{85, SensitivityPermissive, VerdictPhishing},
		{60, SensitivityPermissive, VerdictSuspicious},
		{59, SensitivityPermissive, VerdictSafe},
		{80, Sensitivity("unknown"), VerdictPhishing},
	}
	for _, tc := range tests {
		if got := VerdictFor(policy, tc.score, tc.level); got != tc.verdict {
			t.Fatalf("score %d %s: expected %s got %s", tc.score, tc.level, tc.verdict, got)
		}
	}
}

func TestSensitivityMonotonic(t *testing.T) {
	policy := DefaultPolicy().Fusion
	for score := 0; score <= 100; score++ {
		strict := VerdictFor(policy, score, SensitivityStrict)
		balanced := VerdictFor(policy, score, SensitivityBalanced)
		permissive := VerdictFor(policy, score, SensitivityPermissive)
		if !strict.AtLeast(balanced) || !balanced.AtLeast(permissive) {
			t.Fatalf("score %d: strict=%s balanced=%s permissive=%s", score, strict, balanced, permissive)
		}
	}
}

func TestFuseRange(t *testing.T) {
	policy := DefaultPolicy().Fusion
	for _, url := range []int{0, 50, 81, 100} {
		for _, content := range []int{0, 4, 50, 100} {
			for _, visual := range []int{0, 51, 79, 95, 100} {
				outcome := Fuse(policy, FusionInput{
					URL:     partial(SignalURL, url),
					Content: partial(SignalContent, content),
					Visual:  partial(SignalVisual, visual),
				})
				if outcome.Score < 0 || outcome.Score > 100 {
					t.Fatalf("score out of range: %d", outcome.Score)
				}
			}
		}
	}
}
