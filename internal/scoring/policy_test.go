package scoring

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestDefaultPolicyValid(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestLoadPolicyEmptyPath(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.URL.MalformedScore != 50 {
		t.Fatalf("expected default malformed score 50 got %d", policy.URL.MalformedScore)
	}
}

func TestLoadPolicyOverlay(t *testing.T) {
	path := writePolicy(t, `{"fusion": {"veto_factor": 0.5}, "url": {"suspicious_tlds": ["zip"]}}`)
	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.Fusion.VetoFactor != 0.5 {
		t.Fatalf("expected veto factor 0.5 got %.2f", policy.Fusion.VetoFactor)
	}
	if policy.Fusion.OverrideURLAbove != 80 {
		t.Fatalf("expected untouched fields to keep defaults, got %d", policy.Fusion.OverrideURLAbove)
	}
	if len(policy.URL.SuspiciousTLDs) != 1 || policy.URL.SuspiciousTLDs[0] != "zip" {
		t.Fatalf("expected TLD list replaced, got %v", policy.URL.SuspiciousTLDs)
	}
	if th := policy.Fusion.ThresholdsFor(SensitivityStrict); th.Phishing != 65 {
		t.Fatalf("expected default strict thresholds, got %+v", th)
	}
}

func TestLoadPolicyInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `{"fusion":`},
		{"ratio", `{"visual": {"ratio_test": 1.5}}`},
		{"inliers", `{"visual": {"min_inliers": 0}}`},
		{"inverted thresholds", `{"fusion": {"thresholds": {"balanced": {"phishing": 40, "suspicious": 60}}}}`},
		{"non monotone", `{"fusion": {"thresholds": {"strict": {"phishing": 90, "suspicious": 50}}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadPolicy(writePolicy(t, tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseSensitivity(t *testing.T) {
	tests := map[string]Sensitivity{
		"strict":      SensitivityStrict,
		" Permissive": SensitivityPermissive,
		"balanced":    SensitivityBalanced,
		"":            SensitivityBalanced,
		"paranoid":    SensitivityBalanced,
	}
	for input, want := range tests {
		if got := ParseSensitivity(input); got != want {
			t.Fatalf("%q: expected %s got %s", input, want, got)
		}
	}
}
