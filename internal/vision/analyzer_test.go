package vision

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"phishguard/backend/internal/scoring"
)

func TestAnalyzerFeatureMatching(t *testing.T) {
	analyzer, screenshot := newTestAnalyzer(t, nil)
	encoded := dataURL(t, screenshot)

	tests := []struct {
		name    string
		url     string
		text    string
		verdict scoring.Verdict
		score   int
	}{
		{"impersonation", "http://paypal-account-check.example.net/login", "", scoring.VerdictPhishing, 95},
		{"impersonation with credentials text", "https://secure-pay.example.org/", "Enter your password to continue", scoring.VerdictPhishing, 95},
		{"official host", "https://www.paypal.com/signin", "", scoring.VerdictSafe, 0},
		{"trusted tld", "https://portal.tax.gov/", "", scoring.VerdictSafe, 0},
		{"no sensitive text", "https://blog.example.net/", "Welcome to our gardening newsletter", scoring.VerdictSafe, 0},
		{"path spoof", "https://example.net/www.paypal.com/", "", scoring.VerdictPhishing, 95},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := analyzer.Analyze(context.Background(), encoded, tc.url, tc.text)
			if result.Verdict != tc.verdict {
				t.Fatalf("expected verdict %s got %s (%v)", tc.verdict, result.Verdict, result.Reasons)
			}
			if result.Score != tc.score {
				t.Fatalf("expected score %d got %d", tc.score, result.Score)
			}
			if result.Brand != "paypal" {
				t.Fatalf("expected paypal brand got %q", result.Brand)
			}
			if result.Method != MethodFeatures {
				t.Fatalf("expected feature method got %q", result.Method)
			}
			if result.Inliers <= scoring.DefaultPolicy().Visual.MinInliers {
				t.Fatalf("expected verified inliers got %d", result.Inliers)
			}
		})
	}
}

func TestAnalyzerNoBrand(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t, nil)
	for _, seed := range []uint32{12345, 9, 10, 3, 21, 4242} {
		unrelated := embed(syntheticLogo(seed, 160, 8), 400, 300, 120, 70)
		result := analyzer.Analyze(context.Background(), dataURL(t, unrelated), "http://example.net/", "")
		if result.Verdict != scoring.VerdictSafe || result.Score != 0 {
			t.Fatalf("seed %d: expected safe 0 got %s %d (%s, %d inliers)", seed, result.Verdict, result.Score, result.Brand, result.Inliers)
		}
		if last := result.Reasons[len(result.Reasons)-1]; last != "no brand match" {
			t.Fatalf("seed %d: unexpected reasons %v", seed, result.Reasons)
		}
	}
}

func TestAnalyzerDeterministic(t *testing.T) {
	analyzer, screenshot := newTestAnalyzer(t, nil)
	first := analyzer.AnalyzeImage(context.Background(), screenshot, "http://example.net/", "")
	second := analyzer.AnalyzeImage(context.Background(), screenshot, "http://example.net/", "")
	if first.Inliers != second.Inliers || first.Score != second.Score || first.Brand != second.Brand {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestAnalyzerInvalidInput(t *testing.T) {
	analyzer, screenshot := newTestAnalyzer(t, nil)

	garbage := analyzer.Analyze(context.Background(), "data:image/png;base64,not-an-image", "http://example.net/", "")
	if garbage.Verdict != scoring.VerdictError || garbage.Score != 0 {
		t.Fatalf("expected error verdict got %s %d", garbage.Verdict, garbage.Score)
	}

	policy := scoring.DefaultPolicy().Visual
	policy.MaxImageBytes = 64
	small := NewAnalyzer(policy, analyzer.Brands(), nil)
	oversized := small.Analyze(context.Background(), dataURL(t, screenshot), "http://example.net/", "")
	if oversized.Verdict != scoring.VerdictError || oversized.Reasons[0] != "image too large" {
		t.Fatalf("expected too large error got %s %v", oversized.Verdict, oversized.Reasons)
	}
}

type stubDetector struct {
	detections []Detection
	err        error
	panic      bool
	calls      int
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	s.calls++
	if s.panic {
		panic("detector exploded")
	}
	return s.detections, s.err
}

func TestAnalyzerDetector(t *testing.T) {
	stub := &stubDetector{detections: []Detection{
		{Brand: "Microsoft", Confidence: 0.62},
		{Brand: "paypal", Confidence: 0.91},
		{Brand: "apple", Confidence: 0.3},
	}}
	analyzer, screenshot := newTestAnalyzer(t, stub)
	if !analyzer.DetectorEnabled() {
		t.Fatalf("expected detector strategy")
	}

	result := analyzer.AnalyzeImage(context.Background(), screenshot, "http://login-paypal.example.net/", "")
	if result.Method != MethodDetector || result.Brand != "paypal" || result.Verdict != scoring.VerdictPhishing {
		t.Fatalf("unexpected detector result %+v", result)
	}

	stub.detections = []Detection{{Brand: "microsoft", Confidence: 0.8}}
	result = analyzer.AnalyzeImage(context.Background(), screenshot, "https://login.live.com/", "")
	if result.Verdict != scoring.VerdictSafe {
		t.Fatalf("expected whitelisted microsoft host to be safe, got %+v", result)
	}

	stub.detections = []Detection{{Brand: "apple", Confidence: 0.2}}
	result = analyzer.AnalyzeImage(context.Background(), screenshot, "http://example.net/", "")
	if result.Verdict != scoring.VerdictSafe || result.Brand != "" {
		t.Fatalf("detections below the floor must be ignored, got %+v", result)
	}
}

func TestAnalyzerDetectorFallback(t *testing.T) {
	stub := &stubDetector{err: errors.New("inference timeout")}
	analyzer, screenshot := newTestAnalyzer(t, stub)
	result := analyzer.AnalyzeImage(context.Background(), screenshot, "http://example.net/", "")
	if result.Method != MethodFeatures || result.Brand != "paypal" {
		t.Fatalf("expected feature matching fallback, got %+v", result)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one detector call got %d", stub.calls)
	}
}

func TestAnalyzerRecoversPanics(t *testing.T) {
	analyzer, screenshot := newTestAnalyzer(t, &stubDetector{panic: true})
	result := analyzer.AnalyzeImage(context.Background(), screenshot, "http://example.net/", "")
	if result.Verdict != scoring.VerdictError || result.Score != 0 {
		t.Fatalf("expected error verdict got %+v", result)
	}
}

func TestFilterDetectionsTopFraction(t *testing.T) {
	detections := []Detection{
		{Brand: "paypal", Confidence: 0.9, Box: &Box{Y1: 10, Y2: 50}},
		{Brand: "apple", Confidence: 0.95, Box: &Box{Y1: 400, Y2: 480}},
		{Brand: "google", Confidence: 0.7},
	}
	filtered := FilterDetections(detections, 0.5, 0.3, 1000)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 detections got %d", len(filtered))
	}
	dominant, ok := Dominant(filtered)
	if !ok || dominant.Brand != "paypal" {
		t.Fatalf("expected paypal dominant got %+v", dominant)
	}
	if _, ok := Dominant(nil); ok {
		t.Fatalf("expected no dominant detection for empty input")
	}
}

func TestDecideSensitivePhraseWordBoundaries(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t, nil)
	det := Detection{Brand: "paypal", Inliers: 50}
	tests := []struct {
		text    string
		verdict scoring.Verdict
	}{
		{"Download the classnotes from the blogin archive", scoring.VerdictSafe},
		{"Recipes with a discvvery twist", scoring.VerdictSafe},
		{"Please login to continue", scoring.VerdictPhishing},
		{"Enter your SSN below", scoring.VerdictPhishing},
		{"Card CVV:", scoring.VerdictPhishing},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			result := analyzer.Decide(det, MethodFeatures, "http://example.net/", tc.text)
			if result.Verdict != tc.verdict {
				t.Fatalf("expected %s got %s (%v)", tc.verdict, result.Verdict, result.Reasons)
			}
		})
	}
}

func TestDecideHostOnly(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t, nil)
	det := Detection{Brand: "paypal", Inliers: 50}
	for _, url := range []string{
		"https://evil.example/?next=https://paypal.com",
		"https://paypal.com.evil.example/",
		"not a url",
	} {
		result := analyzer.Decide(det, MethodFeatures, url, "")
		if result.Verdict != scoring.VerdictPhishing {
			t.Fatalf("%s: expected phishing got %s", url, result.Verdict)
		}
		if !strings.Contains(result.Reasons[0], "paypal") {
			t.Fatalf("expected brand in reason, got %v", result.Reasons)
		}
	}
}
