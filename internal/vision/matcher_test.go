package vision

import (
	"image"
	"math"
	"testing"
)

func TestSelectWinner(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		brand      string
		ok         bool
	}{
		{"none", nil, "", false},
		{"single", []Candidate{{Brand: "paypal", Inliers: 11}}, "paypal", true},
		{"ambiguous", []Candidate{{Brand: "paypal", Inliers: 12}, {Brand: "apple", Inliers: 11}}, "", false},
		{"margin", []Candidate{{Brand: "apple", Inliers: 11}, {Brand: "paypal", Inliers: 17}}, "paypal", true},
		{"margin boundary", []Candidate{{Brand: "paypal", Inliers: 15}, {Brand: "apple", Inliers: 10}}, "", false},
		{"absolute", []Candidate{{Brand: "paypal", Inliers: 41}, {Brand: "apple", Inliers: 39}}, "paypal", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			winner, ok := SelectWinner(tc.candidates, 1.5, 40)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v got %v", tc.ok, ok)
			}
			if winner.Brand != tc.brand {
				t.Fatalf("expected %q got %q", tc.brand, winner.Brand)
			}
		})
	}
}

func TestHamming(t *testing.T) {
	a := Descriptor{0, 0, 0, 0}
	b := Descriptor{0xff, 1, 0, 1 << 63}
	if got := Hamming(a, b); got != 10 {
		t.Fatalf("expected 10 got %d", got)
	}
	if Hamming(b, b) != 0 {
		t.Fatalf("expected identical descriptors at distance 0")
	}
}

func TestRatioMatches(t *testing.T) {
	query := []Feature{{Descriptor: Descriptor{0b1111}}, {Descriptor: Descriptor{0b1}}}
	train := []Feature{
		{Descriptor: Descriptor{0b1111}},
		{Descriptor: Descriptor{0xffff}},
		{Descriptor: Descriptor{0b11}},
	}
	matches := RatioMatches(query, train, 0.75)
	// query 0: exact match at distance 0, runner-up at 2 -> kept.
	// query 1: best 1 (0b11) vs second 3 (0b1111) -> 1 < 2.25 kept.
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches got %d", len(matches))
	}
	if matches[0].Train != 0 || matches[1].Train != 2 {
		t.Fatalf("unexpected matches %+v", matches)
	}

	ambiguous := RatioMatches([]Feature{{Descriptor: Descriptor{0b10}}}, []Feature{{Descriptor: Descriptor{0b11}}, {Descriptor: Descriptor{0b110}}}, 0.75)
	if len(ambiguous) != 0 {
		t.Fatalf("equal distances must fail the ratio test")
	}
	if RatioMatches(query, train[:1], 0.75) != nil {
		t.Fatalf("expected no matches with fewer than two train descriptors")
	}
}

func TestEstimateHomography(t *testing.T) {
	var src, dst []Point
	for i := 0; i < 40; i++ {
		p := Point{X: float64(10 + (i*37)%150), Y: float64(5 + (i*53)%120)}
		src = append(src, p)
		dst = append(dst, Point{X: p.X*1.1 + 100, Y: p.Y*1.1 + 60})
	}
	for i := 0; i < 10; i++ {
		src = append(src, Point{X: float64(i * 13), Y: float64(200 - i*7)})
		dst = append(dst, Point{X: float64(500 - i*31), Y: float64(i * 29)})
	}

	h, inliers, err := EstimateHomography(src, dst, 5.0, 2000, 1, nil)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if inliers < 40 || inliers > 42 {
		t.Fatalf("expected about 40 inliers got %d", inliers)
	}
	p, ok := h.Apply(Point{X: 50, Y: 50})
	if !ok || math.Abs(p.X-155) > 0.5 || math.Abs(p.Y-115) > 0.5 {
		t.Fatalf("unexpected projection %+v", p)
	}

	_, again, _ := EstimateHomography(src, dst, 5.0, 2000, 1, nil)
	if again != inliers {
		t.Fatalf("expected deterministic inlier count")
	}

	if _, _, err := EstimateHomography(src[:3], dst[:3], 5.0, 10, 1, nil); err == nil {
		t.Fatalf("expected error with fewer than four points")
	}
}

func TestHomographyPlausible(t *testing.T) {
	shape := Shape{Width: 160, Height: 160, MinScale: 0.125, MaxScale: 4, Stretch: 2.5}
	square := [4]Point{{0, 0}, {160, 0}, {160, 160}, {0, 160}}
	fit := func(dst [4]Point) Homography {
		t.Helper()
		h, ok := solveDLT(square, dst)
		if !ok {
			t.Fatalf("solve %v", dst)
		}
		return h
	}

	tests := []struct {
		name string
		h    Homography
		want bool
	}{
		{"identity", Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}, true},
		{"scaled and shifted", Homography{1.1, 0, 100, 0, 1.1, 60, 0, 0, 1}, true},
		{"mild perspective", fit([4]Point{{10, 12}, {170, 4}, {176, 168}, {6, 160}}), true},
		{"mirrored", Homography{-1, 0, 300, 0, 1, 0, 0, 0, 1}, false},
		{"collapsed", Homography{0.05, 0, 10, 0, 0.05, 10, 0, 0, 1}, false},
		{"stretched", Homography{2, 0, 0, 0, 0.5, 0, 0, 0, 1}, false},
		{"folded sliver", fit([4]Point{{132, 181}, {145, 183}, {131, 179}, {158, 183}}), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.h.Plausible(shape); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestEstimateHomographyRejectsImplausibleModels(t *testing.T) {
	var src, dst []Point
	for i := 0; i < 30; i++ {
		p := Point{X: float64(10 + (i*37)%150), Y: float64(5 + (i*53)%120)}
		src = append(src, p)
		dst = append(dst, Point{X: p.X + 40, Y: p.Y + 20})
	}
	if _, _, err := EstimateHomography(src, dst, 5.0, 500, 1, func(Homography) bool { return false }); err == nil {
		t.Fatalf("expected no homography when every model is rejected")
	}
	shape := Shape{Width: 160, Height: 160, MinScale: 0.125, MaxScale: 4, Stretch: 2.5}
	_, inliers, err := EstimateHomography(src, dst, 5.0, 500, 1, func(h Homography) bool { return h.Plausible(shape) })
	if err != nil || inliers != 30 {
		t.Fatalf("expected 30 inliers got %d (%v)", inliers, err)
	}
}

func TestExtractorDeterministic(t *testing.T) {
	extractor := NewExtractor(scoringVisualPolicy())
	logo := syntheticLogo(7, 160, 8)
	first := extractor.Extract(logo)
	second := extractor.Extract(logo)
	if len(first) == 0 {
		t.Fatalf("expected features on a block pattern")
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical feature counts")
	}
	for i := range first {
		if first[i].Descriptor != second[i].Descriptor || first[i].X != second[i].X {
			t.Fatalf("feature %d differs between runs", i)
		}
	}

	flat := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range flat.Pix {
		flat.Pix[i] = 200
	}
	if got := extractor.Extract(flat); len(got) != 0 {
		t.Fatalf("expected no features on a flat image got %d", len(got))
	}
}
