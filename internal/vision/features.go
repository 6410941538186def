package vision

import (
	"image"
	"math"
	"math/rand"
	"sort"

	"phishguard/backend/internal/scoring"
)

const (
	// orientationRadius bounds the intensity-centroid patch.
	orientationRadius = 15
	// patternRadius bounds the unrotated test-pair offsets.
	patternRadius = 13
	// sampleHalf is the half width of the box smoothing each test sample.
	sampleHalf = 2
	// border keeps every rotated sample inside the image.
	border     = 22
	harrisK    = 0.04
	harrisHalf = 3
	fastArc    = 9
)

// Keypoint is a corner in level-0 coordinates.
type Keypoint struct {
	X        float64
	Y        float64
	Angle    float64
	Response float64
	Level    int
}

// Descriptor is a 256-bit binary test string.
type Descriptor [4]uint64

// Feature pairs a keypoint with its descriptor.
type Feature struct {
	Keypoint
	Descriptor Descriptor
}

// Extractor detects oriented corners across a scale pyramid and describes them with rotated
// binary intensity tests.
type Extractor struct {
	maxFeatures int
	levels      int
	scale       float64
	threshold   int
}

// NewExtractor builds an extractor from the visual policy.
func NewExtractor(policy scoring.VisualPolicy) *Extractor {
	levels := policy.PyramidLevels
	if levels < 1 {
		levels = 1
	}
	scale := policy.ScaleFactor
	if scale <= 1 {
		scale = 1.2
	}
	return &Extractor{
		maxFeatures: policy.MaxFeatures,
		levels:      levels,
		scale:       scale,
		threshold:   policy.FastThreshold,
	}
}

var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

type testPair struct {
	x1, y1, x2, y2 float64
}

var briefPattern = buildPattern(0x0b5e55ed)

func buildPattern(seed int64) [256]testPair {
	rng := rand.New(rand.NewSource(seed))
	sigma := float64(2*patternRadius+5) / 5
	sample := func() float64 {
		for {
			v := math.Round(rng.NormFloat64() * sigma)
			if v >= -patternRadius && v <= patternRadius {
				return v
			}
		}
	}
	var out [256]testPair
	for i := range out {
		out[i] = testPair{x1: sample(), y1: sample(), x2: sample(), y2: sample()}
	}
	return out
}

// Extract returns at most maxFeatures features ranked by corner response. The output is fully
// determined by the pixels of img.
func (e *Extractor) Extract(img *image.Gray) []Feature {
	if img == nil {
		return nil
	}
	img = ToGray(img)
	var features []Feature
	level := img
	factor := 1.0
	for l := 0; l < e.levels; l++ {
		if l > 0 {
			factor *= e.scale
			w := int(math.Round(float64(img.Rect.Dx()) / factor))
			h := int(math.Round(float64(img.Rect.Dy()) / factor))
			if w < 2*border+1 || h < 2*border+1 {
				break
			}
			level = resize(img, w, h)
		}
		features = append(features, e.extractLevel(level, l, factor)...)
	}

	sort.SliceStable(features, func(i, j int) bool {
		a, b := features[i].Keypoint, features[j].Keypoint
		if a.Response != b.Response {
			return a.Response > b.Response
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	if e.maxFeatures > 0 && len(features) > e.maxFeatures {
		features = features[:e.maxFeatures]
	}
	return features
}

func (e *Extractor) extractLevel(img *image.Gray, level int, factor float64) []Feature {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 2*border+1 || h < 2*border+1 {
		return nil
	}
	scores := fastScores(img, e.threshold)
	integral := integralImage(img)

	var out []Feature
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			s := scores[y*w+x]
			if s == 0 || !isLocalMax(scores, w, x, y) {
				continue
			}
			angle := orientation(img, x, y)
			out = append(out, Feature{
				Keypoint: Keypoint{
					X:        float64(x) * factor,
					Y:        float64(y) * factor,
					Angle:    angle,
					Response: harris(img, x, y),
					Level:    level,
				},
				Descriptor: describe(integral, w+1, x, y, angle),
			})
		}
	}
	return out
}

// fastScores runs the FAST-9 segment test on every pixel inside the border. A non-zero score is
// the summed contrast of the circle pixels beyond the threshold.
func fastScores(img *image.Gray, threshold int) []int {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pix, stride := img.Pix, img.Stride
	scores := make([]int, w*h)
	var ring [16]int
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			c := int(pix[y*stride+x])
			for i, off := range fastCircle {
				ring[i] = int(pix[(y+off[1])*stride+x+off[0]])
			}
			if !segmentTest(ring, c, threshold) {
				continue
			}
			score := 0
			for _, p := range ring {
				if d := p - c; d > threshold {
					score += d - threshold
				} else if d < -threshold {
					score += -d - threshold
				}
			}
			scores[y*w+x] = score
		}
	}
	return scores
}

func segmentTest(ring [16]int, c, threshold int) bool {
	brighter, darker := 0, 0
	for i := 0; i < 16+fastArc-1; i++ {
		p := ring[i%16]
		switch {
		case p > c+threshold:
			brighter++
			darker = 0
		case p < c-threshold:
			darker++
			brighter = 0
		default:
			brighter, darker = 0, 0
		}
		if brighter >= fastArc || darker >= fastArc {
			return true
		}
	}
	return false
}

// isLocalMax keeps a pixel when it beats the neighbours before it in raster order and is not
// beaten by the ones after it, so plateaus keep exactly one pixel.
func isLocalMax(scores []int, w, x, y int) bool {
	s := scores[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if before && n >= s {
				return false
			}
			if !before && n > s {
				return false
			}
		}
	}
	return true
}

func harris(img *image.Gray, x, y int) float64 {
	pix, stride := img.Pix, img.Stride
	var sxx, syy, sxy float64
	for dy := -harrisHalf; dy <= harrisHalf; dy++ {
		for dx := -harrisHalf; dx <= harrisHalf; dx++ {
			px, py := x+dx, y+dy
			ix := float64(int(pix[py*stride+px+1]) - int(pix[py*stride+px-1]))
			iy := float64(int(pix[(py+1)*stride+px]) - int(pix[(py-1)*stride+px]))
			sxx += ix * ix
			syy += iy * iy
			sxy += ix * iy
		}
	}
	trace := sxx + syy
	return sxx*syy - sxy*sxy - harrisK*trace*trace
}

// orientation is the angle of the intensity centroid of the disc around (x,y).
func orientation(img *image.Gray, x, y int) float64 {
	pix, stride := img.Pix, img.Stride
	var m01, m10 float64
	for dy := -orientationRadius; dy <= orientationRadius; dy++ {
		span := int(math.Sqrt(float64(orientationRadius*orientationRadius - dy*dy)))
		row := (y + dy) * stride
		for dx := -span; dx <= span; dx++ {
			v := float64(pix[row+x+dx])
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// integralImage returns a (w+1)x(h+1) summed-area table. Sums wrap on very large images but
// box sums taken from it stay exact modulo 2^32.
func integralImage(img *image.Gray) []uint32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	stride := w + 1
	out := make([]uint32, stride*(h+1))
	for y := 0; y < h; y++ {
		var row uint32
		for x := 0; x < w; x++ {
			row += uint32(img.Pix[y*img.Stride+x])
			out[(y+1)*stride+x+1] = out[y*stride+x+1] + row
		}
	}
	return out
}

func boxSum(integral []uint32, stride, x, y int) uint32 {
	x0, y0 := x-sampleHalf, y-sampleHalf
	x1, y1 := x+sampleHalf+1, y+sampleHalf+1
	return integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
}

func describe(integral []uint32, stride, x, y int, angle float64) Descriptor {
	cos, sin := math.Cos(angle), math.Sin(angle)
	var d Descriptor
	for i, pair := range briefPattern {
		ax := x + int(math.Round(cos*pair.x1-sin*pair.y1))
		ay := y + int(math.Round(sin*pair.x1+cos*pair.y1))
		bx := x + int(math.Round(cos*pair.x2-sin*pair.y2))
		by := y + int(math.Round(sin*pair.x2+cos*pair.y2))
		if boxSum(integral, stride, ax, ay) < boxSum(integral, stride, bx, by) {
			d[i/64] |= 1 << uint(i%64)
		}
	}
	return d
}
