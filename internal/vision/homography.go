package vision

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrNoHomography is returned when no sample yields a usable transform.
var ErrNoHomography = errors.New("no homography")

const ransacConfidence = 0.995

// Point is an image coordinate.
type Point struct {
	X float64
	Y float64
}

// Homography is a row-major 3x3 projective transform.
type Homography [9]float64

// Apply maps p through h. It reports false for points sent to infinity.
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

func (h Homography) mul(o Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = h[r*3]*o[c] + h[r*3+1]*o[3+c] + h[r*3+2]*o[6+c]
		}
	}
	return out
}

// Shape bounds a reference rectangle must keep under a verified transform. Scales apply to the
// projected side lengths; Stretch caps the ratio between the horizontal and vertical scale.
type Shape struct {
	Width    float64
	Height   float64
	MinScale float64
	MaxScale float64
	Stretch  float64
}

// Plausible reports whether h maps the reference rectangle onto a convex quad with the same
// orientation and a size inside the shape bounds. Folded, mirrored and collapsed models fail.
func (h Homography) Plausible(s Shape) bool {
	if s.Width <= 0 || s.Height <= 0 {
		return false
	}
	corners := [4]Point{{0, 0}, {s.Width, 0}, {s.Width, s.Height}, {0, s.Height}}
	var q [4]Point
	for i, c := range corners {
		if h[6]*c.X+h[7]*c.Y+h[8] <= 1e-12 {
			return false
		}
		q[i], _ = h.Apply(c)
	}
	var area float64
	for i := 0; i < 4; i++ {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		if (b.X-a.X)*(c.Y-b.Y)-(b.Y-a.Y)*(c.X-b.X) <= 0 {
			return false
		}
		area += a.X*b.Y - b.X*a.Y
	}
	ratio := area / 2 / (s.Width * s.Height)
	if ratio < s.MinScale*s.MinScale || ratio > s.MaxScale*s.MaxScale {
		return false
	}
	sx := (distance(q[0], q[1]) + distance(q[3], q[2])) / (2 * s.Width)
	sy := (distance(q[0], q[3]) + distance(q[1], q[2])) / (2 * s.Height)
	if sx < s.MinScale || sy < s.MinScale || sx > s.MaxScale || sy > s.MaxScale {
		return false
	}
	return s.Stretch <= 0 || math.Max(sx, sy) <= s.Stretch*math.Min(sx, sy)
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EstimateHomography fits src->dst with RANSAC over 4-point samples and returns the model with
// the most correspondences whose reprojection error is within tolerance. Sample models rejected by
// accept are never scored; a nil accept takes every model. The sampler is seeded so identical
// inputs always produce identical results.
func EstimateHomography(src, dst []Point, tolerance float64, maxIterations int, seed int64, accept func(Homography) bool) (Homography, int, error) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return Homography{}, 0, ErrNoHomography
	}
	if maxIterations <= 0 {
		maxIterations = 2000
	}
	rng := rand.New(rand.NewSource(seed))
	tol2 := tolerance * tolerance

	var best Homography
	bestInliers := 0
	iterations := maxIterations
	var sampleSrc, sampleDst [4]Point
	for i := 0; i < iterations; i++ {
		idx := rng.Perm(n)[:4]
		for k, j := range idx {
			sampleSrc[k], sampleDst[k] = src[j], dst[j]
		}
		h, ok := solveDLT(sampleSrc, sampleDst)
		if !ok || (accept != nil && !accept(h)) {
			continue
		}
		count := countInliers(h, src, dst, tol2)
		if count > bestInliers {
			best, bestInliers = h, count
			if needed := requiredIterations(count, n); needed < iterations {
				iterations = needed
			}
		}
	}
	if bestInliers < 4 {
		return Homography{}, 0, ErrNoHomography
	}
	return best, bestInliers, nil
}

func countInliers(h Homography, src, dst []Point, tol2 float64) int {
	count := 0
	for i := range src {
		p, ok := h.Apply(src[i])
		if !ok {
			continue
		}
		dx, dy := p.X-dst[i].X, p.Y-dst[i].Y
		if dx*dx+dy*dy <= tol2 {
			count++
		}
	}
	return count
}

func requiredIterations(inliers, total int) int {
	w := float64(inliers) / float64(total)
	p := math.Pow(w, 4)
	if p >= 1-1e-12 {
		return 1
	}
	if p <= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(math.Log(1-ransacConfidence) / math.Log(1-p)))
}

// solveDLT computes the exact homography through four correspondences using normalized
// coordinates. Degenerate samples are rejected.
func solveDLT(src, dst [4]Point) (Homography, bool) {
	if degenerate(src) || degenerate(dst) {
		return Homography{}, false
	}
	ts, ns := normalization(src)
	td, nd := normalization(dst)

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -x * u, -y * u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -x * v, -y * v})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return Homography{}, false
	}
	var hn Homography
	for i := 0; i < 8; i++ {
		hn[i] = sol.AtVec(i)
	}
	hn[8] = 1

	h := inverseNormalization(td).mul(hn).mul(ts)
	if math.Abs(h[8]) < 1e-12 {
		return Homography{}, false
	}
	for i := range h {
		h[i] /= h[8]
	}
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Homography{}, false
		}
	}
	return h, true
}

func degenerate(pts [4]Point) bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				cross := (pts[j].X-pts[i].X)*(pts[k].Y-pts[i].Y) - (pts[j].Y-pts[i].Y)*(pts[k].X-pts[i].X)
				if math.Abs(cross) < 1e-6 {
					return true
				}
			}
		}
	}
	return false
}

// normalization moves the centroid to the origin and scales the mean distance to sqrt(2).
func normalization(pts [4]Point) (Homography, [4]Point) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4
	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= 4
	s := math.Sqrt2 / mean
	var out [4]Point
	for i, p := range pts {
		out[i] = Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	return Homography{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}, out
}

func inverseNormalization(t Homography) Homography {
	s := t[0]
	return Homography{1 / s, 0, -t[2] / s, 0, 1 / s, -t[5] / s, 0, 0, 1}
}
