package vision

import "math/bits"

// Match is a correspondence between a query feature and a train feature.
type Match struct {
	Query    int
	Train    int
	Distance int
}

// Hamming returns the number of differing bits.
func Hamming(a, b Descriptor) int {
	return bits.OnesCount64(a[0]^b[0]) + bits.OnesCount64(a[1]^b[1]) +
		bits.OnesCount64(a[2]^b[2]) + bits.OnesCount64(a[3]^b[3])
}

// RatioMatches finds the two nearest train descriptors for every query descriptor by brute force
// and keeps the nearest only when it is clearly better than the second nearest.
func RatioMatches(query, train []Feature, ratio float64) []Match {
	if len(train) < 2 {
		return nil
	}
	var out []Match
	for qi := range query {
		best, second := -1, -1
		bestDist, secondDist := 1<<30, 1<<30
		for ti := range train {
			d := Hamming(query[qi].Descriptor, train[ti].Descriptor)
			switch {
			case d < bestDist:
				second, secondDist = best, bestDist
				best, bestDist = ti, d
			case d < secondDist:
				second, secondDist = ti, d
			}
		}
		if best < 0 || second < 0 {
			continue
		}
		if float64(bestDist) < ratio*float64(secondDist) {
			out = append(out, Match{Query: qi, Train: best, Distance: bestDist})
		}
	}
	return out
}
