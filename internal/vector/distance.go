package vector

import "math"

// L2Distance returns the Euclidean distance between a and b. Both must have the same length.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
