package neat

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// clamp restricts a value to a given range [minVal, maxVal].
func clamp(value, minVal, maxVal float64) float64 {
	return math.Max(minVal, math.Min(value, maxVal))
}

// --- Statistical Functions ---

// Mean calculates the average of a slice of float64 values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return stat.Mean(values, nil)
}

// Stdev calculates the sample standard deviation of a slice of float64 values.
func Stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0 // Standard deviation is undefined for less than 2 values
	}
	return stat.StdDev(values, nil)
}

// MaxFloat calculates the maximum value in a slice of float64 values.
// Returns negative infinity if the slice is empty.
func MaxFloat(values []float64) float64 {
	maxVal := math.Inf(-1)
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// MinFloat calculates the minimum value in a slice of float64 values.
// Returns positive infinity if the slice is empty.
func MinFloat(values []float64) float64 {
	minVal := math.Inf(1)
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
	}
	return minVal
}

// weightedIndex picks an index with probability proportional to weights.
// Negative weights are shifted so the smallest becomes zero; if nothing has
// positive weight the pick is uniform.
func weightedIndex(r *rand.Rand, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	shift := 0.0
	if lo := MinFloat(weights); lo < 0 {
		shift = -lo
	}
	total := 0.0
	for _, w := range weights {
		total += w + shift
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return r.Intn(len(weights))
	}
	x := r.Float64() * total
	for i, w := range weights {
		x -= w + shift
		if x < 0 {
			return i
		}
	}
	return len(weights) - 1
}
