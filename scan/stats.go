package scan

import (
	"math"
)

// Summary holds the statistics of one sample set.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrEmptySampleSet
	}

	sum := 0.0
	for _, x := range xs {
		sum += x
	}

	return sum / float64(len(xs)), nil
}

// PopulationStdDev returns sqrt(sum((x - mean)^2) / n).
func PopulationStdDev(xs []float64) (float64, error) {
	mean, err := Mean(xs)
	if err != nil {
		return 0, err
	}

	sq := 0.0
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}

	return math.Sqrt(sq / float64(len(xs))), nil
}

// Summarize returns the count, mean and population standard deviation of xs.
func Summarize(xs []float64) (Summary, error) {
	mean, err := Mean(xs)
	if err != nil {
		return Summary{}, err
	}
	stddev, err := PopulationStdDev(xs)
	if err != nil {
		return Summary{}, err
	}

	return Summary{N: len(xs), Mean: mean, StdDev: stddev}, nil
}
