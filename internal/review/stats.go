package review

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned when a series is too small or too flat to
// estimate a density from.
var ErrDegenerate = errors.New("not enough spread in the data for a density estimate")

// Column summarizes one coordinate axis.
type Column struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	P25  float64 `json:"25%"`
	P50  float64 `json:"50%"`
	P75  float64 `json:"75%"`
	Max  float64 `json:"max"`
}

// Stats is the summary of a series: count plus one column per axis.
type Stats struct {
	Count int    `json:"count"`
	X     Column `json:"x"`
	Y     Column `json:"y"`
}

// Describe summarizes a series. The standard deviation is the sample
// deviation; it is 0 for fewer than two points. An empty series yields a
// zero Stats.
func Describe(s Series) Stats {
	st := Stats{Count: len(s)}
	if len(s) == 0 {
		return st
	}

	xs := make([]float64, len(s))
	ys := make([]float64, len(s))
	for i, p := range s {
		xs[i], ys[i] = p[0], p[1]
	}
	st.X = describe(xs)
	st.Y = describe(ys)
	return st
}

func describe(v []float64) Column {
	sorted := slices.Clone(v)
	slices.Sort(sorted)

	col := Column{
		Mean: stat.Mean(v, nil),
		Min:  sorted[0],
		P25:  Quantile(sorted, 0.25),
		P50:  Quantile(sorted, 0.50),
		P75:  Quantile(sorted, 0.75),
		Max:  sorted[len(sorted)-1],
	}
	if len(v) > 1 {
		col.Std = stat.StdDev(v, nil)
	}
	return col
}

// Quantile returns the q-quantile of sorted values with linear
// interpolation between the closest ranks. None of the stat.Quantile kinds
// interpolate this way.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
