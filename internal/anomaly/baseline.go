package anomaly

import (
	"math"
	"sort"
)

// Baseline summarizes the historical distribution a value is scored against.
// Not every field is meaningful for every algorithm: zscore uses Mean/StdDev,
// iqr uses Q1/Q3, mad uses Median/MAD.
type Baseline struct {
	Mean        float64
	StdDev      float64
	Q1          float64
	Q3          float64
	Median      float64
	MAD         float64
	SampleCount int
}

// IQR returns the interquartile range
func (b Baseline) IQR() float64 {
	return b.Q3 - b.Q1
}

// BaselineFromValues computes all baseline statistics from a value sample.
// Mean and variance use Welford's online algorithm so the pass stays
// numerically stable for large samples.
func BaselineFromValues(values []float64) Baseline {
	b := Baseline{SampleCount: len(values)}
	if len(values) == 0 {
		return b
	}

	var mean, m2 float64
	for i, v := range values {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}
	b.Mean = mean
	if len(values) > 1 {
		b.StdDev = math.Sqrt(m2 / float64(len(values)-1))
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	b.Median = quantile(sorted, 0.5)
	b.Q1 = quantile(sorted, 0.25)
	b.Q3 = quantile(sorted, 0.75)

	// Median absolute deviation from the median
	devs := make([]float64, len(sorted))
	for i, v := range sorted {
		devs[i] = math.Abs(v - b.Median)
	}
	sort.Float64s(devs)
	b.MAD = quantile(devs, 0.5)

	return b
}

// quantile interpolates the q-th quantile of a sorted sample
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
