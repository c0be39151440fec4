package speed

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentiles summarises a speed sample set. Values carry whatever unit
// the samples were in.
type Percentiles struct {
	P50 float64
	P85 float64
	P95 float64
}

// ComputePercentiles returns the 50th, 85th and 95th percentile of the
// samples. The 85th percentile is the conventional traffic engineering
// reference speed. Returns zeros for an empty sample set.
func ComputePercentiles(samples []float64) Percentiles {
	if len(samples) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return Percentiles{
		P50: stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P85: stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P95: stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

// Bucket is one bin of a speed distribution.
type Bucket struct {
	LowKMH  float64
	HighKMH float64
	Count   int
	Percent float64
}

// Distribution bins km/h samples into fixed-width buckets from zero to
// the maximum observed speed. Empty trailing buckets are not produced;
// an empty sample set yields no buckets.
func Distribution(samplesKMH []float64, binWidth float64) []Bucket {
	if len(samplesKMH) == 0 || binWidth <= 0 {
		return nil
	}

	maxSpeed := samplesKMH[0]
	for _, s := range samplesKMH {
		if s > maxSpeed {
			maxSpeed = s
		}
	}
	nBins := int(maxSpeed/binWidth) + 1

	counts := make([]int, nBins)
	for _, s := range samplesKMH {
		idx := int(s / binWidth)
		if idx >= nBins {
			idx = nBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	total := float64(len(samplesKMH))
	buckets := make([]Bucket, nBins)
	for i, c := range counts {
		buckets[i] = Bucket{
			LowKMH:  float64(i) * binWidth,
			HighKMH: float64(i+1) * binWidth,
			Count:   c,
			Percent: 100 * float64(c) / total,
		}
	}
	return buckets
}

// Mean returns the arithmetic mean of the samples, or 0 for none.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}
