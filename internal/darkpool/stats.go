package darkpool

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// dispersionEpsilon guards against baselines that are numerically flat.
const dispersionEpsilon = 1e-9

const (
	methodMAD    = "mad"
	methodIQR    = "iqr"
	methodStdDev = "stddev"
)

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// resolveDispersion walks the robust-to-classical chain: scaled MAD,
// then the IQR-derived estimate, then the sample standard deviation.
// Exhausting the chain means the baseline carries no usable spread.
func resolveDispersion(baseline []float64, center float64) (float64, string, error) {
	deviations := make([]float64, len(baseline))
	for i, v := range baseline {
		deviations[i] = math.Abs(v - center)
	}
	if mad := median(deviations); mad > dispersionEpsilon {
		return 1.4826 * mad, methodMAD, nil
	}

	if iqr := interquartileRange(baseline); iqr > dispersionEpsilon {
		return iqr / 1.349, methodIQR, nil
	}

	if len(baseline) >= 2 {
		if sd := stat.StdDev(baseline, nil); sd > dispersionEpsilon {
			return sd, methodStdDev, nil
		}
	}
	return 0, "", fmt.Errorf("baseline dispersion resolved to zero")
}

func interquartileRange(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.75) - quantile(sorted, 0.25)
}

// quantile interpolates linearly between order statistics; input must be
// sorted ascending.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
