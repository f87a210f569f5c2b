package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"sprout-pricing/internal/storage"
)

const secondsPerDay = 24 * 60 * 60

// dayOrdinal is the number of whole days between 1970-01-01 UTC and t's calendar day.
func dayOrdinal(t time.Time) float64 {
	return float64(storage.NormalizeDate(t).Unix() / secondsPerDay)
}

type line struct {
	intercept float64
	slope     float64
}

func (l line) at(x float64) float64 {
	return l.intercept + l.slope*x
}

// fitLine returns the least-squares line of y on x together with Σ(x-mean(x))².
// When every x is identical the slope is undefined; the fit degrades to a flat
// line through mean(y) and sxx is 0.
func fitLine(x, y []float64) (line, float64) {
	meanX := stat.Mean(x, nil)
	sxx := 0.0
	for _, v := range x {
		d := v - meanX
		sxx += d * d
	}
	if sxx == 0 {
		return line{intercept: stat.Mean(y, nil)}, 0
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return line{intercept: intercept, slope: slope}, sxx
}

// residualStd is the sample standard deviation of residuals with n-2 degrees of freedom.
func residualStd(x, y []float64, fit line) float64 {
	n := len(x)
	if n <= 2 {
		return 0
	}
	ss := 0.0
	for i := range x {
		e := y[i] - fit.at(x[i])
		ss += e * e
	}
	return math.Sqrt(ss / float64(n-2))
}

// predictionInterval bounds a new individual observation at xNext, two-tailed at
// the given confidence. Zero residual spread or zero x spread collapse it to the
// point prediction.
func predictionInterval(x, y []float64, fit line, sxx, xNext, confidence float64) (float64, float64) {
	predicted := fit.at(xNext)

	std := residualStd(x, y, fit)
	if std == 0 {
		return predicted, predicted
	}
	if sxx == 0 {
		return predicted, predicted
	}

	n := float64(len(x))
	dx := xNext - stat.Mean(x, nil)
	se := std * math.Sqrt(1+1/n+dx*dx/sxx)

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 2}.Quantile((1 + confidence) / 2)
	margin := t * se
	return predicted - margin, predicted + margin
}

// MovingAverages is the simple rolling mean over window consecutive prices.
// It yields len(prices)-window+1 values, or a copy of prices when there are
// fewer prices than the window.
func MovingAverages(prices []float64, window int) []float64 {
	if window <= 0 || len(prices) < window {
		out := make([]float64, len(prices))
		copy(out, prices)
		return out
	}

	out := make([]float64, 0, len(prices)-window+1)
	for i := 0; i+window <= len(prices); i++ {
		out = append(out, stat.Mean(prices[i:i+window], nil))
	}
	return out
}

// round rounds half away from zero at the given decimal places.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func roundAll(values []float64, places int32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = round(v, places)
	}
	return out
}
