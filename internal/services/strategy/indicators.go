package strategy

import "math"

// Indicator helpers shared by the registered strategies. All functions
// return one value per input bar, math.NaN() where the indicator is not
// yet defined. Working buffers are local to one run.

// EMA computes an exponential moving average with alpha = 2/(n+1),
// seeded at the first defined input. NaN inputs carry the previous
// value forward.
func EMA(src []float64, n int) []float64 {
	out := make([]float64, len(src))
	alpha := 2.0 / (float64(n) + 1.0)
	prev := math.NaN()
	for i, v := range src {
		if math.IsNaN(v) {
			out[i] = prev
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// ATR computes Wilder-smoothed average true range.
// TR_0 = H_0 - L_0; ATR_i = (1/n)*TR_i + (1-1/n)*ATR_{i-1}.
func ATR(high, low, closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	k := 1.0 / float64(n)
	atr := high[0] - low[0]
	out[0] = atr
	for i := 1; i < len(closes); i++ {
		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
		atr = k*tr + (1-k)*atr
		out[i] = atr
	}
	return out
}

// XSL is the linear-regression slope: an ordinary-least-squares fit of
// the trailing window, reported as the difference between the fitted
// value at the current bar and at the previous bar.
func XSL(src []float64, length int) []float64 {
	out := make([]float64, len(src))
	for i := range out {
		out[i] = math.NaN()
	}
	if length < 2 {
		return out
	}

	// Fixed x = 0..length-1 makes the x-side sums constants.
	xMean := float64(length-1) / 2.0
	var xVar float64
	for x := 0; x < length; x++ {
		d := float64(x) - xMean
		xVar += d * d
	}

	for i := length - 1; i < len(src); i++ {
		var yMean float64
		defined := true
		for j := 0; j < length; j++ {
			v := src[i-length+1+j]
			if math.IsNaN(v) {
				defined = false
				break
			}
			yMean += v
		}
		if !defined {
			continue
		}
		yMean /= float64(length)

		var cov float64
		for j := 0; j < length; j++ {
			cov += (float64(j) - xMean) * (src[i-length+1+j] - yMean)
		}
		out[i] = cov / xVar // fitted(i) - fitted(i-1) is the slope
	}
	return out
}

// XSA is the cumulative weighted moving average used by the volume-wave
// family: y_i = (src_i*weight + y_{i-1}*(length-weight)) / length.
func XSA(src []float64, length, weight int) []float64 {
	out := make([]float64, len(src))
	prev := math.NaN()
	l := float64(length)
	w := float64(weight)
	for i, v := range src {
		if math.IsNaN(v) {
			out[i] = prev
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = (v*w + prev*(l-w)) / l
		}
		out[i] = prev
	}
	return out
}

// crossAbove reports whether a crosses above b at index i.
func crossAbove(a, b []float64, i int) bool {
	if i == 0 {
		return false
	}
	if math.IsNaN(a[i]) || math.IsNaN(b[i]) || math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) {
		return false
	}
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// crossBelow reports whether a crosses below b at index i.
func crossBelow(a, b []float64, i int) bool {
	if i == 0 {
		return false
	}
	if math.IsNaN(a[i]) || math.IsNaN(b[i]) || math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) {
		return false
	}
	return a[i] < b[i] && a[i-1] >= b[i-1]
}
