package indicator

// emaSeries computes the causal EMA series over closes.
// The first computable point is at index period-1 and is seeded with the SMA
// of the first period closes; thereafter ema_t = close_t*α + ema_{t-1}*(1-α)
// with α = 2/(period+1). Indices before period-1 are left as 0 and must not
// be read. Returns nil when the series is too short.
func emaSeries(closes []float64, period int) []float64 {
	if period < 1 || len(closes) < period {
		return nil
	}
	out := make([]float64, len(closes))
	alpha := 2.0 / float64(period+1)

	seed := 0.0
	for _, c := range closes[:period] {
		seed += c
	}
	out[period-1] = seed / float64(period)

	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// EMA returns the exponential moving average of closes at the final point.
// ok is false when the series is shorter than period.
func EMA(closes []float64, period int) (float64, bool) {
	series := emaSeries(closes, period)
	if series == nil {
		return 0, false
	}
	return series[len(series)-1], true
}
