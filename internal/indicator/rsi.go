package indicator

// RSI computes the Relative Strength Index using Wilder's smoothing method.
//
// Average gain and loss are seeded with the simple mean of the first period
// deltas, then smoothed with α = 1/period. Needs period+1 closes for the
// first value. RSI is 100 when the average loss is exactly 0, and 0 when
// the average gain is exactly 0 while losses exist.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder's smoothing: avg = (prevAvg*(period-1) + delta) / period
	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100.0, true
	}
	if avgGain == 0 {
		return 0.0, true
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), true
}
