package indicator

// MACD computes the MACD line, signal line and histogram at the final point.
//
// line = EMA(fast) - EMA(slow); signal = EMA(signalPeriod) over the MACD
// line series. The signal line is itself a smoothed series, so the line is
// built causally from index slow-1 onward and the signal EMA runs over that
// sub-series, SMA-seeded like any other EMA. Needs slow+signalPeriod-1
// closes for the first complete value.
func MACD(closes []float64, fast, slow, signalPeriod int) (line, signal, histogram float64, ok bool) {
	if fast < 1 || slow <= fast || signalPeriod < 1 {
		return 0, 0, 0, false
	}
	if len(closes) < slow+signalPeriod-1 {
		return 0, 0, 0, false
	}

	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// MACD line is defined wherever both EMAs are.
	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdSeries = append(macdSeries, fastSeries[i]-slowSeries[i])
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if signalSeries == nil {
		return 0, 0, 0, false
	}

	line = macdSeries[len(macdSeries)-1]
	signal = signalSeries[len(signalSeries)-1]
	return line, signal, line - signal, true
}
