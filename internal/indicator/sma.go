package indicator

// SMA returns the arithmetic mean of the last period closes.
// ok is false when the series is shorter than period.
func SMA(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}
