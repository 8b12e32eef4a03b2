// Package analysis classifies market state from an indicator snapshot:
// short/long trend direction, support/resistance levels, and an overall
// signal used in notification reports.
package analysis

import (
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// Trend is a directional classification.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Signal is the overall verdict for one cycle.
type Signal string

const (
	SignalStrongBuy  Signal = "strong_buy"
	SignalBuy        Signal = "buy"
	SignalHold       Signal = "hold"
	SignalSell       Signal = "sell"
	SignalStrongSell Signal = "strong_sell"
)

// Levels holds support and resistance derived from the recent window.
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// FindLevels returns the lowest low (support) and highest high (resistance)
// over the last lookback candles. ok is false for an empty window. A
// lookback of 0 or beyond the window uses the whole window.
func FindLevels(candles []model.Candle, lookback int) (Levels, bool) {
	if len(candles) == 0 {
		return Levels{}, false
	}
	if lookback <= 0 || lookback > len(candles) {
		lookback = len(candles)
	}
	recent := candles[len(candles)-lookback:]
	lv := Levels{Support: recent[0].Low, Resistance: recent[0].High}
	for _, c := range recent[1:] {
		if c.Low < lv.Support {
			lv.Support = c.Low
		}
		if c.High > lv.Resistance {
			lv.Resistance = c.High
		}
	}
	return lv, true
}

// ShortTrend classifies the short-horizon trend: price above both the fast
// and slow SMA is bullish, below both is bearish, anything mixed is neutral.
func ShortTrend(snap model.IndicatorSnapshot) Trend {
	if !snap.SMAFast.Ready || !snap.SMASlow.Ready {
		return TrendNeutral
	}
	switch {
	case snap.Price > snap.SMAFast.Value && snap.Price > snap.SMASlow.Value:
		return TrendBullish
	case snap.Price < snap.SMAFast.Value && snap.Price < snap.SMASlow.Value:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// LongTrend classifies the long-horizon trend from price vs the trend SMA.
func LongTrend(snap model.IndicatorSnapshot) Trend {
	if !snap.SMATrend.Ready {
		return TrendNeutral
	}
	switch {
	case snap.Price > snap.SMATrend.Value:
		return TrendBullish
	case snap.Price < snap.SMATrend.Value:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// Overall scores one cycle into a five-level signal. Crosses weigh heaviest,
// then RSI extremes, then trend agreement and MACD histogram direction.
func Overall(snap model.IndicatorSnapshot, transitions []model.TransitionEvent) Signal {
	score := 0

	for _, tr := range transitions {
		switch tr {
		case model.GoldenCross, model.MacdBullishCross:
			score += 2
		case model.DeathCross, model.MacdBearishCross:
			score -= 2
		}
	}

	if snap.RSI.Ready {
		if snap.RSI.Value < 30 {
			score += 2 // oversold: contrarian buy pressure
		} else if snap.RSI.Value > 70 {
			score -= 2
		}
	}

	switch ShortTrend(snap) {
	case TrendBullish:
		score++
	case TrendBearish:
		score--
	}
	switch LongTrend(snap) {
	case TrendBullish:
		score++
	case TrendBearish:
		score--
	}

	if snap.MACDHistogram.Ready {
		if snap.MACDHistogram.Value > 0 {
			score++
		} else if snap.MACDHistogram.Value < 0 {
			score--
		}
	}

	switch {
	case score >= 4:
		return SignalStrongBuy
	case score >= 2:
		return SignalBuy
	case score <= -4:
		return SignalStrongSell
	case score <= -2:
		return SignalSell
	default:
		return SignalHold
	}
}
