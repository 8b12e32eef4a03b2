package model

import "time"

// TransitionEvent is an edge-triggered indicator crossing detected between
// two consecutive cycles.
type TransitionEvent string

const (
	GoldenCross      TransitionEvent = "golden_cross"
	DeathCross       TransitionEvent = "death_cross"
	MacdBullishCross TransitionEvent = "macd_bullish_cross"
	MacdBearishCross TransitionEvent = "macd_bearish_cross"
)

// AlertKind classifies an alert event.
type AlertKind string

const (
	AlertRsiOverbought    AlertKind = "rsi_overbought"
	AlertRsiOversold      AlertKind = "rsi_oversold"
	AlertGoldenCross      AlertKind = "golden_cross"
	AlertDeathCross       AlertKind = "death_cross"
	AlertMacdBullishCross AlertKind = "macd_bullish_cross"
	AlertMacdBearishCross AlertKind = "macd_bearish_cross"
	AlertPriceThreshold   AlertKind = "price_threshold"
	AlertStrongSignal     AlertKind = "strong_signal"
)

// LevelTriggered reports whether the kind re-fires while a condition
// persists and is therefore subject to cooldown suppression. Edge-triggered
// kinds fire at most once per actual crossing and are never suppressed.
func (k AlertKind) LevelTriggered() bool {
	return k == AlertRsiOverbought || k == AlertRsiOversold || k == AlertStrongSignal
}

// AlertEvent is one notification-worthy condition detected in a cycle.
type AlertEvent struct {
	Kind   AlertKind `json:"kind"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Value  float64   `json:"value"`  // rule-specific: RSI level, SMA delta, threshold crossed
	Rising bool      `json:"rising"` // for price thresholds: crossed upward
	Time   time.Time `json:"time"`
}
