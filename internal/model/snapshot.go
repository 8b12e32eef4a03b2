package model

import "time"

// IndicatorValue is a single computed indicator value. Ready is false when
// the window was too short for the indicator's lookback, in which case Value
// is meaningless and dependent rules must not fire.
type IndicatorValue struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// IndicatorSnapshot holds all indicators computed from one window in one
// cycle. Immutable once produced; fields are named by role, the configured
// periods live in indicator.Config.
type IndicatorSnapshot struct {
	Symbol string    `json:"symbol"`
	AsOf   time.Time `json:"as_of"`
	Price  float64   `json:"price"` // latest close in the window

	RSI      IndicatorValue `json:"rsi"`
	SMAFast  IndicatorValue `json:"sma_fast"`
	SMASlow  IndicatorValue `json:"sma_slow"`
	EMA      IndicatorValue `json:"ema"`
	SMATrend IndicatorValue `json:"sma_trend"`

	MACDLine      IndicatorValue `json:"macd_line"`
	MACDSignal    IndicatorValue `json:"macd_signal"`
	MACDHistogram IndicatorValue `json:"macd_histogram"`
}
