// Package indicator provides deterministic technical indicator calculations
// over candle windows.
//
// All computations are pure functions of the window: same candles in, same
// values out. No state is kept between cycles and no external calls are
// made. Indicators whose lookback exceeds the window length come back with
// Ready=false rather than a guessed value.
package indicator

import (
	"time"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// Config holds the indicator periods for one engine.
type Config struct {
	RSIPeriod  int // e.g. 14
	SMAFast    int // e.g. 20
	SMASlow    int // e.g. 50
	EMAPeriod  int // e.g. 20
	SMATrend   int // e.g. 200
	MACDFast   int // e.g. 12
	MACDSlow   int // e.g. 26
	MACDSignal int // e.g. 9
}

// DefaultConfig returns the conventional period set.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:  14,
		SMAFast:    20,
		SMASlow:    50,
		EMAPeriod:  20,
		SMATrend:   200,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// MinWindow returns the window capacity needed so every configured
// indicator can become Ready.
func (c Config) MinWindow() int {
	max := c.RSIPeriod + 1
	for _, n := range []int{c.SMAFast, c.SMASlow, c.EMAPeriod, c.SMATrend, c.MACDSlow + c.MACDSignal - 1} {
		if n > max {
			max = n
		}
	}
	return max
}

// Engine computes an IndicatorSnapshot from a candle window.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine for the given period configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's period configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute derives all configured indicators from the window. The window
// must be openTime-ordered (the window store guarantees this). asOf is the
// cycle timestamp carried on the snapshot.
func (e *Engine) Compute(symbol string, candles []model.Candle, asOf time.Time) model.IndicatorSnapshot {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	snap := model.IndicatorSnapshot{
		Symbol: symbol,
		AsOf:   asOf,
	}
	if len(closes) > 0 {
		snap.Price = closes[len(closes)-1]
	}

	snap.RSI.Value, snap.RSI.Ready = RSI(closes, e.cfg.RSIPeriod)
	snap.SMAFast.Value, snap.SMAFast.Ready = SMA(closes, e.cfg.SMAFast)
	snap.SMASlow.Value, snap.SMASlow.Ready = SMA(closes, e.cfg.SMASlow)
	snap.EMA.Value, snap.EMA.Ready = EMA(closes, e.cfg.EMAPeriod)
	snap.SMATrend.Value, snap.SMATrend.Ready = SMA(closes, e.cfg.SMATrend)

	line, sig, hist, ok := MACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	snap.MACDLine = model.IndicatorValue{Value: line, Ready: ok}
	snap.MACDSignal = model.IndicatorValue{Value: sig, Ready: ok}
	snap.MACDHistogram = model.IndicatorValue{Value: hist, Ready: ok}

	return snap
}
