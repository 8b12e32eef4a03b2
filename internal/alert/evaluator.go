// Package alert turns indicator snapshots and transition events into
// deduplicated notification events.
//
// Level rules (RSI bands, the strong overall signal) re-test true every
// cycle while the condition holds, so they are suppressed by a
// per-(symbol, kind) cooldown. Edge rules
// (crosses, price thresholds) fire at most once per actual crossing by
// construction and bypass the cooldown entirely.
package alert

import (
	"time"

	"github.com/bgorhoball/crypto-ta-bot/internal/analysis"
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// Config holds the alert rule thresholds.
type Config struct {
	RSIHigh  float64       // overbought threshold, e.g. 70
	RSILow   float64       // oversold threshold, e.g. 30
	Cooldown time.Duration // suppression window for level-triggered kinds

	// PriceLevels maps a symbol to absolute price thresholds watched for
	// crossings in either direction.
	PriceLevels map[string][]float64
}

// DefaultConfig returns conventional thresholds with a one-hour cooldown.
func DefaultConfig() Config {
	return Config{
		RSIHigh:  70,
		RSILow:   30,
		Cooldown: time.Hour,
	}
}

// State is the evaluator's per-process memory: cooldown timestamps keyed by
// "symbol|kind" and the previous cycle's close per symbol (for threshold
// edge detection).
type State struct {
	Cooldowns  map[string]time.Time `json:"cooldowns"`
	PrevPrices map[string]float64   `json:"prev_prices"`
}

// Evaluator applies the rule set. Single-writer per symbol.
type Evaluator struct {
	cfg       Config
	cooldowns map[string]time.Time
	prevPrice map[string]float64
}

// NewEvaluator creates an evaluator with empty state.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		cooldowns: make(map[string]time.Time),
		prevPrice: make(map[string]float64),
	}
}

func cooldownKey(symbol string, kind model.AlertKind) string {
	return symbol + "|" + string(kind)
}

// onCooldown reports whether a level-triggered kind fired for this symbol
// within the cooldown window. Edge-triggered kinds are never on cooldown.
func (e *Evaluator) onCooldown(symbol string, kind model.AlertKind, now time.Time) bool {
	if !kind.LevelTriggered() || e.cfg.Cooldown <= 0 {
		return false
	}
	last, ok := e.cooldowns[cooldownKey(symbol, kind)]
	return ok && now.Sub(last) < e.cfg.Cooldown
}

// Evaluate runs every rule independently against one cycle's snapshot and
// transition events; several may fire at once. price is the latest close.
// Emitted level alerts refresh their cooldown timestamp; the previous-price
// memory is advanced exactly once, at the end. suppressed counts level
// alerts swallowed by an active cooldown.
func (e *Evaluator) Evaluate(snap model.IndicatorSnapshot, transitions []model.TransitionEvent, price float64, now time.Time) (out []model.AlertEvent, suppressed int) {
	emit := func(kind model.AlertKind, value float64, rising bool) {
		if e.onCooldown(snap.Symbol, kind, now) {
			suppressed++
			return
		}
		if kind.LevelTriggered() {
			e.cooldowns[cooldownKey(snap.Symbol, kind)] = now
		}
		out = append(out, model.AlertEvent{
			Kind:   kind,
			Symbol: snap.Symbol,
			Price:  price,
			Value:  value,
			Rising: rising,
			Time:   now,
		})
	}

	if snap.RSI.Ready {
		if snap.RSI.Value > e.cfg.RSIHigh {
			emit(model.AlertRsiOverbought, snap.RSI.Value, false)
		} else if snap.RSI.Value < e.cfg.RSILow {
			emit(model.AlertRsiOversold, snap.RSI.Value, false)
		}
	}

	for _, tr := range transitions {
		switch tr {
		case model.GoldenCross:
			emit(model.AlertGoldenCross, snap.SMAFast.Value-snap.SMASlow.Value, true)
		case model.DeathCross:
			emit(model.AlertDeathCross, snap.SMAFast.Value-snap.SMASlow.Value, false)
		case model.MacdBullishCross:
			emit(model.AlertMacdBullishCross, snap.MACDHistogram.Value, true)
		case model.MacdBearishCross:
			emit(model.AlertMacdBearishCross, snap.MACDHistogram.Value, false)
		}
	}

	// A strongly aligned overall signal is notification-worthy on its own,
	// even when no individual rule fired. Level-triggered: it stays true
	// across cycles while the alignment holds, so the cooldown applies.
	switch analysis.Overall(snap, transitions) {
	case analysis.SignalStrongBuy:
		emit(model.AlertStrongSignal, 0, true)
	case analysis.SignalStrongSell:
		emit(model.AlertStrongSignal, 0, false)
	}

	if prev, ok := e.prevPrice[snap.Symbol]; ok {
		for _, level := range e.cfg.PriceLevels[snap.Symbol] {
			if prev < level && price >= level {
				emit(model.AlertPriceThreshold, level, true)
			} else if prev > level && price <= level {
				emit(model.AlertPriceThreshold, level, false)
			}
		}
	}
	e.prevPrice[snap.Symbol] = price

	return out, suppressed
}

// Snapshot serializes the evaluator state for checkpoint persistence.
func (e *Evaluator) Snapshot() State {
	st := State{
		Cooldowns:  make(map[string]time.Time, len(e.cooldowns)),
		PrevPrices: make(map[string]float64, len(e.prevPrice)),
	}
	for k, v := range e.cooldowns {
		st.Cooldowns[k] = v
	}
	for k, v := range e.prevPrice {
		st.PrevPrices[k] = v
	}
	return st
}

// Restore replaces the evaluator state from a checkpoint. Nil maps are
// tolerated (fresh checkpoint).
func (e *Evaluator) Restore(st State) {
	e.cooldowns = make(map[string]time.Time)
	e.prevPrice = make(map[string]float64)
	for k, v := range st.Cooldowns {
		e.cooldowns[k] = v
	}
	for k, v := range st.PrevPrices {
		e.prevPrice[k] = v
	}
}
