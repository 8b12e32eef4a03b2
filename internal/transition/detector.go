// Package transition detects edge-triggered indicator crossings between
// consecutive cycles.
//
// The detector remembers, per symbol, the sign of (smaFast - smaSlow) and of
// (macdLine - macdSignal) from the previous cycle and emits an event only
// when a sign flips. Levels alone never produce events.
package transition

import (
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// State is the per-symbol memory needed for edge detection. Primed flags
// distinguish "no prior observation" from a stored zero sign.
type State struct {
	SMASign    int  `json:"sma_sign"` // -1, 0, +1
	SMAPrimed  bool `json:"sma_primed"`
	MACDSign   int  `json:"macd_sign"`
	MACDPrimed bool `json:"macd_primed"`
}

// Detector holds transition state for all symbols. Single-writer per
// symbol; the scheduler guarantees one in-flight cycle per symbol.
type Detector struct {
	states map[string]*State
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{states: make(map[string]*State)}
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Observe compares the snapshot against the stored signs and returns any
// crossing events, then stores the new signs. The state update happens
// exactly once, after comparison. Events mark the transition into this
// cycle, never the level itself. No events on the first observation for a
// symbol, and an indicator pair that is not Ready neither emits nor updates
// its stored sign.
func (d *Detector) Observe(snap model.IndicatorSnapshot) []model.TransitionEvent {
	st, exists := d.states[snap.Symbol]
	if !exists {
		st = &State{}
		d.states[snap.Symbol] = st
	}

	var events []model.TransitionEvent

	if snap.SMAFast.Ready && snap.SMASlow.Ready {
		s := sign(snap.SMAFast.Value - snap.SMASlow.Value)
		if st.SMAPrimed {
			if st.SMASign <= 0 && s > 0 {
				events = append(events, model.GoldenCross)
			} else if st.SMASign >= 0 && s < 0 {
				events = append(events, model.DeathCross)
			}
		}
		st.SMASign = s
		st.SMAPrimed = true
	}

	if snap.MACDLine.Ready && snap.MACDSignal.Ready {
		s := sign(snap.MACDLine.Value - snap.MACDSignal.Value)
		if st.MACDPrimed {
			if st.MACDSign <= 0 && s > 0 {
				events = append(events, model.MacdBullishCross)
			} else if st.MACDSign >= 0 && s < 0 {
				events = append(events, model.MacdBearishCross)
			}
		}
		st.MACDSign = s
		st.MACDPrimed = true
	}

	return events
}

// Snapshot serializes all per-symbol state for checkpoint persistence.
func (d *Detector) Snapshot() map[string]State {
	out := make(map[string]State, len(d.states))
	for sym, st := range d.states {
		out[sym] = *st
	}
	return out
}

// Restore replaces the detector state from a checkpoint.
func (d *Detector) Restore(states map[string]State) {
	d.states = make(map[string]*State, len(states))
	for sym, st := range states {
		s := st
		d.states[sym] = &s
	}
}
