package transition

import (
	"testing"
	"time"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

func snapWith(smaFast, smaSlow, macdLine, macdSignal float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Symbol:     "BTCUSDT",
		AsOf:       time.Now().UTC(),
		SMAFast:    model.IndicatorValue{Value: smaFast, Ready: true},
		SMASlow:    model.IndicatorValue{Value: smaSlow, Ready: true},
		MACDLine:   model.IndicatorValue{Value: macdLine, Ready: true},
		MACDSignal: model.IndicatorValue{Value: macdSignal, Ready: true},
	}
}

func hasEvent(events []model.TransitionEvent, want model.TransitionEvent) bool {
	for _, e := range events {
		if e == want {
			return true
		}
	}
	return false
}

func TestDetector_NoEventOnFirstCycle(t *testing.T) {
	d := NewDetector()
	if events := d.Observe(snapWith(110, 100, 1, 0.5)); len(events) != 0 {
		t.Errorf("first cycle must emit nothing, got %v", events)
	}
}

func TestDetector_GoldenCrossFiresOnce(t *testing.T) {
	d := NewDetector()

	// cycle k: fast below slow
	d.Observe(snapWith(99, 100, -1, -0.5))

	// cycle k+1: fast crosses above slow, exactly one GoldenCross
	events := d.Observe(snapWith(101, 100, -1, -0.5))
	if !hasEvent(events, model.GoldenCross) {
		t.Fatalf("expected GoldenCross, got %v", events)
	}

	// cycle k+2: fast still above slow, level persists, no new event
	if events := d.Observe(snapWith(102, 100, -1, -0.5)); hasEvent(events, model.GoldenCross) {
		t.Errorf("golden cross must not re-fire on a persisting level: %v", events)
	}
}

func TestDetector_DeathCross(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(101, 100, 1, 0.5))
	events := d.Observe(snapWith(99, 100, 1, 0.5))
	if !hasEvent(events, model.DeathCross) {
		t.Errorf("expected DeathCross, got %v", events)
	}
}

func TestDetector_MacdCrosses(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(100, 100, -0.4, -0.2)) // macd below signal

	events := d.Observe(snapWith(100, 100, 0.3, 0.1))
	if !hasEvent(events, model.MacdBullishCross) {
		t.Fatalf("expected MacdBullishCross, got %v", events)
	}

	events = d.Observe(snapWith(100, 100, -0.1, 0.1))
	if !hasEvent(events, model.MacdBearishCross) {
		t.Errorf("expected MacdBearishCross, got %v", events)
	}
}

func TestDetector_BothCrossesSameCycle(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(99, 100, -0.4, -0.2))
	events := d.Observe(snapWith(101, 100, 0.3, 0.1))
	if !hasEvent(events, model.GoldenCross) || !hasEvent(events, model.MacdBullishCross) {
		t.Errorf("both crosses should fire in one cycle, got %v", events)
	}
}

func TestDetector_NotReadySkipsAndPreservesState(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(99, 100, -1, -0.5))

	// Window shrank (e.g. restart): SMA pair not computable this cycle.
	notReady := snapWith(0, 0, -1, -0.5)
	notReady.SMAFast.Ready = false
	notReady.SMASlow.Ready = false
	if events := d.Observe(notReady); len(events) != 0 {
		t.Fatalf("not-ready input must not emit, got %v", events)
	}

	// Once readable again, the cross against the preserved sign still fires.
	events := d.Observe(snapWith(101, 100, -1, -0.5))
	if !hasEvent(events, model.GoldenCross) {
		t.Errorf("expected GoldenCross after not-ready gap, got %v", events)
	}
}

func TestDetector_SnapshotRestore(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(99, 100, -1, -0.5))

	restored := NewDetector()
	restored.Restore(d.Snapshot())

	// The restored detector remembers the sign from before the "restart".
	events := restored.Observe(snapWith(101, 100, -1, -0.5))
	if !hasEvent(events, model.GoldenCross) {
		t.Errorf("expected GoldenCross from restored state, got %v", events)
	}
}

func TestDetector_SymbolsIndependent(t *testing.T) {
	d := NewDetector()
	d.Observe(snapWith(99, 100, -1, -0.5))

	other := snapWith(101, 100, 1, 0.5)
	other.Symbol = "ETHUSDT"
	if events := d.Observe(other); len(events) != 0 {
		t.Errorf("fresh symbol must emit nothing, got %v", events)
	}
}
