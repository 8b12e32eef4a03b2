package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgorhoball/crypto-ta-bot/internal/alert"
	"github.com/bgorhoball/crypto-ta-bot/internal/indicator"
	"github.com/bgorhoball/crypto-ta-bot/internal/marketdata/binance"
	"github.com/bgorhoball/crypto-ta-bot/internal/metrics"
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
	"github.com/bgorhoball/crypto-ta-bot/internal/notification"
	"github.com/bgorhoball/crypto-ta-bot/internal/transition"
	"github.com/bgorhoball/crypto-ta-bot/internal/window"
)

// Prometheus collectors register globally; one set for the whole package.
var testProm = metrics.New()

// testIndicators keeps lookbacks tiny so scenarios stay hand-checkable.
var testIndicators = indicator.Config{
	RSIPeriod:  2,
	SMAFast:    2,
	SMASlow:    3,
	EMAPeriod:  2,
	SMATrend:   4,
	MACDFast:   2,
	MACDSlow:   3,
	MACDSignal: 2,
}

var testBase = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testCandles(symbol string, startIdx int, closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Symbol:   symbol,
			OpenTime: testBase.Add(time.Duration(startIdx+i) * 5 * time.Minute),
			Open:     c, High: c, Low: c, Close: c,
			Volume: 1,
		}
	}
	return out
}

// fakeFetcher serves canned batches per symbol, one per call.
type fakeFetcher struct {
	mu      sync.Mutex
	batches map[string][][]model.Candle
	calls   map[string]int
	limits  map[string][]int
	errs    map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		batches: make(map[string][][]model.Candle),
		calls:   make(map[string]int),
		limits:  make(map[string][]int),
		errs:    make(map[string]error),
	}
}

func (f *fakeFetcher) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	f.limits[symbol] = append(f.limits[symbol], limit)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	b := f.batches[symbol]
	if len(b) == 0 {
		return nil, nil
	}
	out := b[0]
	if len(b) > 1 {
		f.batches[symbol] = b[1:]
	}
	return out, nil
}

func (f *fakeFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeFetcher) lastLimit(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls := f.limits[symbol]
	if len(ls) == 0 {
		return 0
	}
	return ls[len(ls)-1]
}

func (f *fakeFetcher) setErr(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, symbol)
		return
	}
	f.errs[symbol] = err
}

// fakeNotifier records every delivered alert.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Alert
	fail bool
}

func (n *fakeNotifier) Send(ctx context.Context, a notification.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("boom")
	}
	n.sent = append(n.sent, a)
	return nil
}

func (n *fakeNotifier) alerts() []notification.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Alert(nil), n.sent...)
}

// fakeHist records emitted alert events by kind.
type fakeHist struct {
	mu     sync.Mutex
	events []model.AlertEvent
}

func (h *fakeHist) WriteSnapshot(ctx context.Context, snap model.IndicatorSnapshot) error { return nil }
func (h *fakeHist) WriteAlert(ctx context.Context, ev model.AlertEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeHist) kinds() []model.AlertKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.AlertKind, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

// fakeState is an in-memory checkpoint store.
type fakeState struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *fakeState) SaveCheckpoint(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *fakeState) LoadCheckpoint(ctx context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, false, nil
	}
	return s.data, true, nil
}

func newTestScheduler(t *testing.T, symbols []string, f Fetcher, n notification.Notifier, h History, st StateStore) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Symbols:      symbols,
		Interval:     "5m",
		PollPeriod:   time.Minute,
		FetchTimeout: time.Second,
		FetchRetries: 2,
		RetryBackoff: time.Millisecond,
	}, Deps{
		Windows:   window.NewStore(testIndicators.MinWindow()),
		Engine:    indicator.NewEngine(testIndicators),
		Detector:  transition.NewDetector(),
		Evaluator: alert.NewEvaluator(alert.DefaultConfig()),
		Fetcher:   f,
		Notifier:  n,
		State:     st,
		Hist:      h,
		Prom:      testProm,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_NoSymbols(t *testing.T) {
	_, err := New(Config{}, Deps{})
	if !errors.Is(err, ErrNoSymbols) {
		t.Fatalf("expected ErrNoSymbols, got %v", err)
	}
}

func TestRunCycle_GoldenCrossScenario(t *testing.T) {
	f := newFakeFetcher()
	// Cycle k: falling closes, fast SMA(2)=7.5 below slow SMA(3)=8.
	// Cycle k+1: a strong new candle, fast SMA(2)=9.5 above slow SMA(3)=9.
	f.batches["BTCUSDT"] = [][]model.Candle{
		testCandles("BTCUSDT", 0, 10, 9, 8, 7),
		testCandles("BTCUSDT", 4, 12),
	}

	n := &fakeNotifier{}
	h := &fakeHist{}
	s := newTestScheduler(t, []string{"BTCUSDT"}, f, n, h, nil)

	ctx := context.Background()
	s.RunCycle(ctx) // cycle k: primes transition state, no cross possible
	s.RunCycle(ctx) // cycle k+1: the cross

	golden := 0
	for _, k := range h.kinds() {
		if k == model.AlertGoldenCross {
			golden++
		}
	}
	if golden != 1 {
		t.Fatalf("expected exactly one golden cross, got %d (all: %v)", golden, h.kinds())
	}

	// The rendered notification mentions the cross.
	found := false
	for _, a := range n.alerts() {
		if strings.Contains(a.Message, "Golden cross") {
			found = true
		}
	}
	if !found {
		t.Error("expected a notification mentioning the golden cross")
	}
}

func TestRunCycle_FailureIsolation(t *testing.T) {
	f := newFakeFetcher()
	f.errs["AAAUSDT"] = errors.New("connection refused")
	// Monotonic rise: RSI(2) = 100 → overbought alert for the healthy symbol.
	f.batches["BBBUSDT"] = [][]model.Candle{
		testCandles("BBBUSDT", 0, 1, 2, 3, 4),
	}

	n := &fakeNotifier{}
	h := &fakeHist{}
	s := newTestScheduler(t, []string{"AAAUSDT", "BBBUSDT"}, f, n, h, nil)

	s.RunCycle(context.Background())

	// AAAUSDT used the first attempt plus 2 configured retries.
	if got := f.callCount("AAAUSDT"); got != 3 {
		t.Errorf("failing symbol attempts: got %d, want 3", got)
	}
	if s.d.Windows.Len("AAAUSDT") != 0 {
		t.Error("failed fetches must not touch the window")
	}

	// BBBUSDT still produced a full evaluation.
	if s.d.Windows.Len("BBBUSDT") != 4 {
		t.Errorf("healthy symbol window: got %d, want 4", s.d.Windows.Len("BBBUSDT"))
	}
	overbought := 0
	for _, k := range h.kinds() {
		if k == model.AlertRsiOverbought {
			overbought++
		}
	}
	if overbought != 1 {
		t.Errorf("healthy symbol alerts: got %v", h.kinds())
	}
}

func TestRunCycle_MalformedDataNotRetried(t *testing.T) {
	f := newFakeFetcher()
	f.errs["BTCUSDT"] = fmt.Errorf("parse: %w", binance.ErrMalformed)

	s := newTestScheduler(t, []string{"BTCUSDT"}, f, &fakeNotifier{}, nil, nil)
	s.RunCycle(context.Background())

	if got := f.callCount("BTCUSDT"); got != 1 {
		t.Errorf("malformed data attempts: got %d, want 1 (no retries)", got)
	}
}

func TestRunCycle_InFlightSkip(t *testing.T) {
	f := newFakeFetcher()
	f.batches["BTCUSDT"] = [][]model.Candle{testCandles("BTCUSDT", 0, 1, 2, 3)}

	s := newTestScheduler(t, []string{"BTCUSDT"}, f, &fakeNotifier{}, nil, nil)

	// Simulate a previous cycle still running for the symbol.
	s.inflight.Store("BTCUSDT", struct{}{})
	s.RunCycle(context.Background())

	if got := f.callCount("BTCUSDT"); got != 0 {
		t.Errorf("busy symbol must be skipped, got %d fetches", got)
	}
}

func TestRunCycle_DispatchFailureDoesNotAbort(t *testing.T) {
	f := newFakeFetcher()
	f.batches["BTCUSDT"] = [][]model.Candle{testCandles("BTCUSDT", 0, 1, 2, 3, 4)}

	n := &fakeNotifier{fail: true}
	h := &fakeHist{}
	s := newTestScheduler(t, []string{"BTCUSDT"}, f, n, h, nil)
	s.RunCycle(context.Background())

	// The alert was still recorded: dispatch failure never rolls back state.
	if len(h.kinds()) == 0 {
		t.Error("expected alert history despite dispatch failure")
	}
}

func TestCheckpoint_SurvivesRestart(t *testing.T) {
	st := &fakeState{}
	mkFetcher := func() *fakeFetcher {
		f := newFakeFetcher()
		f.batches["BTCUSDT"] = [][]model.Candle{
			testCandles("BTCUSDT", 0, 1, 2, 3, 4),
		}
		return f
	}

	h1 := &fakeHist{}
	s1 := newTestScheduler(t, []string{"BTCUSDT"}, mkFetcher(), &fakeNotifier{}, h1, st)
	ctx := context.Background()
	s1.restore(ctx)
	s1.RunCycle(ctx)

	if st.saves == 0 {
		t.Fatal("expected a checkpoint save after the cycle")
	}
	if len(h1.kinds()) == 0 {
		t.Fatal("expected an overbought alert in the first run")
	}

	// "Restart": a fresh scheduler restores the checkpoint and sees the
	// same window again. The cooldown suppresses the still-true RSI level
	// and the unchanged signs produce no crossings.
	h2 := &fakeHist{}
	s2 := newTestScheduler(t, []string{"BTCUSDT"}, mkFetcher(), &fakeNotifier{}, h2, st)
	s2.restore(ctx)
	s2.RunCycle(ctx)

	if len(h2.kinds()) != 0 {
		t.Errorf("restored state should suppress everything, got %v", h2.kinds())
	}
}

func TestDrainStream(t *testing.T) {
	f := newFakeFetcher()
	f.batches["BTCUSDT"] = [][]model.Candle{testCandles("BTCUSDT", 3, 40)}

	s := newTestScheduler(t, []string{"BTCUSDT"}, f, &fakeNotifier{}, nil, nil)

	ch := make(chan model.Candle, 8)
	for _, c := range testCandles("BTCUSDT", 0, 10, 20, 30) {
		ch <- c
	}
	s.SetStream(ch)

	s.RunCycle(context.Background())

	// 3 streamed candles + 1 polled candle, all in order.
	if got := s.d.Windows.Len("BTCUSDT"); got != 4 {
		t.Errorf("window length: got %d, want 4", got)
	}
	latest, _ := s.d.Windows.Latest("BTCUSDT")
	if latest.Close != 40 {
		t.Errorf("latest close: got %.0f, want 40", latest.Close)
	}
}

func TestRunCycle_ManySymbols(t *testing.T) {
	// Many per-symbol goroutines mutate the shared window store in one
	// cycle. Run with -race.
	f := newFakeFetcher()
	symbols := make([]string, 32)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02dUSDT", i)
		f.batches[symbols[i]] = [][]model.Candle{
			testCandles(symbols[i], 0, 1, 2, 3, 4),
		}
	}

	s := newTestScheduler(t, symbols, f, &fakeNotifier{}, nil, nil)
	s.RunCycle(context.Background())

	for _, sym := range symbols {
		if got := s.d.Windows.Len(sym); got != 4 {
			t.Errorf("%s: window length %d, want 4", sym, got)
		}
	}
}

func TestRunCycle_HealthReflectsOutcome(t *testing.T) {
	f := newFakeFetcher()
	f.setErr("BTCUSDT", errors.New("connection refused"))

	s := newTestScheduler(t, []string{"BTCUSDT"}, f, &fakeNotifier{}, nil, nil)
	health := metrics.NewHealthStatus([]string{"BTCUSDT"})
	s.d.Health = health

	healthz := func() string {
		rec := httptest.NewRecorder()
		health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Body.String()
	}

	s.RunCycle(context.Background())
	if !strings.Contains(healthz(), `"cycle_ok":false`) {
		t.Errorf("all symbols failed, health should report a failed cycle: %s", healthz())
	}

	f.setErr("BTCUSDT", nil)
	f.batches["BTCUSDT"] = [][]model.Candle{testCandles("BTCUSDT", 0, 1, 2, 3, 4)}
	s.RunCycle(context.Background())
	if !strings.Contains(healthz(), `"cycle_ok":true`) {
		t.Errorf("successful cycle should report cycle_ok true: %s", healthz())
	}
}

func TestRunCycle_RefreshCoversGap(t *testing.T) {
	f := newFakeFetcher()
	f.batches["BTCUSDT"] = [][]model.Candle{
		testCandles("BTCUSDT", 0, 10, 11, 12, 13),
		testCandles("BTCUSDT", 6, 16),
	}

	s := newTestScheduler(t, []string{"BTCUSDT"}, f, &fakeNotifier{}, nil, nil)
	ctx := context.Background()

	s.RunCycle(ctx)
	if got := f.lastLimit("BTCUSDT"); got != 4 {
		t.Fatalf("cold window should fetch full capacity, got limit %d", got)
	}

	// Two intervals went missing while the scheduler was stalled: the next
	// refresh must cover them, not just the newest two candles.
	latest, _ := s.d.Windows.Latest("BTCUSDT")
	s.nowFn = func() time.Time { return latest.OpenTime.Add(13 * time.Minute) }

	s.RunCycle(ctx)
	if got := f.lastLimit("BTCUSDT"); got != 3 {
		t.Errorf("stalled refresh limit: got %d, want 3", got)
	}
}
