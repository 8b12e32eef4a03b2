// Package scheduler drives the analysis pipeline: on a fixed period, for
// each configured symbol it fetches candles, updates the window, computes
// indicators, detects transitions, evaluates alert rules and dispatches
// notifications. Symbols are processed concurrently and failures are
// isolated per symbol.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgorhoball/crypto-ta-bot/internal/alert"
	"github.com/bgorhoball/crypto-ta-bot/internal/analysis"
	"github.com/bgorhoball/crypto-ta-bot/internal/indicator"
	"github.com/bgorhoball/crypto-ta-bot/internal/marketdata/binance"
	"github.com/bgorhoball/crypto-ta-bot/internal/metrics"
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
	"github.com/bgorhoball/crypto-ta-bot/internal/notification"
	"github.com/bgorhoball/crypto-ta-bot/internal/transition"
	"github.com/bgorhoball/crypto-ta-bot/internal/window"
)

// ErrNoSymbols is the only fatal configuration error: with nothing to
// analyze the process has no reason to run.
var ErrNoSymbols = errors.New("no symbols configured")

// Fetcher fetches candles for one symbol. Implemented by binance.Client.
type Fetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// StateStore checkpoints cross-cycle state. Implemented by the Redis store.
type StateStore interface {
	SaveCheckpoint(ctx context.Context, data []byte) error
	LoadCheckpoint(ctx context.Context) ([]byte, bool, error)
}

// History records snapshots and alerts. Implemented by the SQLite writer.
type History interface {
	WriteSnapshot(ctx context.Context, snap model.IndicatorSnapshot) error
	WriteAlert(ctx context.Context, ev model.AlertEvent) error
}

// Config holds scheduler knobs.
type Config struct {
	Symbols        []string
	Interval       string        // kline interval, e.g. "5m"
	PollPeriod     time.Duration // time between cycles
	FetchTimeout   time.Duration // per fetch attempt
	FetchRetries   int           // retries after the first attempt
	RetryBackoff   time.Duration // initial backoff, doubles per retry
	RefreshCount   int           // candles fetched once the window is warm
	LevelsLookback int           // candles for support/resistance
}

// Deps are the scheduler's collaborators. State and Hist may be nil
// (session-only state, no history).
type Deps struct {
	Windows   *window.Store
	Engine    *indicator.Engine
	Detector  *transition.Detector
	Evaluator *alert.Evaluator
	Fetcher   Fetcher
	Notifier  notification.Notifier
	State     StateStore
	Hist      History
	Prom      *metrics.Metrics
	Health    *metrics.HealthStatus
	Log       zerolog.Logger
}

// Scheduler owns the cycle loop.
type Scheduler struct {
	cfg Config
	d   Deps

	// stateMu guards the detector and evaluator maps, which are shared
	// across per-symbol goroutines. Indicator math happens outside it.
	stateMu sync.Mutex

	// inflight marks symbols whose previous cycle has not finished; a new
	// cycle for such a symbol is skipped, never interleaved.
	inflight sync.Map

	// streamCh, when non-nil, delivers live candles from the WebSocket
	// feed; drained at the start of every cycle.
	streamCh <-chan model.Candle

	// nowFn is swappable for tests.
	nowFn func() time.Time
}

// checkpoint is the serialized cross-cycle state.
type checkpoint struct {
	Version     int                         `json:"version"`
	SavedAt     time.Time                   `json:"saved_at"`
	Transitions map[string]transition.State `json:"transitions"`
	Alerts      alert.State                 `json:"alerts"`
}

// New creates a scheduler. Returns ErrNoSymbols when cfg.Symbols is empty.
func New(cfg Config, d Deps) (*Scheduler, error) {
	if len(cfg.Symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.RefreshCount < 2 {
		cfg.RefreshCount = 2
	}
	return &Scheduler{
		cfg:   cfg,
		d:     d,
		nowFn: time.Now,
	}, nil
}

// SetStream attaches a live candle feed drained at the start of each cycle.
func (s *Scheduler) SetStream(ch <-chan model.Candle) {
	s.streamCh = ch
}

// Run restores checkpointed state, then executes one cycle per poll period
// until ctx is cancelled. The first cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.restore(ctx)

	ticker := time.NewTicker(s.cfg.PollPeriod)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle runs one analysis cycle for all configured symbols. This is the
// single entry point an external trigger needs. Symbols run concurrently;
// a symbol still busy from the previous cycle is skipped. State is
// checkpointed once at the end of the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.d.Prom.CyclesTotal.Inc()
	s.drainStream()

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for _, symbol := range s.cfg.Symbols {
		if _, busy := s.inflight.LoadOrStore(symbol, struct{}{}); busy {
			s.d.Log.Warn().Str("symbol", symbol).Msg("previous cycle still in flight, skipping")
			s.d.Prom.CyclesSkipped.WithLabelValues(symbol, "in_flight").Inc()
			continue
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer s.inflight.Delete(symbol)
			start := s.nowFn()
			if err := s.runSymbol(ctx, symbol); err != nil {
				s.d.Log.Error().Err(err).Str("symbol", symbol).Msg("symbol cycle failed")
			} else {
				succeeded.Add(1)
			}
			s.d.Prom.CycleDur.Observe(s.nowFn().Sub(start).Seconds())
		}(symbol)
	}
	wg.Wait()

	s.persistCheckpoint(ctx)
	if s.d.Health != nil {
		// A cycle where no symbol completed counts as failed.
		s.d.Health.SetCycleResult(s.nowFn(), succeeded.Load() > 0)
	}
}

// drainStream ingests any candles delivered by the live feed since the
// last cycle. Runs before the per-symbol goroutines start, so it never
// races window mutation.
func (s *Scheduler) drainStream() {
	if s.streamCh == nil {
		return
	}
	for {
		select {
		case c := <-s.streamCh:
			s.ingest(c)
		default:
			return
		}
	}
}

// runSymbol executes the full pipeline for one symbol: fetch → ingest →
// compute → detect → evaluate → dispatch → persist.
func (s *Scheduler) runSymbol(ctx context.Context, symbol string) error {
	limit := s.d.Windows.Capacity()
	if s.d.Windows.Len(symbol) >= s.d.Windows.Capacity() {
		limit = s.refreshLimit(symbol)
	}

	candles, err := s.fetchWithRetry(ctx, symbol, limit)
	if err != nil {
		s.d.Prom.FetchErrorsTotal.WithLabelValues(symbol).Inc()
		if errors.Is(err, binance.ErrMalformed) {
			s.d.Prom.MalformedTotal.WithLabelValues(symbol).Inc()
		}
		s.d.Prom.CyclesSkipped.WithLabelValues(symbol, "fetch_failed").Inc()
		return err
	}

	for _, c := range candles {
		s.ingest(c)
	}
	s.d.Prom.WindowLen.WithLabelValues(symbol).Set(float64(s.d.Windows.Len(symbol)))

	win := s.d.Windows.Window(symbol)
	if len(win) == 0 {
		s.d.Prom.CyclesSkipped.WithLabelValues(symbol, "empty_window").Inc()
		return nil
	}

	now := s.nowFn()
	snap := s.d.Engine.Compute(symbol, win, now)

	s.stateMu.Lock()
	transitions := s.d.Detector.Observe(snap)
	events, suppressed := s.d.Evaluator.Evaluate(snap, transitions, snap.Price, now)
	s.stateMu.Unlock()

	for i := 0; i < suppressed; i++ {
		s.d.Prom.AlertsSuppressed.Inc()
	}
	for _, ev := range events {
		s.d.Prom.AlertsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	}

	if s.d.Hist != nil {
		if err := s.d.Hist.WriteSnapshot(ctx, snap); err != nil {
			s.d.Log.Warn().Err(err).Str("symbol", symbol).Msg("snapshot history write failed")
		}
		for _, ev := range events {
			if err := s.d.Hist.WriteAlert(ctx, ev); err != nil {
				s.d.Log.Warn().Err(err).Str("symbol", symbol).Msg("alert history write failed")
			}
		}
	}

	if len(events) > 0 {
		s.dispatch(ctx, snap, transitions, events, win)
	}
	return nil
}

// refreshLimit sizes the fetch for a warm window. Normally only the newest
// candles can change, but after a stall (fetch failures, a long disconnect)
// the window has a time gap that the next fetch must cover, or the
// indicators would average across missing candles.
func (s *Scheduler) refreshLimit(symbol string) int {
	limit := s.cfg.RefreshCount

	latest, ok := s.d.Windows.Latest(symbol)
	if !ok {
		return limit
	}
	step, ok := binance.IntervalDuration(s.cfg.Interval)
	if !ok {
		return limit
	}

	// Candles missed since the latest stored one, plus the forming candle.
	missed := int(s.nowFn().Sub(latest.OpenTime)/step) + 1
	if missed > limit {
		limit = missed
	}
	if c := s.d.Windows.Capacity(); limit > c {
		limit = c
	}
	return limit
}

// fetchWithRetry fetches klines, retrying transient failures with
// exponential backoff. Malformed data is never retried: the same bytes
// would come back again.
func (s *Scheduler) fetchWithRetry(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	backoff := s.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			s.d.Prom.FetchRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		start := s.nowFn()
		candles, err := s.d.Fetcher.Klines(fetchCtx, symbol, s.cfg.Interval, limit)
		cancel()
		s.d.Prom.FetchDur.Observe(s.nowFn().Sub(start).Seconds())

		if err == nil {
			return candles, nil
		}
		lastErr = err
		if errors.Is(err, binance.ErrMalformed) || ctx.Err() != nil {
			break
		}
		s.d.Log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Msg("fetch failed")
	}
	return nil, lastErr
}

// ingest stores one candle and bumps the ingest metrics.
func (s *Scheduler) ingest(c model.Candle) {
	switch res := s.d.Windows.Ingest(c.Symbol, c); res {
	case window.Accepted, window.Replaced:
		s.d.Prom.CandlesIngested.Inc()
	default:
		s.d.Prom.CandlesRejected.WithLabelValues(res.String()).Inc()
	}
}

// dispatch renders one report covering all of the cycle's events and sends
// it. Delivery failure is logged, never propagated: the cycle's state is
// already committed.
func (s *Scheduler) dispatch(ctx context.Context, snap model.IndicatorSnapshot, transitions []model.TransitionEvent, events []model.AlertEvent, win []model.Candle) {
	levels, hasLevels := analysis.FindLevels(win, s.cfg.LevelsLookback)
	report := alert.Report{
		Snapshot:    snap,
		Events:      events,
		Transitions: transitions,
		Levels:      levels,
		HasLevels:   hasLevels,
	}

	level := notification.AlertInfo
	for _, ev := range events {
		if !ev.Kind.LevelTriggered() {
			level = notification.AlertWarning // a crossing happened
		}
	}

	if err := s.d.Notifier.Send(ctx, notification.Alert{
		Level:   level,
		Title:   report.Title(),
		Message: report.Render(),
	}); err != nil {
		s.d.Prom.DispatchErrors.Inc()
		s.d.Log.Error().Err(err).Str("symbol", snap.Symbol).Msg("notification dispatch failed")
	}
}

// persistCheckpoint saves detector and evaluator state, if a store is
// configured. Runs after all symbol pipelines finish, so the snapshot is
// internally consistent.
func (s *Scheduler) persistCheckpoint(ctx context.Context) {
	if s.d.State == nil {
		return
	}

	s.stateMu.Lock()
	cp := checkpoint{
		Version:     1,
		SavedAt:     s.nowFn(),
		Transitions: s.d.Detector.Snapshot(),
		Alerts:      s.d.Evaluator.Snapshot(),
	}
	s.stateMu.Unlock()

	data, err := json.Marshal(&cp)
	if err != nil {
		s.d.Log.Error().Err(err).Msg("checkpoint marshal failed")
		return
	}
	if err := s.d.State.SaveCheckpoint(ctx, data); err != nil {
		s.d.Log.Warn().Err(err).Msg("checkpoint save failed")
	}
}

// restore loads the last checkpoint, if any. A corrupt checkpoint is
// discarded: the detector simply re-primes over the next cycle.
func (s *Scheduler) restore(ctx context.Context) {
	if s.d.State == nil {
		return
	}

	data, ok, err := s.d.State.LoadCheckpoint(ctx)
	if err != nil {
		s.d.Log.Warn().Err(err).Msg("checkpoint load failed")
		return
	}
	if !ok {
		s.d.Log.Info().Msg("no checkpoint found, starting cold")
		return
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.d.Log.Warn().Err(err).Msg("checkpoint unreadable, starting cold")
		return
	}

	s.stateMu.Lock()
	s.d.Detector.Restore(cp.Transitions)
	s.d.Evaluator.Restore(cp.Alerts)
	s.stateMu.Unlock()
	s.d.Log.Info().Time("saved_at", cp.SavedAt).Int("symbols", len(cp.Transitions)).Msg("checkpoint restored")
}
