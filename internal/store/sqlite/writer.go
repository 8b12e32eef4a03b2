// Package sqlite records indicator snapshots and emitted alerts for
// after-the-fact inspection. The scheduler never reads this data back.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// Writer is a single-connection SQLite history writer.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (or creates) the database at path with WAL mode and the schema.
func New(path string, log zerolog.Logger) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite history opened")
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			symbol        TEXT    NOT NULL,
			as_of         INTEGER NOT NULL,
			price         REAL    NOT NULL,
			rsi           REAL,
			sma_fast      REAL,
			sma_slow      REAL,
			ema           REAL,
			sma_trend     REAL,
			macd_line     REAL,
			macd_signal   REAL,
			macd_hist     REAL,
			PRIMARY KEY (symbol, as_of)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol  TEXT    NOT NULL,
			kind    TEXT    NOT NULL,
			price   REAL    NOT NULL,
			value   REAL    NOT NULL,
			ts      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_symbol_ts ON alerts(symbol, ts);
	`)
	return err
}

// nullable converts a not-Ready indicator value to SQL NULL.
func nullable(v model.IndicatorValue) interface{} {
	if !v.Ready {
		return nil
	}
	return v.Value
}

// WriteSnapshot upserts one cycle's snapshot. Replacement on conflict
// covers the forming-candle case where the same as_of recurs with fresher
// values.
func (w *Writer) WriteSnapshot(ctx context.Context, snap model.IndicatorSnapshot) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots
		(symbol, as_of, price, rsi, sma_fast, sma_slow, ema, sma_trend, macd_line, macd_signal, macd_hist)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Symbol, snap.AsOf.UnixMilli(), snap.Price,
		nullable(snap.RSI), nullable(snap.SMAFast), nullable(snap.SMASlow),
		nullable(snap.EMA), nullable(snap.SMATrend),
		nullable(snap.MACDLine), nullable(snap.MACDSignal), nullable(snap.MACDHistogram),
	)
	if err != nil {
		return fmt.Errorf("sqlite write snapshot: %w", err)
	}
	return nil
}

// WriteAlert appends one emitted alert.
func (w *Writer) WriteAlert(ctx context.Context, ev model.AlertEvent) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO alerts (symbol, kind, price, value, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.Symbol, string(ev.Kind), ev.Price, ev.Value, ev.Time.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite write alert: %w", err)
	}
	return nil
}

// DB returns the underlying handle for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// Close closes the database.
func (w *Writer) Close() error { return w.db.Close() }
