package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// DefaultStreamURL is the production combined-stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443"

const (
	streamReadTimeout  = 90 * time.Second // server pings every ~20s
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// Stream consumes the combined kline WebSocket stream for a set of symbols
// and pushes candles (forming and closed) into a channel. It is an optional
// live feed between REST polls; the window store's refresh rule makes the
// two sources safe to mix.
type Stream struct {
	baseURL  string
	symbols  []string
	interval string
	log      zerolog.Logger

	// Optional metrics hook
	OnReconnect func()
}

// NewStream creates a stream for symbols at interval (e.g. "5m").
// baseURL defaults to DefaultStreamURL.
func NewStream(baseURL string, symbols []string, interval string, log zerolog.Logger) *Stream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &Stream{
		baseURL:  baseURL,
		symbols:  symbols,
		interval: interval,
		log:      log,
	}
}

func (s *Stream) url() string {
	parts := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		parts[i] = strings.ToLower(sym) + "@kline_" + s.interval
	}
	return s.baseURL + "/stream?streams=" + strings.Join(parts, "/")
}

// Run connects and pushes candles into candleCh until ctx is cancelled,
// reconnecting with exponential backoff on any read or dial failure. If
// candleCh is full the candle is dropped; the next poll backfills it.
func (s *Stream) Run(ctx context.Context, candleCh chan<- model.Candle) {
	delay := reconnectBaseDelay
	for ctx.Err() == nil {
		err := s.consume(ctx, candleCh)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("kline stream disconnected")
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// consume runs one connection until it fails or ctx is cancelled.
func (s *Stream) consume(ctx context.Context, candleCh chan<- model.Candle) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url(), nil)
	if err != nil {
		return fmt.Errorf("stream dial: %w", err)
	}
	defer conn.Close()

	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	s.log.Info().Int("symbols", len(s.symbols)).Str("interval", s.interval).Msg("kline stream connected")

	// Close the connection when ctx ends to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}

		candle, ok := parseKlineEvent(msg)
		if !ok {
			continue
		}
		select {
		case candleCh <- candle:
		default:
			// channel full: drop, REST poll will refresh
		}
	}
}

// parseKlineEvent extracts a candle from a combined-stream kline payload.
func parseKlineEvent(msg []byte) (model.Candle, bool) {
	k := gjson.GetBytes(msg, "data.k")
	if !k.Exists() {
		return model.Candle{}, false
	}

	openTime := k.Get("t").Int()
	symbol := k.Get("s").String()
	if openTime <= 0 || symbol == "" {
		return model.Candle{}, false
	}

	var vals [5]float64
	for i, key := range []string{"o", "h", "l", "c", "v"} {
		d, err := decimal.NewFromString(k.Get(key).String())
		if err != nil {
			return model.Candle{}, false
		}
		vals[i] = d.InexactFloat64()
	}

	return model.Candle{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, true
}
