// Package binance fetches candlestick data from the Binance public API,
// over REST polling and optionally over the kline WebSocket stream.
package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// DefaultBaseURL is the production spot API endpoint.
const DefaultBaseURL = "https://api.binance.com"

// ErrMalformed marks a response that violates the kline schema. Not
// retryable: the cycle for the symbol is aborted without touching state.
var ErrMalformed = errors.New("malformed kline data")

// Client is a read-only Binance REST client. Public market data needs no
// API key.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against baseURL (DefaultBaseURL if empty).
// timeout bounds each request end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IntervalDuration converts a Binance kline interval string ("1s", "5m",
// "1h", "1d", "1w") to its duration. ok is false for anything else.
func IntervalDuration(interval string) (time.Duration, bool) {
	if len(interval) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// Klines fetches up to limit candles for symbol at the given interval
// (e.g. "5m"). The response may hold one fewer or more candle than
// requested, and the last candle may still be forming; both are normal.
// Candles come back openTime-ordered as Binance returns them.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: status %d: %s", resp.StatusCode, string(body))
	}

	return parseKlines(symbol, body)
}

// parseKlines validates and converts the raw kline array-of-arrays.
// Binance serializes prices as strings; each is parsed exactly with decimal
// before the float64 conversion so a mangled field is caught at the
// boundary instead of becoming a silent zero.
func parseKlines(symbol string, body []byte) ([]model.Candle, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformed, root.Type)
	}

	rows := root.Array()
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		fields := row.Array()
		if len(fields) < 6 {
			return nil, fmt.Errorf("%w: kline %d has %d fields", ErrMalformed, i, len(fields))
		}

		openTime := fields[0].Int()
		if openTime <= 0 {
			return nil, fmt.Errorf("%w: kline %d has openTime %d", ErrMalformed, i, openTime)
		}

		var vals [5]float64
		for j := 1; j <= 5; j++ {
			d, err := decimal.NewFromString(fields[j].String())
			if err != nil {
				return nil, fmt.Errorf("%w: kline %d field %d: %v", ErrMalformed, i, j, err)
			}
			vals[j-1] = d.InexactFloat64()
		}

		candles = append(candles, model.Candle{
			Symbol:   symbol,
			OpenTime: time.UnixMilli(openTime).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}

	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return nil, fmt.Errorf("%w: klines %d..%d not strictly increasing", ErrMalformed, i-1, i)
		}
	}

	return candles, nil
}
