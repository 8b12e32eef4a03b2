package model

import "time"

// Candle represents one OHLCV candlestick for a single trading pair.
// Prices are float64 (exchange quote precision); OpenTime is the bucket
// start in UTC and is the ordering key.
type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}
