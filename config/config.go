package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Analysis targets
	Symbols  string // comma-separated, e.g. "BTCUSDT,ETHUSDT,CROUSDT"
	Interval string // kline interval, e.g. "5m"

	// Scheduling
	PollPeriod   time.Duration
	FetchTimeout time.Duration
	FetchRetries int
	RetryBackoff time.Duration
	RefreshCount int // candles fetched per poll once the window is warm

	// Indicator periods
	RSIPeriod  int
	SMAFast    int
	SMASlow    int
	EMAPeriod  int
	SMATrend   int
	MACDFast   int
	MACDSlow   int
	MACDSignal int

	// Alert thresholds
	RSIHigh        float64
	RSILow         float64
	Cooldown       time.Duration
	PriceLevels    string // "BTCUSDT:100000;ETHUSDT:4000,5000"
	LevelsLookback int

	// External collaborators
	BinanceBaseURL   string
	BinanceStreamURL string
	StreamEnabled    bool

	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols:  getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,CROUSDT"),
		Interval: getEnv("KLINE_INTERVAL", "5m"),

		PollPeriod:   getDuration("POLL_PERIOD", 5*time.Minute),
		FetchTimeout: getDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries: getInt("FETCH_RETRIES", 3),
		RetryBackoff: getDuration("RETRY_BACKOFF", 2*time.Second),
		RefreshCount: getInt("REFRESH_COUNT", 2),

		RSIPeriod:  getInt("RSI_PERIOD", 14),
		SMAFast:    getInt("SMA_FAST", 20),
		SMASlow:    getInt("SMA_SLOW", 50),
		EMAPeriod:  getInt("EMA_PERIOD", 20),
		SMATrend:   getInt("SMA_TREND", 200),
		MACDFast:   getInt("MACD_FAST", 12),
		MACDSlow:   getInt("MACD_SLOW", 26),
		MACDSignal: getInt("MACD_SIGNAL", 9),

		RSIHigh:        getFloat("RSI_HIGH", 70),
		RSILow:         getFloat("RSI_LOW", 30),
		Cooldown:       getDuration("ALERT_COOLDOWN", time.Hour),
		PriceLevels:    getEnv("PRICE_LEVELS", ""),
		LevelsLookback: getInt("LEVELS_LOOKBACK", 90),

		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", ""),
		BinanceStreamURL: getEnv("BINANCE_STREAM_URL", ""),
		StreamEnabled:    getBool("STREAM_ENABLED", false),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSymbols splits the Symbols string into a cleaned slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePriceLevels parses the PriceLevels string into per-symbol absolute
// thresholds. Format: "SYMBOL:level[,level...][;SYMBOL:...]". Levels are
// parsed exactly and invalid entries are skipped with a warning.
func (c *Config) ParsePriceLevels() map[string][]float64 {
	out := make(map[string][]float64)
	if c.PriceLevels == "" {
		return out
	}
	for _, entry := range strings.Split(c.PriceLevels, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		sym, levels, ok := strings.Cut(entry, ":")
		if !ok {
			log.Printf("[config] skipping invalid price level entry: %q", entry)
			continue
		}
		sym = strings.ToUpper(strings.TrimSpace(sym))
		for _, lv := range strings.Split(levels, ",") {
			d, err := decimal.NewFromString(strings.TrimSpace(lv))
			if err != nil {
				log.Printf("[config] skipping invalid price level %q for %s", lv, sym)
				continue
			}
			out[sym] = append(out[sym], d.InexactFloat64())
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
