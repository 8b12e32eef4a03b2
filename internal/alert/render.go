package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/bgorhoball/crypto-ta-bot/internal/analysis"
	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// displayNames maps well-known pairs to friendly names for report headers.
var displayNames = map[string]string{
	"BTCUSDT": "Bitcoin",
	"ETHUSDT": "Ethereum",
	"CROUSDT": "Cronos",
}

// DisplayName returns a friendly name for a symbol, falling back to the
// symbol itself.
func DisplayName(symbol string) string {
	if n, ok := displayNames[symbol]; ok {
		return n
	}
	return symbol
}

func trendEmoji(t analysis.Trend) string {
	switch t {
	case analysis.TrendBullish:
		return "🟢"
	case analysis.TrendBearish:
		return "🔴"
	default:
		return "🟡"
	}
}

func signalEmoji(s analysis.Signal) string {
	switch s {
	case analysis.SignalStrongBuy, analysis.SignalBuy:
		return "🟢"
	case analysis.SignalStrongSell, analysis.SignalSell:
		return "🔴"
	default:
		return "🟡"
	}
}

func rsiLabel(v model.IndicatorValue) string {
	if !v.Ready {
		return "n/a"
	}
	switch {
	case v.Value > 70:
		return fmt.Sprintf("%.1f ⚠️ Overbought", v.Value)
	case v.Value < 30:
		return fmt.Sprintf("%.1f 💰 Oversold", v.Value)
	default:
		return fmt.Sprintf("%.1f ➡️ Neutral", v.Value)
	}
}

// titleWord capitalizes one known-ASCII identifier for display.
func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fmtVal(v model.IndicatorValue, decimals int) string {
	if !v.Ready {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, v.Value)
}

func alertLine(ev model.AlertEvent) string {
	switch ev.Kind {
	case model.AlertRsiOverbought:
		return fmt.Sprintf("RSI overbought at %.1f", ev.Value)
	case model.AlertRsiOversold:
		return fmt.Sprintf("RSI oversold at %.1f", ev.Value)
	case model.AlertGoldenCross:
		return "Golden cross (fast SMA crossed above slow SMA)"
	case model.AlertDeathCross:
		return "Death cross (fast SMA crossed below slow SMA)"
	case model.AlertMacdBullishCross:
		return "MACD bullish cross"
	case model.AlertMacdBearishCross:
		return "MACD bearish cross"
	case model.AlertPriceThreshold:
		dir := "below"
		if ev.Rising {
			dir = "above"
		}
		return fmt.Sprintf("Price crossed %s %.2f", dir, ev.Value)
	case model.AlertStrongSignal:
		if ev.Rising {
			return "Strong buy signal (indicators aligned bullish)"
		}
		return "Strong sell signal (indicators aligned bearish)"
	default:
		return string(ev.Kind)
	}
}

// Report holds everything needed to render one symbol's notification.
type Report struct {
	Snapshot    model.IndicatorSnapshot
	Events      []model.AlertEvent
	Transitions []model.TransitionEvent
	Levels      analysis.Levels
	HasLevels   bool
}

// Title returns the notification title for the report.
func (r *Report) Title() string {
	return fmt.Sprintf("%s (%s) Analysis", DisplayName(r.Snapshot.Symbol), r.Snapshot.Symbol)
}

// Render formats the report into a human-readable notification body,
// mirroring the indicator/MACD/signal block layout of the bot's messages.
func (r *Report) Render() string {
	snap := r.Snapshot
	var b strings.Builder

	fmt.Fprintf(&b, "💲 Price: $%.2f\n\n", snap.Price)

	b.WriteString("🔔 Alerts:\n")
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "• %s\n", alertLine(ev))
	}
	b.WriteString("\n")

	b.WriteString("📊 Technical Indicators:\n")
	fmt.Fprintf(&b, "• RSI(14): %s\n", rsiLabel(snap.RSI))
	fmt.Fprintf(&b, "• SMA20: $%s\n", fmtVal(snap.SMAFast, 2))
	fmt.Fprintf(&b, "• SMA50: $%s\n", fmtVal(snap.SMASlow, 2))
	fmt.Fprintf(&b, "• EMA20: $%s\n", fmtVal(snap.EMA, 2))
	fmt.Fprintf(&b, "• SMA200: $%s\n\n", fmtVal(snap.SMATrend, 2))

	b.WriteString("📈 MACD:\n")
	fmt.Fprintf(&b, "• Line: %s\n", fmtVal(snap.MACDLine, 3))
	fmt.Fprintf(&b, "• Signal: %s\n", fmtVal(snap.MACDSignal, 3))
	fmt.Fprintf(&b, "• Histogram: %s\n\n", fmtVal(snap.MACDHistogram, 3))

	if r.HasLevels {
		b.WriteString("🎯 Levels:\n")
		fmt.Fprintf(&b, "• Support: $%.2f\n", r.Levels.Support)
		fmt.Fprintf(&b, "• Resistance: $%.2f\n\n", r.Levels.Resistance)
	}

	short := analysis.ShortTrend(snap)
	long := analysis.LongTrend(snap)
	overall := analysis.Overall(snap, r.Transitions)

	b.WriteString("🎯 Signals:\n")
	fmt.Fprintf(&b, "• Short Trend: %s %s\n", trendEmoji(short), titleWord(string(short)))
	fmt.Fprintf(&b, "• Long Trend: %s %s\n\n", trendEmoji(long), titleWord(string(long)))

	fmt.Fprintf(&b, "🔔 Overall: %s %s\n\n", signalEmoji(overall), strings.ToUpper(strings.ReplaceAll(string(overall), "_", " ")))

	fmt.Fprintf(&b, "🕐 %s", snap.AsOf.UTC().Format(time.RFC3339))
	return b.String()
}
