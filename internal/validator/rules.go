package validator

import (
	"fmt"
	"strings"

	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// flipRule decides whether a live indicator reading has flipped against
// the signal's direction relative to its snapshot. Returns the failure
// reason on flip, or "" when the entry still holds. First failing entry
// invalidates the whole signal; there is no partial credit.
func flipRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	switch canonical(name) {
	case "RSI":
		return rsiRule(name, direction, snap, live)
	case "MACD":
		return macdRule(name, direction, snap, live)
	case "BOLLINGER":
		return bollingerRule(name, direction, live)
	case "STOCHASTIC":
		return stochasticRule(name, direction, snap, live)
	case "ADX":
		return adxRule(name, direction, snap, live)
	case "EMA", "EMA200":
		return alignmentRule(name, direction, snap, live)
	case "OBV", "VWAP", "SUPERTREND", "HEIKENASHI", "ICHIMOKU":
		return labelRule(name, snap, live)
	default:
		// Unknown indicators fall back to the discrete-label comparison.
		return labelRule(name, snap, live)
	}
}

func canonical(name string) string {
	n := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(n, "RSI"):
		return "RSI"
	case strings.HasPrefix(n, "MACD"):
		return "MACD"
	case strings.HasPrefix(n, "BOLL"), strings.HasPrefix(n, "BB"):
		return "BOLLINGER"
	case strings.HasPrefix(n, "STOCH"):
		return "STOCHASTIC"
	case strings.HasPrefix(n, "ADX"):
		return "ADX"
	case n == "EMA200", strings.HasPrefix(n, "EMA_200"):
		return "EMA200"
	case strings.HasPrefix(n, "EMA"):
		return "EMA"
	case strings.HasPrefix(n, "OBV"):
		return "OBV"
	case strings.HasPrefix(n, "VWAP"):
		return "VWAP"
	case strings.HasPrefix(n, "SUPERTREND"):
		return "SUPERTREND"
	case strings.HasPrefix(n, "HEIKEN"):
		return "HEIKENASHI"
	case strings.HasPrefix(n, "ICHIMOKU"):
		return "ICHIMOKU"
	default:
		return n
	}
}

type rsiZone int

const (
	zoneOversold rsiZone = iota
	zoneNeutral
	zoneOverbought
)

func rsiZoneOf(v, lower, upper float64) rsiZone {
	switch {
	case v < lower:
		return zoneOversold
	case v > upper:
		return zoneOverbought
	default:
		return zoneNeutral
	}
}

// rsiRule fails a BUY whose RSI moved from oversold/neutral into
// overbought, and the mirror for SELL.
func rsiRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	snapZone := rsiZoneOf(snap.Value, 30, 70)
	liveZone := rsiZoneOf(live.Value, 30, 70)

	if direction == types.DirectionBuy && snapZone != zoneOverbought && liveZone == zoneOverbought {
		return fmt.Sprintf("%s flipped to overbought against BUY (%.1f -> %.1f)", name, snap.Value, live.Value)
	}
	if direction == types.DirectionSell && snapZone != zoneOversold && liveZone == zoneOversold {
		return fmt.Sprintf("%s flipped to oversold against SELL (%.1f -> %.1f)", name, snap.Value, live.Value)
	}
	return ""
}

// macdRule fails when the histogram sign flips against the direction.
func macdRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	if direction == types.DirectionBuy && snap.Value >= 0 && live.Value < 0 {
		return fmt.Sprintf("%s histogram flipped negative against BUY (%.5f -> %.5f)", name, snap.Value, live.Value)
	}
	if direction == types.DirectionSell && snap.Value <= 0 && live.Value > 0 {
		return fmt.Sprintf("%s histogram flipped positive against SELL (%.5f -> %.5f)", name, snap.Value, live.Value)
	}
	return ""
}

// bollingerRule fails when price crosses to the opposite band.
func bollingerRule(name string, direction types.Direction, live types.IndicatorValue) string {
	label := strings.ToLower(live.Label)
	if direction == types.DirectionBuy && strings.Contains(label, "upper") {
		return fmt.Sprintf("%s price crossed to upper band against BUY", name)
	}
	if direction == types.DirectionSell && strings.Contains(label, "lower") {
		return fmt.Sprintf("%s price crossed to lower band against SELL", name)
	}
	return ""
}

// stochasticRule fails on an oversold/overbought flip against direction.
func stochasticRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	snapZone := rsiZoneOf(snap.Value, 20, 80)
	liveZone := rsiZoneOf(live.Value, 20, 80)

	if direction == types.DirectionBuy && snapZone == zoneOversold && liveZone == zoneOverbought {
		return fmt.Sprintf("%s flipped oversold to overbought against BUY", name)
	}
	if direction == types.DirectionSell && snapZone == zoneOverbought && liveZone == zoneOversold {
		return fmt.Sprintf("%s flipped overbought to oversold against SELL", name)
	}
	return ""
}

// adxRule fails on trend-strength collapse (>25 at snapshot, <20 live)
// or when the directional-index relationship reverses against direction.
func adxRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	if snap.Value > 25 && live.Value < 20 {
		return fmt.Sprintf("%s trend strength collapsed (%.1f -> %.1f)", name, snap.Value, live.Value)
	}
	liveLabel := strings.ToLower(live.Label)
	if liveLabel == "" || strings.EqualFold(snap.Label, live.Label) {
		return ""
	}
	if direction == types.DirectionBuy && liveLabel == "bearish" {
		return fmt.Sprintf("%s directional index turned bearish against BUY", name)
	}
	if direction == types.DirectionSell && liveLabel == "bullish" {
		return fmt.Sprintf("%s directional index turned bullish against SELL", name)
	}
	return ""
}

// alignmentRule fails when an EMA alignment/trend label flips against
// the direction.
func alignmentRule(name string, direction types.Direction, snap, live types.IndicatorValue) string {
	liveLabel := strings.ToLower(live.Label)
	if liveLabel == "" || strings.EqualFold(snap.Label, live.Label) {
		return ""
	}
	if direction == types.DirectionBuy && liveLabel == "bearish" {
		return fmt.Sprintf("%s alignment flipped bearish against BUY", name)
	}
	if direction == types.DirectionSell && liveLabel == "bullish" {
		return fmt.Sprintf("%s alignment flipped bullish against SELL", name)
	}
	return ""
}

// labelRule fails when a discrete signal label differs from its snapshot.
func labelRule(name string, snap, live types.IndicatorValue) string {
	if snap.Label == "" || live.Label == "" {
		return ""
	}
	if !strings.EqualFold(snap.Label, live.Label) {
		return fmt.Sprintf("%s signal changed from %s to %s", name, snap.Label, live.Label)
	}
	return ""
}
