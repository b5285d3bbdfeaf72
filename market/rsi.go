package market

import (
	"fmt"
	"math"
)

// DefaultRSIPeriod is Wilder's original look-back.
const DefaultRSIPeriod = 14

// RSI computes Wilder's relative strength index over closes (oldest first).
// It needs at least period+1 closes.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi(%d) needs %d closes, got %d", period, period+1, len(closes))
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	rs := avgGain / avgLoss
	return math.Round((100-100/(1+rs))*100) / 100, nil
}

// RSISignal classifies an RSI value using the conventional 70/30 bands.
func RSISignal(value float64) string {
	switch {
	case value >= 70:
		return "overbought"
	case value <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}
