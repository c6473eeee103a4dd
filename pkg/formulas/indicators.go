package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI computes the Relative Strength Index over the given period
// and returns its latest value (0..100). Nil on insufficient data.
func CalculateRSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	rsi := talib.Rsi(closes, period)
	if len(rsi) == 0 {
		return nil
	}
	last := rsi[len(rsi)-1]
	if isNaN(last) {
		return nil
	}
	return &last
}

// LastSMA computes the simple moving average over the period and returns
// its latest value.
func LastSMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	sma := talib.Sma(closes, period)
	if len(sma) == 0 {
		return nil
	}
	last := sma[len(sma)-1]
	if isNaN(last) || last == 0 {
		return nil
	}
	return &last
}

// MACDPoint carries the latest MACD line, signal line and histogram
// values, plus the previous histogram value for momentum checks.
type MACDPoint struct {
	MACD     float64
	Signal   float64
	Hist     float64
	PrevHist float64
}

// LastMACD computes MACD(12,26,9) and returns the latest point. Nil when
// the series is shorter than the slow period plus signal lookback.
func LastMACD(closes []float64) *MACDPoint {
	if len(closes) < 35 {
		return nil
	}
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	n := len(hist)
	if n < 2 {
		return nil
	}
	p := &MACDPoint{
		MACD:     macd[n-1],
		Signal:   signal[n-1],
		Hist:     hist[n-1],
		PrevHist: hist[n-2],
	}
	if isNaN(p.MACD) || isNaN(p.Signal) || isNaN(p.Hist) {
		return nil
	}
	return p
}

// BollingerPctB places the latest close within the Bollinger band of the
// given period and width, as 0..100 (0 at the lower band, 100 at the
// upper). Values outside the band are clamped.
func BollingerPctB(closes []float64, period int, nbDev float64) *float64 {
	if len(closes) < period {
		return nil
	}
	upper, _, lower := talib.BBands(closes, period, nbDev, nbDev, talib.SMA)
	n := len(closes)
	u, l := upper[n-1], lower[n-1]
	if isNaN(u) || isNaN(l) || u == l {
		return nil
	}
	pct := Clamp(100*(closes[n-1]-l)/(u-l), 0, 100)
	return &pct
}

func isNaN(f float64) bool { return f != f }
