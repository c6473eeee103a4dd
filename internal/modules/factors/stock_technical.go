package factors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// Lookback windows for the technical factors, in trading days.
const (
	consolidationWindow = 20
	volumeShortWindow   = 5
	volumeLongWindow    = 20
	rsiPeriod           = 14
	bollingerPeriod     = 20
	bollingerWidth      = 2.0
	// barsLookbackDays is the calendar span fetched so that the longest
	// moving average (60 sessions) always has data behind it.
	barsLookbackDays = 200
)

// TechnicalComputer derives the price/volume structure factors from
// recent OHLCV.
type TechnicalComputer struct {
	data StockDataSource
	log  zerolog.Logger
}

// NewTechnicalComputer builds a technical factor computer.
func NewTechnicalComputer(data StockDataSource, log zerolog.Logger) *TechnicalComputer {
	return &TechnicalComputer{
		data: data,
		log:  log.With().Str("computer", "stock_technical").Logger(),
	}
}

// Compute fills the technical slice of the factor row for one stock.
func (c *TechnicalComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.StockFactors, error) {
	out := &domain.StockFactors{Code: code, TradeDate: date}

	bars, err := c.data.DailyBars(ctx, code, date.AddCalendarDays(-barsLookbackDays), date)
	if err != nil {
		return out, err
	}
	if len(bars) == 0 {
		return out, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	out.ConsolidationScore = consolidationScore(bars)
	out.VolumePrecursor = volumePrecursor(bars)
	out.MAConvergence = maConvergence(closes)
	out.RSI14 = formulas.CalculateRSI(closes, rsiPeriod)
	out.MACDSignal = macdSignal(closes)
	out.BollingerPosition = formulas.BollingerPctB(closes, bollingerPeriod, bollingerWidth)
	return out, nil
}

// consolidationScore quantifies how narrow and sustained the recent
// range is. The range amplitude over the window sets the base; the share
// of closes inside the middle of that range rewards persistence.
func consolidationScore(bars []domain.DailyBar) *float64 {
	if len(bars) < consolidationWindow {
		return nil
	}
	window := bars[len(bars)-consolidationWindow:]

	high, low, sum := window[0].High, window[0].Low, 0.0
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		sum += b.Close
	}
	mean := sum / float64(len(window))
	if mean <= 0 || high <= low {
		return nil
	}

	amplitudePct := 100 * (high - low) / mean
	base := scaleDown(amplitudePct, 5, 95, 30, 15)

	// Persistence: closes that stay within the middle half of the range.
	mid, quarter := (high+low)/2, (high-low)/4
	inside := 0
	for _, b := range window {
		if b.Close >= mid-quarter && b.Close <= mid+quarter {
			inside++
		}
	}
	persistence := 100 * float64(inside) / float64(len(window))

	score := formulas.Round2(formulas.Clamp(0.7*base+0.3*persistence, 0, 100))
	return &score
}

// volumePrecursor detects accumulation-style volume: the short average
// volume rising above the long average while candle bodies stay small.
func volumePrecursor(bars []domain.DailyBar) *float64 {
	if len(bars) < volumeLongWindow {
		return nil
	}
	short := bars[len(bars)-volumeShortWindow:]
	long := bars[len(bars)-volumeLongWindow:]

	var shortVol, longVol float64
	for _, b := range short {
		shortVol += b.Volume
	}
	for _, b := range long {
		longVol += b.Volume
	}
	shortVol /= float64(len(short))
	longVol /= float64(len(long))
	if longVol <= 0 {
		return nil
	}

	// Volume expansion maps to [0,100] around a neutral ratio of 1.
	ratio := shortVol / longVol
	volScore := formulas.Clamp(50+62.5*(ratio-1), 0, 100)

	// Small bodies while volume expands mark quiet accumulation; big
	// bodies mean the move already happened.
	var bodySum float64
	bodies := 0
	for _, b := range short {
		if b.Close > 0 {
			d := b.Close - b.Open
			if d < 0 {
				d = -d
			}
			bodySum += 100 * d / b.Close
			bodies++
		}
	}
	if bodies == 0 {
		score := formulas.Round2(volScore)
		return &score
	}
	avgBody := bodySum / float64(bodies)
	bodyScore := scaleDown(avgBody, 0.5, 95, 4, 20)

	score := formulas.Round2(formulas.Clamp(0.6*volScore+0.4*bodyScore, 0, 100))
	return &score
}

// maConvergence rises as the 5/10/20/60-day moving averages compress.
func maConvergence(closes []float64) *float64 {
	ma5 := formulas.LastSMA(closes, 5)
	ma10 := formulas.LastSMA(closes, 10)
	ma20 := formulas.LastSMA(closes, 20)
	ma60 := formulas.LastSMA(closes, 60)
	if ma5 == nil || ma10 == nil || ma20 == nil || ma60 == nil {
		return nil
	}

	min, max := *ma5, *ma5
	for _, v := range []float64{*ma10, *ma20, *ma60} {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min <= 0 {
		return nil
	}
	spreadPct := 100 * (max - min) / min
	score := formulas.Round2(scaleDown(spreadPct, 1, 95, 10, 20))
	return &score
}

// macdSignal reads the MACD histogram as a 0-100 momentum gauge:
// positive and expanding is strongest, negative and contracting weakest.
func macdSignal(closes []float64) *float64 {
	p := formulas.LastMACD(closes)
	if p == nil {
		return nil
	}
	var score float64
	rising := p.Hist >= p.PrevHist
	switch {
	case p.Hist > 0 && rising:
		score = 85
	case p.Hist > 0:
		score = 65
	case rising:
		score = 45
	default:
		score = 20
	}
	return &score
}

// scaleDown maps v linearly from (atLo -> hiScore) down to (atHi ->
// loScore), clamped.
func scaleDown(v, atLo, hiScore, atHi, loScore float64) float64 {
	if v <= atLo {
		return hiScore
	}
	if v >= atHi {
		return loScore
	}
	t := (v - atLo) / (atHi - atLo)
	return hiScore + t*(loScore-hiScore)
}
