package domain

import (
	"fmt"
	"time"
)

// TradeDate is a trading date in canonical YYYY-MM-DD form. Storage and
// the public API use this form; upstream wire formats use Compact()
// (YYYYMMDD). The string ordering of the canonical form is the date
// ordering, which the stores rely on.
type TradeDate string

const tradeDateLayout = "2006-01-02"

// ParseTradeDate accepts YYYY-MM-DD or YYYYMMDD.
func ParseTradeDate(s string) (TradeDate, error) {
	switch len(s) {
	case 10:
		if _, err := time.Parse(tradeDateLayout, s); err != nil {
			return "", fmt.Errorf("parse trade date %q: %w", s, err)
		}
		return TradeDate(s), nil
	case 8:
		t, err := time.Parse("20060102", s)
		if err != nil {
			return "", fmt.Errorf("parse trade date %q: %w", s, err)
		}
		return TradeDate(t.Format(tradeDateLayout)), nil
	default:
		return "", fmt.Errorf("parse trade date %q: unrecognized length", s)
	}
}

// TradeDateOf truncates a time to its trade date.
func TradeDateOf(t time.Time) TradeDate {
	return TradeDate(t.Format(tradeDateLayout))
}

func (d TradeDate) String() string { return string(d) }

// Compact returns the YYYYMMDD wire form.
func (d TradeDate) Compact() string {
	if len(d) != 10 {
		return string(d)
	}
	return string(d[0:4]) + string(d[5:7]) + string(d[8:10])
}

// Time returns the date at midnight UTC. Zero on malformed input.
func (d TradeDate) Time() time.Time {
	t, err := time.Parse(tradeDateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d TradeDate) IsZero() bool { return d == "" }

func (d TradeDate) Before(o TradeDate) bool { return string(d) < string(o) }
func (d TradeDate) After(o TradeDate) bool  { return string(d) > string(o) }

// AddCalendarDays shifts by calendar days, not trading days.
func (d TradeDate) AddCalendarDays(n int) TradeDate {
	return TradeDateOf(d.Time().AddDate(0, 0, n))
}

func (d TradeDate) Weekday() time.Weekday { return d.Time().Weekday() }
