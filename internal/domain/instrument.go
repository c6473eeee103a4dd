package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the two instrument universes the pipeline knows about.
type Kind string

const (
	KindStock Kind = "stock"
	KindFund  Kind = "fund"
)

// ErrInvalidCode is returned when an instrument code cannot be canonicalized.
var ErrInvalidCode = errors.New("invalid instrument code")

// Canonical stock codes carry an exchange suffix: 600519.SH, 000001.SZ,
// 830799.BJ. Canonical fund codes carry a listing marker instead:
// 510300.ETF for exchange-traded funds, 110011.OF for open-end funds.
// All upstream wire formats are derived from the canonical form, never
// stored.

// NormalizeStockCode canonicalizes any accepted stock spelling
// (600519, 600519.SH, sh600519, SH600519) to CODE.EXCHANGE.
func NormalizeStockCode(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCode)
	}

	var suffix string
	if i := strings.IndexByte(s, '.'); i >= 0 {
		suffix = s[i+1:]
		s = s[:i]
	}
	for _, p := range []string{"SH", "SZ", "BJ"} {
		if strings.HasPrefix(s, p) && len(s) == 8 {
			suffix = p
			s = s[2:]
			break
		}
	}
	if !isSixDigits(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, raw)
	}

	switch suffix {
	case "SH", "SZ", "BJ":
	case "":
		suffix = inferStockExchange(s)
		if suffix == "" {
			return "", fmt.Errorf("%w: cannot infer exchange for %q", ErrInvalidCode, raw)
		}
	default:
		return "", fmt.Errorf("%w: unknown exchange %q", ErrInvalidCode, suffix)
	}
	return s + "." + suffix, nil
}

// NormalizeFundCode canonicalizes a fund spelling to CODE.ETF or CODE.OF.
// Exchange suffixes (510300.SH) are accepted and mapped to the ETF marker.
func NormalizeFundCode(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCode)
	}

	var suffix string
	if i := strings.IndexByte(s, '.'); i >= 0 {
		suffix = s[i+1:]
		s = s[:i]
	}
	for _, p := range []string{"SH", "SZ"} {
		if strings.HasPrefix(s, p) && len(s) == 8 {
			suffix = p
			s = s[2:]
			break
		}
	}
	if !isSixDigits(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, raw)
	}

	switch suffix {
	case "OF", "ETF":
	case "SH", "SZ":
		suffix = "ETF"
	case "":
		if isExchangeTradedFund(s) {
			suffix = "ETF"
		} else {
			suffix = "OF"
		}
	default:
		return "", fmt.Errorf("%w: unknown fund marker %q", ErrInvalidCode, suffix)
	}
	return s + "." + suffix, nil
}

// Normalize canonicalizes a code for the given kind.
func Normalize(kind Kind, raw string) (string, error) {
	switch kind {
	case KindStock:
		return NormalizeStockCode(raw)
	case KindFund:
		return NormalizeFundCode(raw)
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidCode, kind)
	}
}

// Bare strips the canonical suffix, leaving the six-digit code.
func Bare(canonical string) string {
	if i := strings.IndexByte(canonical, '.'); i >= 0 {
		return canonical[:i]
	}
	return canonical
}

// StockExchange returns the SH/SZ/BJ suffix of a canonical stock code.
func StockExchange(canonical string) string {
	if i := strings.IndexByte(canonical, '.'); i >= 0 {
		return canonical[i+1:]
	}
	return ""
}

// FundExchange infers the listing exchange of an exchange-traded fund
// from its code prefix. Open-end funds have no exchange.
func FundExchange(canonical string) string {
	code := Bare(canonical)
	if len(code) == 0 {
		return ""
	}
	if code[0] == '5' {
		return "SH"
	}
	return "SZ"
}

// TushareCode converts a canonical code to the tushare wire spelling.
// Stocks are already in tushare form. ETF markers map back to the
// listing exchange; open-end funds keep the .OF suffix.
func TushareCode(kind Kind, canonical string) string {
	if kind == KindStock {
		return canonical
	}
	code := Bare(canonical)
	if strings.HasSuffix(canonical, ".ETF") {
		return code + "." + FundExchange(canonical)
	}
	return code + ".OF"
}

// SinaSymbol converts a canonical exchange-listed code to sina's
// lowercase prefixed spelling (sh600519). Open-end funds have no
// realtime symbol and return "".
func SinaSymbol(kind Kind, canonical string) string {
	code := Bare(canonical)
	var ex string
	switch kind {
	case KindStock:
		ex = StockExchange(canonical)
	case KindFund:
		if !strings.HasSuffix(canonical, ".ETF") {
			return ""
		}
		ex = FundExchange(canonical)
	}
	if ex == "" {
		return ""
	}
	return strings.ToLower(ex) + code
}

// EastmoneySecID converts a canonical exchange-listed code to the
// push2 secid spelling (1.600519 for SH, 0.000001 for SZ and BJ).
func EastmoneySecID(kind Kind, canonical string) string {
	code := Bare(canonical)
	var ex string
	switch kind {
	case KindStock:
		ex = StockExchange(canonical)
	case KindFund:
		if !strings.HasSuffix(canonical, ".ETF") {
			return ""
		}
		ex = FundExchange(canonical)
	}
	switch ex {
	case "SH":
		return "1." + code
	case "SZ", "BJ":
		return "0." + code
	}
	return ""
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func inferStockExchange(code string) string {
	switch code[0] {
	case '6', '9':
		return "SH"
	case '0', '2', '3':
		return "SZ"
	case '4', '8':
		return "BJ"
	}
	return ""
}

// Exchange-traded fund prefixes: SH ETFs (50/51/56/58), SZ ETFs and
// LOFs (15/16/18).
func isExchangeTradedFund(code string) bool {
	switch code[:2] {
	case "50", "51", "56", "58", "15", "16", "18":
		return true
	}
	return false
}
