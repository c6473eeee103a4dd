package sina

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/upstream"
)

func testGate() *upstream.Gate {
	return upstream.NewGate(upstream.GateConfig{Provider: "sina"}, zerolog.Nop())
}

const payload = `var hq_str_sh600519="贵州茅台,1688.000,1690.000,1702.500,1710.000,1680.000,1702.400,1702.500,2850000,4850000000,100,1702.400,2026-08-26,14:35:00,00";`

func TestQuoteParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list=sh600519", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Referer"))
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithAPIURL(server.URL))
	q, err := c.Quote(context.Background(), domain.KindStock, "600519.SH")
	require.NoError(t, err)

	assert.Equal(t, "600519.SH", q.Code)
	assert.Equal(t, 1702.5, q.Price)
	assert.Equal(t, 1690.0, q.PrevClose)
	assert.InDelta(t, 100*(1702.5-1690)/1690, q.ChangePct, 1e-9)
	assert.Equal(t, "sina", q.Source)
	assert.Equal(t, "贵州茅台", q.Name)
}

func TestQuoteETFSymbol(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `var hq_str_sh510300="300ETF,4.100,4.100,4.152,4.160,4.095,4.152,4.153,100,410,2026-08-26,14:35:00,00";`)
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithAPIURL(server.URL))
	q, err := c.Quote(context.Background(), domain.KindFund, "510300.ETF")
	require.NoError(t, err)
	assert.Equal(t, "/list=sh510300", gotPath)
	assert.Equal(t, 4.152, q.Price)
}

func TestQuoteOpenEndFundHasNoSymbol(t *testing.T) {
	c := New(testGate(), zerolog.Nop(), WithAPIURL("http://unreachable.invalid"))

	_, err := c.Quote(context.Background(), domain.KindFund, "110011.OF")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNotFound, upstream.ClassOf(err))
}

func TestQuoteEmptyRecordIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `var hq_str_sh600000="";`)
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithAPIURL(server.URL))
	_, err := c.Quote(context.Background(), domain.KindStock, "600000.SH")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNotFound, upstream.ClassOf(err))
}

func TestQuoteZeroPriceIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `var hq_str_sh600000="浦发银行,0.000,10.000,0.000,0.000,0.000,0,0,0,0,2026-08-26,09:00:00,00";`)
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithAPIURL(server.URL))
	_, err := c.Quote(context.Background(), domain.KindStock, "600000.SH")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNotFound, upstream.ClassOf(err))
}
