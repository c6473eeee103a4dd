package eastmoney

import (
	"context"
	"encoding/json"
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
	return upstream.NewGate(upstream.GateConfig{Provider: "eastmoney"}, zerolog.Nop())
}

func TestQuoteDecodesPush2(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qt/stock/get", r.URL.Path)
		assert.Equal(t, "1.600519", r.URL.Query().Get("secid"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"f43":  1702.5,
				"f58":  "贵州茅台",
				"f60":  1690.0,
				"f170": 0.74,
			},
		})
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithQuoteURL(server.URL))
	q, err := c.Quote(context.Background(), domain.KindStock, "600519.SH")
	require.NoError(t, err)

	assert.Equal(t, 1702.5, q.Price)
	assert.Equal(t, 1690.0, q.PrevClose)
	assert.Equal(t, 0.74, q.ChangePct)
	assert.Equal(t, "贵州茅台", q.Name)
	assert.Equal(t, "eastmoney", q.Source)
}

func TestQuoteNullDataIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithQuoteURL(server.URL))
	_, err := c.Quote(context.Background(), domain.KindStock, "600000.SH")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNotFound, upstream.ClassOf(err))
}

func TestQuoteOpenEndFundHasNoSecID(t *testing.T) {
	c := New(testGate(), zerolog.Nop(), WithQuoteURL("http://unreachable.invalid"))

	_, err := c.Quote(context.Background(), domain.KindFund, "110011.OF")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNotFound, upstream.ClassOf(err))
}

func TestFundEstimatesResolvesDatedColumns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("codes"), "510300")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ErrCode": 0,
			"data": map[string]interface{}{
				"columns": []string{
					"基金代码",
					"基金名称",
					"2026-08-26-估算数据-估算值",
					"2026-08-26-估算数据-估算增长率",
					"2026-08-25-公布数据-单位净值",
					"2026-08-26-单位净值",
				},
				"rows": [][]interface{}{
					{"510300", "300ETF", "4.1520", "1.25", "4.0950", "4.1007"},
					{"110011", "易方达中小盘", nil, nil, "5.2110", "5.2110"},
				},
			},
		})
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithEstimateURL(server.URL))
	out, err := c.FundEstimates(context.Background(), []string{"510300.ETF", "110011.OF"})
	require.NoError(t, err)

	est, ok := out["510300.ETF"]
	require.True(t, ok)
	assert.Equal(t, domain.TradeDate("2026-08-26"), est.Date)
	require.NotNil(t, est.EstimatedNAV)
	assert.Equal(t, 4.152, *est.EstimatedNAV)
	require.NotNil(t, est.EstimatedChangePct)
	assert.Equal(t, 1.25, *est.EstimatedChangePct)
	require.NotNil(t, est.PrevUnitNAV)
	assert.Equal(t, 4.1007, *est.PrevUnitNAV, "published-data column must not shadow the unit NAV")

	_, ok = out["110011.OF"]
	assert.False(t, ok, "funds without an estimate are absent")
}

func TestFundEstimatesMissingColumns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"columns": []string{"基金代码", "基金名称"},
				"rows":    [][]interface{}{{"510300", "300ETF"}},
			},
		})
	}))
	defer server.Close()

	c := New(testGate(), zerolog.Nop(), WithEstimateURL(server.URL))
	out, err := c.FundEstimates(context.Background(), []string{"510300.ETF"})
	require.NoError(t, err)
	assert.Empty(t, out, "no estimate columns means no estimates")
}

func TestFundEstimatesEmptyRequest(t *testing.T) {
	c := New(testGate(), zerolog.Nop(), WithEstimateURL("http://unreachable.invalid"))

	out, err := c.FundEstimates(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
