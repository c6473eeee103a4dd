package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/upstream"
)

func testClient(url string, keys ...string) *Client {
	gate := upstream.NewGate(upstream.GateConfig{Provider: "websearch"}, zerolog.Nop())
	pool := upstream.NewKeyPool("websearch", keys, zerolog.Nop())
	return New(gate, pool, zerolog.Nop(), WithAPIURL(url))
}

func TestSearchReturnsHeadlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-KEY"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "贵州茅台 利好", req.Query)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{
				{"title": "茅台三季报超预期", "link": "https://example.com/1", "snippet": "..."},
				{"title": "白酒板块走强", "link": "https://example.com/2", "snippet": "..."},
				{"title": "第三条", "link": "https://example.com/3", "snippet": "..."},
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, "key-1", "key-2")
	out, err := c.Search(context.Background(), "贵州茅台 利好", 2)
	require.NoError(t, err)
	require.Len(t, out, 2, "limit caps the result")
	assert.Equal(t, "茅台三季报超预期", out[0].Title)
	assert.Equal(t, "https://example.com/1", out[0].URL)
}

func TestSearchRotatesKeyOnQuota(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-API-KEY") == "burned" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{{"title": "ok", "link": "https://example.com"}},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, "burned", "fresh")

	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassRateLimited, upstream.ClassOf(err))
	assert.Equal(t, 1, c.keys.Size(), "exhausted key leaves the pool")

	out, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err, "next call proceeds on the remaining key")
	assert.Len(t, out, 1)
}

func TestSearchRetriesOnNextKeyWithinOneCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") == "burned" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{{"title": "ok", "link": "https://example.com"}},
		})
	}))
	defer server.Close()

	gate := upstream.NewGate(upstream.GateConfig{
		Provider:       "websearch",
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}, zerolog.Nop())
	pool := upstream.NewKeyPool("websearch", []string{"burned", "fresh"}, zerolog.Nop())
	c := New(gate, pool, zerolog.Nop(), WithAPIURL(server.URL))

	out, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err, "quota rejection retries the call on the next key")
	assert.Len(t, out, 1)
	assert.Equal(t, 1, pool.Size(), "burned key left the pool")
	assert.Equal(t, int64(1), gate.Snapshot().Retries)
}

func TestSearchEmptyPool(t *testing.T) {
	c := testClient("http://unreachable.invalid")

	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassNoKeyAvailable, upstream.ClassOf(err))
}
