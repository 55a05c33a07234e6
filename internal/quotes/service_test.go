package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newProvider stands up a fake quote/search endpoint. prices maps ticker to
// current price; anything absent answers with c=0, which the provider uses
// for unknown symbols.
func newProvider(t *testing.T, prices map[string]float64, searchResults []string) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		switch r.URL.Path {
		case "/quote":
			fmt.Fprintf(w, `{"c":%v}`, prices[r.URL.Query().Get("symbol")])
		case "/search":
			w.Write([]byte(`{"result":[`))
			for i, sym := range searchResults {
				if i > 0 {
					w.Write([]byte(","))
				}
				fmt.Fprintf(w, `{"symbol":%q}`, sym)
			}
			w.Write([]byte(`]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestOracle(t *testing.T, srv *httptest.Server) *Service {
	t.Helper()
	return NewService(zap.NewNop(), srv.URL, "test-key",
		NewMemoryCache(), 5*time.Minute, 10*time.Minute, 60)
}

func TestGetQuoteFound(t *testing.T) {
	srv, _ := newProvider(t, map[string]float64{"AAPL": 150.25}, nil)
	s := newTestOracle(t, srv)

	quote, err := s.GetQuote(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Ticker)
	assert.True(t, quote.Found)
	require.NotNil(t, quote.Price)
	assert.True(t, quote.Price.Equal(decimal.NewFromFloat(150.25)))
	assert.Empty(t, quote.Warning)
	assert.Empty(t, quote.Suggestions)
}

func TestGetQuoteUsesCache(t *testing.T) {
	srv, hits := newProvider(t, map[string]float64{"AAPL": 150.25}, nil)
	s := newTestOracle(t, srv)

	_, err := s.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	quote, err := s.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.True(t, quote.Found)
	assert.Equal(t, int64(1), atomic.LoadInt64(hits))
}

func TestGetQuoteNotFoundSuggests(t *testing.T) {
	srv, _ := newProvider(t, nil, []string{"AAPL", "AAPL.MX", "APLE", "TOOLONGSYM", "AAP"})
	s := newTestOracle(t, srv)

	quote, err := s.GetQuote(context.Background(), "AAPL1")
	require.NoError(t, err)

	assert.False(t, quote.Found)
	assert.Nil(t, quote.Price)
	assert.Contains(t, quote.Warning, "not found")
	// Dotted and >5-char symbols are filtered; the rest rank by edit
	// distance from the query.
	assert.Equal(t, []string{"AAPL", "APLE", "AAP"}, quote.Suggestions)
}

func TestGetQuoteRejectsNSEAndBSE(t *testing.T) {
	srv, hits := newProvider(t, nil, nil)
	s := newTestOracle(t, srv)

	for _, ticker := range []string{"RELIANCE.NS", "TATAMOTORS.BO"} {
		quote, err := s.GetQuote(context.Background(), ticker)
		require.NoError(t, err)
		assert.False(t, quote.Found)
		assert.Contains(t, quote.Warning, "not available")
	}
	// Rejected early: the provider is never called.
	assert.Equal(t, int64(0), atomic.LoadInt64(hits))
}

func TestGetQuoteIndianADRWarning(t *testing.T) {
	srv, _ := newProvider(t, map[string]float64{"INFY": 18.5}, nil)
	s := newTestOracle(t, srv)

	quote, err := s.GetQuote(context.Background(), "INFY")
	require.NoError(t, err)

	assert.True(t, quote.Found)
	assert.Contains(t, quote.Warning, "Indian ADR")
	assert.Contains(t, quote.Warning, "Infosys")
}

func TestGetQuoteProviderErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	s := newTestOracle(t, srv)

	quote, err := s.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, quote.Found)
	assert.Contains(t, quote.Warning, "Failed to fetch quote")
}

func TestSearchCaches(t *testing.T) {
	srv, hits := newProvider(t, nil, []string{"TSLA"})
	s := newTestOracle(t, srv)

	first := s.Search(context.Background(), "tsl")
	second := s.Search(context.Background(), "TSL")

	assert.Equal(t, []string{"TSLA"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(hits))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "k", "v", 50*time.Millisecond)
	val, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", val)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestSlidingWindowThrottles(t *testing.T) {
	w := newSlidingWindow(2, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, w.Wait(ctx))
	require.NoError(t, w.Wait(ctx))
	require.NoError(t, w.Wait(ctx))
	elapsed := time.Since(start)

	// The third call must wait for the first slot to age out.
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestSlidingWindowHonorsContext(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	require.NoError(t, w.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, w.Wait(ctx))
}

func TestConverterUsesFetchedRate(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"rates":{"INR":84.2}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewConverter(zap.NewNop())
	c.url = srv.URL

	got := c.USDToINR(context.Background(), decimal.NewFromInt(10))
	assert.True(t, got.Equal(decimal.NewFromFloat(842)))

	// Second conversion serves from the cached rate.
	c.USDToINR(context.Background(), decimal.NewFromInt(1))
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestConverterFallbackRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewConverter(zap.NewNop())
	c.url = srv.URL

	got := c.USDToINR(context.Background(), decimal.NewFromInt(2))
	assert.True(t, got.Equal(decimal.NewFromFloat(167)))
}
