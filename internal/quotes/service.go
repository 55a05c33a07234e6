// Package quotes implements the request/response price oracle: a cached,
// rate-limited REST client for quotes and symbol search, plus currency
// conversion. It shares price semantics with the streaming core but is not
// part of it.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/metrics"
	"github.com/quantjournal/tradelog/pkg/models"
)

// Oracle is the quote-lookup surface the API depends on.
type Oracle interface {
	GetQuote(ctx context.Context, ticker string) (*models.Quote, error)
}

// indianADRs maps known Indian ADR symbols to company names. Quotes for
// these carry a warning that the USD ADR price is shown, not the NSE/BSE
// price.
var indianADRs = map[string]string{
	"INFY": "Infosys Limited",
	"WIT":  "Wipro Limited",
	"HDB":  "HDFC Bank Limited",
	"IBN":  "ICICI Bank Limited",
	"TTM":  "Tata Motors Limited",
	"VEDL": "Vedanta Limited",
	"RDY":  "Dr. Reddy's Laboratories",
	"SIFY": "Sify Technologies Limited",
}

const maxSuggestions = 5

// Service is the Finnhub-backed Oracle.
type Service struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
	apiKey  string

	cache     Cache
	quoteTTL  time.Duration
	searchTTL time.Duration

	limiter *slidingWindow
}

// NewService creates a quote service. cache may be redis- or memory-backed.
func NewService(logger *zap.Logger, baseURL, apiKey string, cache Cache, quoteTTL, searchTTL time.Duration, ratePerMinute int) *Service {
	return &Service{
		logger:    logger,
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		cache:     cache,
		quoteTTL:  quoteTTL,
		searchTTL: searchTTL,
		limiter:   newSlidingWindow(ratePerMinute, time.Minute),
	}
}

// GetQuote fetches a quote for the ticker. Lookups never hard-fail: an
// unknown symbol or provider error comes back as found=false with a
// warning, and a not-found answer carries search suggestions.
func (s *Service) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	// The provider's free tier has no NSE/BSE data; reject early with
	// guidance rather than burning a rate-limited call.
	if strings.HasSuffix(ticker, ".NS") || strings.HasSuffix(ticker, ".BO") {
		return &models.Quote{
			Ticker: ticker,
			Found:  false,
			Warning: fmt.Sprintf("NSE/BSE stocks (like %s) are not available. "+
				"Try US stocks (AAPL, MSFT, ...) or Indian ADRs (INFY, WIT, HDB, IBN, ...).", ticker),
		}, nil
	}

	cacheKey := "quote:" + ticker
	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var quote models.Quote
		if err := json.Unmarshal([]byte(raw), &quote); err == nil {
			metrics.QuoteCache.WithLabelValues("hit").Inc()
			return &quote, nil
		}
	}
	metrics.QuoteCache.WithLabelValues("miss").Inc()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	current, err := s.fetchQuote(ctx, ticker)
	if err != nil {
		s.logger.Warn("quote fetch failed", zap.String("ticker", ticker), zap.Error(err))
		return &models.Quote{
			Ticker:  ticker,
			Found:   false,
			Warning: fmt.Sprintf("Failed to fetch quote: %v", err),
		}, nil
	}

	quote := &models.Quote{Ticker: ticker}
	if current.IsZero() {
		quote.Warning = fmt.Sprintf("Ticker %q not found.", ticker)
		quote.Suggestions = s.Search(ctx, ticker)
	} else {
		price := current
		quote.Price = &price
		quote.Found = true
		if name, ok := indianADRs[ticker]; ok {
			quote.Warning = fmt.Sprintf("%s (%s) is an Indian ADR. Price shown is the USD ADR price, not the NSE/BSE price.", ticker, name)
		}
	}

	if raw, err := json.Marshal(quote); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), s.quoteTTL)
	}

	return quote, nil
}

func (s *Service) fetchQuote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s", s.baseURL, url.QueryEscape(ticker), url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	// The provider answers {"c": current, "h": high, "l": low, ...}; a zero
	// current price means the symbol is unknown.
	var body struct {
		Current float64 `json:"c"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(body.Current), nil
}

// Search returns up to five US-style symbols matching the query, ranked by
// edit distance from it. Failures return no suggestions.
func (s *Service) Search(ctx context.Context, query string) []string {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	cacheKey := "search:" + query
	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var cached []string
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&token=%s", s.baseURL, url.QueryEscape(query), url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("symbol search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Result []struct {
			Symbol string `json:"symbol"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}

	// Symbols with dots or more than five characters are non-US listings.
	var symbols []string
	for _, item := range body.Result {
		if item.Symbol == "" || strings.Contains(item.Symbol, ".") || len(item.Symbol) > 5 {
			continue
		}
		symbols = append(symbols, item.Symbol)
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		return levenshtein.ComputeDistance(query, symbols[i]) < levenshtein.ComputeDistance(query, symbols[j])
	})
	if len(symbols) > maxSuggestions {
		symbols = symbols[:maxSuggestions]
	}

	if raw, err := json.Marshal(symbols); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), s.searchTTL)
	}

	return symbols
}

// slidingWindow throttles calls to limit per window, sleeping callers that
// arrive too fast.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window}
}

func (w *slidingWindow) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-w.window)
		kept := w.calls[:0]
		for _, t := range w.calls {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		w.calls = kept

		if len(w.calls) < w.limit {
			w.calls = append(w.calls, now)
			w.mu.Unlock()
			return nil
		}
		sleep := w.calls[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
