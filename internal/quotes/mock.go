package quotes

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantjournal/tradelog/pkg/models"
)

// MockOracle returns fake but plausible prices without touching any
// external API. Used in development mode (quotes.use_mock).
type MockOracle struct {
	mu          sync.Mutex
	basePrices  map[string]float64
	current     map[string]float64
	lastUpdated time.Time
}

// NewMockOracle seeds the mock with a handful of common symbols.
func NewMockOracle() *MockOracle {
	base := map[string]float64{
		"AAPL": 190.0,
		"MSFT": 420.0,
		"TSLA": 250.0,
		"INFY": 18.5,
		"WIT":  5.6,
		"HDB":  62.0,
	}
	current := make(map[string]float64, len(base))
	for k, v := range base {
		current[k] = v
	}
	return &MockOracle{
		basePrices:  base,
		current:     current,
		lastUpdated: time.Now(),
	}
}

// GetQuote returns a mock quote; unknown symbols get a stable random price.
func (m *MockOracle) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drift prices by up to ±1% every 15 seconds.
	if time.Since(m.lastUpdated) > 15*time.Second {
		for symbol, base := range m.basePrices {
			m.current[symbol] = base * (1 + (rand.Float64()*2-1)/100)
		}
		m.lastUpdated = time.Now()
	}

	price, ok := m.current[ticker]
	if !ok {
		price = 100 + rand.Float64()*2900
		m.basePrices[ticker] = price
		m.current[ticker] = price
	}

	value := decimal.NewFromFloat(price).Round(2)
	return &models.Quote{
		Ticker:  ticker,
		Price:   &value,
		Found:   true,
		Warning: "Mock data - no external API calls",
	}, nil
}
