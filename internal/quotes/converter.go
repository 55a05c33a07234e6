package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRateURL = "https://api.exchangerate-api.com/v4/latest/USD"

// fallbackUSDToINR is used when the rate API is unreachable and no cached
// rate exists yet.
var fallbackUSDToINR = decimal.NewFromFloat(83.5)

// Converter converts USD amounts to INR using a cached live exchange rate.
type Converter struct {
	logger *zap.Logger
	client *http.Client
	url    string
	ttl    time.Duration

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

// NewConverter creates a Converter with a 1-hour rate cache.
func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		url:    defaultRateURL,
		ttl:    time.Hour,
	}
}

// USDToINR converts an amount. Rate fetch failures fall back to the last
// known rate, or an approximate constant if none exists.
func (c *Converter) USDToINR(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.usdToINRRate(ctx))
}

func (c *Converter) usdToINRRate(ctx context.Context) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rate.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.rate
	}

	rate, err := c.fetchRate(ctx)
	if err != nil {
		c.logger.Warn("exchange rate fetch failed", zap.Error(err))
		if c.rate.IsZero() {
			c.rate = fallbackUSDToINR
		}
		return c.rate
	}

	c.rate = rate
	c.fetchedAt = time.Now()
	return c.rate
}

func (c *Converter) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	inr, ok := body.Rates["INR"]
	if !ok || inr == 0 {
		return decimal.Zero, fmt.Errorf("INR rate missing from response")
	}
	return decimal.NewFromFloat(inr), nil
}
