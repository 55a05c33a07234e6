package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/api"
	"github.com/quantjournal/tradelog/internal/database"
	"github.com/quantjournal/tradelog/internal/identities"
	"github.com/quantjournal/tradelog/internal/journal"
	"github.com/quantjournal/tradelog/internal/quotes"
	"github.com/quantjournal/tradelog/internal/stream"
	"github.com/quantjournal/tradelog/pkg/models"
)

type stubOracle struct {
	quote *models.Quote
}

func (o *stubOracle) GetQuote(context.Context, string) (*models.Quote, error) {
	return o.quote, nil
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("sqlite", ":memory:", 1, 1, time.Hour)
	require.NoError(t, err)

	logger := zap.NewNop()
	identitiesSvc, err := identities.NewService(logger, db, "test-secret", 24)
	require.NoError(t, err)
	journalSvc, err := journal.NewService(logger, db)
	require.NoError(t, err)

	price := decimal.NewFromFloat(150.25)
	oracle := &stubOracle{quote: &models.Quote{Ticker: "AAPL", Price: &price, Found: true}}

	registry := stream.NewRegistry(logger)
	wsHandler := stream.NewHandler(registry, func([]string) {}, logger)

	return api.NewServer(logger, identitiesSvc, journalSvc, oracle,
		quotes.NewConverter(logger), wsHandler, []string{"*"}, "1000-M")
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, router http.Handler, username string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealth(t *testing.T) {
	router := newTestServer(t).Router()

	w := doJSON(t, router, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthFlow(t *testing.T) {
	router := newTestServer(t).Router()

	token := registerAndLogin(t, router, "trader1")

	w := doJSON(t, router, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "trader1", user.Username)

	// Duplicate registration is a client error.
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "trader1",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad password.
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "trader1",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestServer(t).Router()

	for _, path := range []string{"/api/v1/auth/me", "/api/v1/trades/open", "/api/v1/stats"} {
		w := doJSON(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/stats", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTradeLifecycle(t *testing.T) {
	router := newTestServer(t).Router()
	token := registerAndLogin(t, router, "trader1")

	w := doJSON(t, router, http.MethodPost, "/api/v1/trades", token, map[string]interface{}{
		"ticker":      "aapl",
		"direction":   "long",
		"entry_price": 150,
		"stop_loss":   148,
		"size":        10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var trade models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trade))
	assert.Equal(t, "AAPL", trade.Ticker)
	assert.Equal(t, models.TradeStatusOpen, trade.Status)

	w = doJSON(t, router, http.MethodGet, "/api/v1/trades/open", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var open []models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	require.Len(t, open, 1)

	closePath := fmt.Sprintf("/api/v1/trades/%s/close", trade.ID)
	w = doJSON(t, router, http.MethodPut, closePath, token, map[string]interface{}{
		"exit_price": 155,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var closed models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &closed))
	require.NotNil(t, closed.ResultPnL)
	assert.True(t, closed.ResultPnL.Equal(decimal.NewFromInt(50)))

	// Closing again is rejected, as is a made-up ID.
	w = doJSON(t, router, http.MethodPut, closePath, token, map[string]interface{}{"exit_price": 160})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, http.MethodPut, "/api/v1/trades/00000000-0000-0000-0000-000000000000/close",
		token, map[string]interface{}{"exit_price": 160})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.TradeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ClosedTrades)
	assert.Equal(t, int64(1), stats.Wins)
}

func TestCreateTradeValidation(t *testing.T) {
	router := newTestServer(t).Router()
	token := registerAndLogin(t, router, "trader1")

	// Direction must be long or short.
	w := doJSON(t, router, http.MethodPost, "/api/v1/trades", token, map[string]interface{}{
		"ticker":      "AAPL",
		"direction":   "sideways",
		"entry_price": 150,
		"stop_loss":   148,
		"size":        10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradesAreScopedToUser(t *testing.T) {
	router := newTestServer(t).Router()
	token1 := registerAndLogin(t, router, "trader1")
	token2 := registerAndLogin(t, router, "trader2")

	w := doJSON(t, router, http.MethodPost, "/api/v1/trades", token1, map[string]interface{}{
		"ticker":      "AAPL",
		"direction":   "long",
		"entry_price": 150,
		"stop_loss":   148,
		"size":        10,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/trades/open", token2, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var open []models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	assert.Empty(t, open)
}

func TestSetupEndpoints(t *testing.T) {
	router := newTestServer(t).Router()
	token := registerAndLogin(t, router, "trader1")

	w := doJSON(t, router, http.MethodPost, "/api/v1/setups", token, map[string]string{
		"name":  "breakout",
		"notes": "needs volume",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/setups", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var setups []models.Setup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &setups))
	require.Len(t, setups, 1)
	assert.Equal(t, "breakout", setups[0].Name)
}

func TestGetQuote(t *testing.T) {
	router := newTestServer(t).Router()
	token := registerAndLogin(t, router, "trader1")

	w := doJSON(t, router, http.MethodGet, "/api/v1/quotes/AAPL", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quote models.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.True(t, quote.Found)
	require.NotNil(t, quote.Price)
	assert.True(t, quote.Price.Equal(decimal.NewFromFloat(150.25)))
	assert.Nil(t, quote.PriceINR)
}
