package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/internal/database"
	"github.com/quantjournal/tradelog/internal/journal"
	"github.com/quantjournal/tradelog/pkg/models"
)

func newTestService(t *testing.T) journal.JournalService {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", 1, 1, time.Hour)
	require.NoError(t, err)
	svc, err := journal.NewService(zap.NewNop(), db)
	require.NoError(t, err)
	return svc
}

func openTrade(t *testing.T, svc journal.JournalService, userID, ticker, direction string, entry, stop float64) *models.Trade {
	t.Helper()
	trade, err := svc.CreateTrade(context.Background(), userID, &models.CreateTradeRequest{
		Ticker:     ticker,
		Direction:  direction,
		EntryPrice: decimal.NewFromFloat(entry),
		StopLoss:   decimal.NewFromFloat(stop),
		Size:       10,
	})
	require.NoError(t, err)
	return trade
}

func TestCreateTradeNormalizesTicker(t *testing.T) {
	svc := newTestService(t)

	trade := openTrade(t, svc, "user1", " aapl ", models.DirectionLong, 150, 148)

	assert.Equal(t, "AAPL", trade.Ticker)
	assert.Equal(t, models.TradeStatusOpen, trade.Status)
	assert.Nil(t, trade.ResultPnL)
}

func TestCloseTradeLongPnL(t *testing.T) {
	svc := newTestService(t)
	trade := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)

	closed, err := svc.CloseTrade(context.Background(), "user1", trade.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(155), LessonsLearned: "let winners run"})
	require.NoError(t, err)

	// (155 - 150) * 10
	require.NotNil(t, closed.ResultPnL)
	assert.True(t, closed.ResultPnL.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, models.TradeStatusClosed, closed.Status)
	assert.NotNil(t, closed.ExitDate)
	assert.Equal(t, "let winners run", closed.LessonsLearned)
}

func TestCloseTradeShortPnL(t *testing.T) {
	svc := newTestService(t)
	trade := openTrade(t, svc, "user1", "TSLA", models.DirectionShort, 200, 205)

	closed, err := svc.CloseTrade(context.Background(), "user1", trade.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(190)})
	require.NoError(t, err)

	// (200 - 190) * 10
	assert.True(t, closed.ResultPnL.Equal(decimal.NewFromInt(100)))
}

func TestCloseTradeTwice(t *testing.T) {
	svc := newTestService(t)
	trade := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)

	_, err := svc.CloseTrade(context.Background(), "user1", trade.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(155)})
	require.NoError(t, err)

	_, err = svc.CloseTrade(context.Background(), "user1", trade.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(160)})
	assert.ErrorIs(t, err, journal.ErrTradeAlreadyClosed)
}

func TestCloseTradeNotFound(t *testing.T) {
	svc := newTestService(t)
	trade := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)

	// Unknown ID and another user's trade both read as not found.
	_, err := svc.CloseTrade(context.Background(), "user1", "00000000-0000-0000-0000-000000000000",
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(155)})
	assert.ErrorIs(t, err, journal.ErrTradeNotFound)

	_, err = svc.CloseTrade(context.Background(), "user2", trade.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(155)})
	assert.ErrorIs(t, err, journal.ErrTradeNotFound)
}

func TestOpenAndClosedTradeListsAreScoped(t *testing.T) {
	svc := newTestService(t)
	kept := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)
	toClose := openTrade(t, svc, "user1", "TSLA", models.DirectionLong, 700, 690)
	openTrade(t, svc, "user2", "MSFT", models.DirectionLong, 400, 395)

	_, err := svc.CloseTrade(context.Background(), "user1", toClose.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(710)})
	require.NoError(t, err)

	open, err := svc.OpenTrades(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, kept.ID, open[0].ID)

	closed, err := svc.ClosedTrades(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, toClose.ID, closed[0].ID)
}

func TestStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	win := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)
	loss := openTrade(t, svc, "user1", "TSLA", models.DirectionLong, 700, 690)
	openTrade(t, svc, "user1", "MSFT", models.DirectionLong, 400, 395)

	_, err := svc.CloseTrade(ctx, "user1", win.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(160)}) // +100
	require.NoError(t, err)
	_, err = svc.CloseTrade(ctx, "user1", loss.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(696)}) // -40
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.OpenTrades)
	assert.Equal(t, int64(2), stats.ClosedTrades)
	assert.Equal(t, int64(1), stats.Wins)
	assert.Equal(t, int64(1), stats.Losses)
	assert.InDelta(t, 0.5, stats.WinRate, 1e-9)
	assert.True(t, stats.TotalPnL.Equal(decimal.NewFromInt(60)))
}

func TestFindOpenPositions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	trade := openTrade(t, svc, "user1", "AAPL", models.DirectionLong, 150, 148)
	closedOut := openTrade(t, svc, "user1", "AAPL", models.DirectionShort, 155, 160)
	openTrade(t, svc, "user1", "TSLA", models.DirectionLong, 700, 690)
	openTrade(t, svc, "user2", "AAPL", models.DirectionLong, 150, 148)

	_, err := svc.CloseTrade(ctx, "user1", closedOut.ID.String(),
		&models.CloseTradeRequest{ExitPrice: decimal.NewFromFloat(150)})
	require.NoError(t, err)

	positions, err := svc.FindOpenPositions(ctx, "user1", "AAPL")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, trade.ID, positions[0].TradeID)
	assert.Equal(t, models.DirectionLong, positions[0].Direction)
	assert.True(t, positions[0].StopPrice.Equal(decimal.NewFromInt(148)))
}

func TestSetups(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	setup, err := svc.CreateSetup(ctx, "user1", &models.CreateSetupRequest{
		Name:  "breakout",
		Notes: "volume confirmation required",
	})
	require.NoError(t, err)

	_, err = svc.CreateSetup(ctx, "user2", &models.CreateSetupRequest{Name: "reversal"})
	require.NoError(t, err)

	setups, err := svc.ListSetups(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, setups, 1)
	assert.Equal(t, setup.ID, setups[0].ID)
	assert.Equal(t, "breakout", setups[0].Name)
}
