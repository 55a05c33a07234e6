// Package journal implements the trade and setup store. It also serves as
// the position store the alert evaluator scans on each price tick.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quantjournal/tradelog/pkg/models"
)

// Sentinel errors mapped to HTTP statuses by the API layer.
var (
	ErrTradeNotFound      = fmt.Errorf("trade not found")
	ErrTradeAlreadyClosed = fmt.Errorf("trade is already closed")
)

// JournalService defines trade and setup operations.
type JournalService interface {
	Start() error
	Stop() error
	CreateTrade(ctx context.Context, userID string, req *models.CreateTradeRequest) (*models.Trade, error)
	OpenTrades(ctx context.Context, userID string) ([]*models.Trade, error)
	ClosedTrades(ctx context.Context, userID string) ([]*models.Trade, error)
	CloseTrade(ctx context.Context, userID, tradeID string, req *models.CloseTradeRequest) (*models.Trade, error)
	CreateSetup(ctx context.Context, userID string, req *models.CreateSetupRequest) (*models.Setup, error)
	ListSetups(ctx context.Context, userID string) ([]*models.Setup, error)
	Stats(ctx context.Context, userID string) (*models.TradeStats, error)
	FindOpenPositions(ctx context.Context, userID, ticker string) ([]models.OpenPosition, error)
}

// Service implements JournalService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new JournalService
func NewService(logger *zap.Logger, db *gorm.DB) (JournalService, error) {
	return &Service{logger: logger, db: db}, nil
}

// Start starts the journal service
func (s *Service) Start() error {
	s.logger.Info("Journal service started")
	return nil
}

// Stop stops the journal service
func (s *Service) Stop() error {
	s.logger.Info("Journal service stopped")
	return nil
}

// CreateTrade records a new open trade
func (s *Service) CreateTrade(ctx context.Context, userID string, req *models.CreateTradeRequest) (*models.Trade, error) {
	entryDate := time.Now()
	if req.EntryDate != nil {
		entryDate = *req.EntryDate
	}

	trade := &models.Trade{
		ID:               uuid.New(),
		UserID:           userID,
		Ticker:           strings.ToUpper(strings.TrimSpace(req.Ticker)),
		Direction:        req.Direction,
		EntryPrice:       req.EntryPrice,
		StopLoss:         req.StopLoss,
		Size:             req.Size,
		Status:           models.TradeStatusOpen,
		EntryDate:        entryDate,
		MarketConditions: req.MarketConditions,
		Emotions:         req.Emotions,
		SetupID:          req.SetupID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	return trade, nil
}

// OpenTrades lists the user's open trades
func (s *Service) OpenTrades(ctx context.Context, userID string) ([]*models.Trade, error) {
	return s.tradesByStatus(ctx, userID, models.TradeStatusOpen)
}

// ClosedTrades lists the user's closed trades
func (s *Service) ClosedTrades(ctx context.Context, userID string) ([]*models.Trade, error) {
	return s.tradesByStatus(ctx, userID, models.TradeStatusClosed)
}

func (s *Service) tradesByStatus(ctx context.Context, userID, status string) ([]*models.Trade, error) {
	var trades []*models.Trade
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("entry_date DESC").
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// CloseTrade closes an open trade and realizes its P&L. For a long trade the
// result is (exit - entry) * size; for a short it is (entry - exit) * size.
func (s *Service) CloseTrade(ctx context.Context, userID, tradeID string, req *models.CloseTradeRequest) (*models.Trade, error) {
	var trade models.Trade
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", tradeID, userID).First(&trade).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to find trade: %w", err)
	}

	if trade.Status == models.TradeStatusClosed {
		return nil, ErrTradeAlreadyClosed
	}

	size := decimal.NewFromInt(trade.Size)
	var pnl decimal.Decimal
	if trade.Direction == models.DirectionShort {
		pnl = trade.EntryPrice.Sub(req.ExitPrice).Mul(size)
	} else {
		pnl = req.ExitPrice.Sub(trade.EntryPrice).Mul(size)
	}

	now := time.Now()
	trade.Status = models.TradeStatusClosed
	trade.ExitPrice = &req.ExitPrice
	trade.ExitDate = &now
	trade.ResultPnL = &pnl
	trade.LessonsLearned = req.LessonsLearned
	trade.UpdatedAt = now

	if err := s.db.WithContext(ctx).Save(&trade).Error; err != nil {
		return nil, fmt.Errorf("failed to save trade: %w", err)
	}

	return &trade, nil
}

// CreateSetup records a new setup
func (s *Service) CreateSetup(ctx context.Context, userID string, req *models.CreateSetupRequest) (*models.Setup, error) {
	setup := &models.Setup{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      req.Name,
		Notes:     req.Notes,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(setup).Error; err != nil {
		return nil, fmt.Errorf("failed to create setup: %w", err)
	}
	return setup, nil
}

// ListSetups lists the user's setups
func (s *Service) ListSetups(ctx context.Context, userID string) ([]*models.Setup, error) {
	var setups []*models.Setup
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&setups).Error; err != nil {
		return nil, fmt.Errorf("failed to list setups: %w", err)
	}
	return setups, nil
}

// Stats aggregates the user's journal
func (s *Service) Stats(ctx context.Context, userID string) (*models.TradeStats, error) {
	var trades []*models.Trade
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	stats := &models.TradeStats{TotalPnL: decimal.Zero}
	for _, t := range trades {
		stats.TotalTrades++
		if t.Status == models.TradeStatusOpen {
			stats.OpenTrades++
			continue
		}
		stats.ClosedTrades++
		if t.ResultPnL == nil {
			continue
		}
		stats.TotalPnL = stats.TotalPnL.Add(*t.ResultPnL)
		if t.ResultPnL.IsPositive() {
			stats.Wins++
		} else {
			stats.Losses++
		}
	}
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.ClosedTrades)
	}

	return stats, nil
}

// FindOpenPositions returns the user's open positions for a ticker. The
// direction-aware stop comparison is left to the caller.
func (s *Service) FindOpenPositions(ctx context.Context, userID, ticker string) ([]models.OpenPosition, error) {
	var trades []*models.Trade
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND ticker = ? AND status = ?", userID, ticker, models.TradeStatusOpen).
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to find open positions: %w", err)
	}

	positions := make([]models.OpenPosition, 0, len(trades))
	for _, t := range trades {
		positions = append(positions, models.OpenPosition{
			TradeID:   t.ID,
			UserID:    t.UserID,
			Ticker:    t.Ticker,
			Direction: t.Direction,
			StopPrice: t.StopLoss,
		})
	}
	return positions, nil
}
