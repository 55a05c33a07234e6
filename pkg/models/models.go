// Package models holds the shared data structures for the trading journal.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade direction values.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Trade status values.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// User represents a registered journal user.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// Email uniqueness is enforced in the identities service so that users
	// without an email do not collide on an empty-string unique index.
	Email        string    `gorm:"index" json:"email,omitempty"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Trade represents a single journaled trade. A trade is created open and
// stays open until the user closes it explicitly; stop-loss alerts never
// change its status.
type Trade struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string           `gorm:"index;not null" json:"user_id"`
	Ticker           string           `gorm:"index;not null" json:"ticker"`
	Direction        string           `gorm:"not null" json:"direction"`
	EntryPrice       decimal.Decimal  `gorm:"type:decimal(20,8)" json:"entry_price"`
	StopLoss         decimal.Decimal  `gorm:"type:decimal(20,8)" json:"stop_loss"`
	Size             int64            `json:"size"`
	Status           string           `gorm:"index;not null" json:"status"`
	EntryDate        time.Time        `json:"entry_date"`
	ExitPrice        *decimal.Decimal `gorm:"type:decimal(20,8)" json:"exit_price,omitempty"`
	ExitDate         *time.Time       `json:"exit_date,omitempty"`
	ResultPnL        *decimal.Decimal `gorm:"type:decimal(20,8)" json:"result_pnl,omitempty"`
	LessonsLearned   string           `json:"lessons_learned,omitempty"`
	MarketConditions string           `json:"market_conditions,omitempty"`
	Emotions         string           `json:"emotions,omitempty"`
	SetupID          *uuid.UUID       `gorm:"type:uuid" json:"setup_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Setup represents a named trade setup the user tags trades with.
type Setup struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenPosition is the read-only view of an open trade the alert evaluator
// scans on each price tick.
type OpenPosition struct {
	TradeID   uuid.UUID
	UserID    string
	Ticker    string
	Direction string
	StopPrice decimal.Decimal
}

// PriceEvent is one upstream market tick. Ephemeral, never persisted.
type PriceEvent struct {
	Ticker    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// AlertEvent is a stop-loss alert destined for the owning user's connection.
type AlertEvent struct {
	Ticker  string
	TradeID uuid.UUID
	UserID  string
	Price   decimal.Decimal
	Message string
}

// RegisterRequest is the payload for user registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// LoginRequest is the payload for user login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	User        *User  `json:"user,omitempty"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateTradeRequest is the payload for opening a new trade.
type CreateTradeRequest struct {
	Ticker           string          `json:"ticker" binding:"required"`
	Direction        string          `json:"direction" binding:"required,oneof=long short"`
	EntryPrice       decimal.Decimal `json:"entry_price" binding:"required"`
	StopLoss         decimal.Decimal `json:"stop_loss" binding:"required"`
	Size             int64           `json:"size" binding:"required,gt=0"`
	EntryDate        *time.Time      `json:"entry_date,omitempty"`
	MarketConditions string          `json:"market_conditions,omitempty"`
	Emotions         string          `json:"emotions,omitempty"`
	SetupID          *uuid.UUID      `json:"setup_id,omitempty"`
}

// CloseTradeRequest is the payload for closing an open trade.
type CloseTradeRequest struct {
	ExitPrice      decimal.Decimal `json:"exit_price" binding:"required"`
	LessonsLearned string          `json:"lessons_learned,omitempty"`
}

// CreateSetupRequest is the payload for recording a setup.
type CreateSetupRequest struct {
	Name  string `json:"name" binding:"required"`
	Notes string `json:"notes,omitempty"`
}

// TradeStats aggregates a user's journal.
type TradeStats struct {
	TotalTrades  int64           `json:"total_trades"`
	OpenTrades   int64           `json:"open_trades"`
	ClosedTrades int64           `json:"closed_trades"`
	Wins         int64           `json:"wins"`
	Losses       int64           `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
}

// Quote is the response shape of the price oracle.
type Quote struct {
	Ticker      string           `json:"ticker"`
	Price       *decimal.Decimal `json:"price"`
	PriceINR    *decimal.Decimal `json:"price_inr,omitempty"`
	Found       bool             `json:"found"`
	Warning     string           `json:"warning,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}
