// Package alerts implements the stop-loss evaluation pass that runs on
// every upstream price tick.
package alerts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/models"
)

// PositionFinder is the read-only collaborator surface of the trade store.
type PositionFinder interface {
	FindOpenPositions(ctx context.Context, userID, ticker string) ([]models.OpenPosition, error)
}

// SubscriberSource reports which users are subscribed to a ticker.
type SubscriberSource interface {
	SubscribedUsers(ticker string) []string
}

// AlertSink receives the emitted alert events.
type AlertSink interface {
	PushAlert(event models.AlertEvent)
}

// Evaluator scans open positions on each price event and emits one alert
// per position whose stop has been crossed. It never mutates positions:
// closing a trade is an explicit user action, so a price oscillating across
// the stop boundary re-alerts every time.
type Evaluator struct {
	finder      PositionFinder
	subscribers SubscriberSource
	sink        AlertSink
	logger      *zap.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(finder PositionFinder, subscribers SubscriberSource, sink AlertSink, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		finder:      finder,
		subscribers: subscribers,
		sink:        sink,
		logger:      logger,
	}
}

// Evaluate checks every subscribed user's open positions for the ticked
// symbol. Only users subscribed to the ticker are scanned, even if others
// hold positions in it. Store failures skip the tick; the next tick
// re-evaluates current state.
func (e *Evaluator) Evaluate(ctx context.Context, event models.PriceEvent) {
	for _, userID := range e.subscribers.SubscribedUsers(event.Ticker) {
		positions, err := e.finder.FindOpenPositions(ctx, userID, event.Ticker)
		if err != nil {
			e.logger.Warn("skipping alert evaluation, position lookup failed",
				zap.String("user_id", userID),
				zap.String("ticker", event.Ticker),
				zap.Error(err))
			continue
		}

		for _, pos := range positions {
			if !stopCrossed(pos, event) {
				continue
			}
			e.sink.PushAlert(models.AlertEvent{
				Ticker:  event.Ticker,
				TradeID: pos.TradeID,
				UserID:  pos.UserID,
				Price:   event.Price,
				Message: fmt.Sprintf("Stop loss triggered for %s at $%s", event.Ticker, event.Price),
			})
		}
	}
}

// stopCrossed applies the direction rule: a long stop is downside
// protection and fires at price <= stop; a short stop fires at
// price >= stop.
func stopCrossed(pos models.OpenPosition, event models.PriceEvent) bool {
	switch pos.Direction {
	case models.DirectionLong:
		return event.Price.LessThanOrEqual(pos.StopPrice)
	case models.DirectionShort:
		return event.Price.GreaterThanOrEqual(pos.StopPrice)
	default:
		return false
	}
}
