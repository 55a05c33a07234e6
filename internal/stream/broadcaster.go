package stream

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/metrics"
	"github.com/quantjournal/tradelog/pkg/models"
)

// PriceUpdateMessage is the outbound price frame.
type PriceUpdateMessage struct {
	Type   string          `json:"type"`
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

// AlertMessage is the outbound stop-loss alert frame.
type AlertMessage struct {
	Type    string `json:"type"`
	Ticker  string `json:"ticker"`
	TradeID string `json:"trade_id"`
	Message string `json:"message"`
}

// Broadcaster fans price and alert events out to the connections that want
// them. Delivery is best-effort per connection: one slow or broken client
// never blocks the others.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroadcaster creates a Broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// PushPrice delivers a price update to every connection subscribed to the
// event's ticker.
func (b *Broadcaster) PushPrice(event models.PriceEvent) {
	msg := PriceUpdateMessage{Type: "price_update", Ticker: event.Ticker, Price: event.Price}
	for _, conn := range b.registry.Subscribers(event.Ticker) {
		if !conn.Send(msg) {
			b.logger.Warn("dropping price update for slow client",
				zap.String("user_id", conn.UserID()),
				zap.String("ticker", event.Ticker))
		}
	}
}

// PushAlert delivers an alert to the connection owning the event's user, if
// connected. Alerts for offline users are dropped; there is no queueing.
func (b *Broadcaster) PushAlert(event models.AlertEvent) {
	conn, ok := b.registry.Conn(event.UserID)
	if !ok {
		b.logger.Debug("alert dropped, user not connected",
			zap.String("user_id", event.UserID),
			zap.String("ticker", event.Ticker))
		return
	}

	msg := AlertMessage{
		Type:    "alert",
		Ticker:  event.Ticker,
		TradeID: event.TradeID.String(),
		Message: event.Message,
	}
	if !conn.Send(msg) {
		b.logger.Warn("dropping alert for slow client", zap.String("user_id", event.UserID))
		return
	}
	metrics.AlertsEmitted.Inc()
}
