// Package feed owns the single outbound streaming connection to the
// market-data provider and keeps its subscription set converged with the
// registry's global union.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/metrics"
	"github.com/quantjournal/tradelog/pkg/models"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
)

// Conn is the slice of *websocket.Conn the adapter needs; tests substitute
// a fake.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Dialer opens one upstream connection.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// UnionSource supplies the desired subscription set on (re)connect.
type UnionSource interface {
	GlobalUnion() []string
}

// controlMessage is the provider's symbol-granular subscribe protocol.
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// tickMessage is the provider's trade event envelope.
type tickMessage struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
	} `json:"data"`
}

// Adapter maintains exactly one upstream connection. The provider keeps no
// state across connections and sends no acks, so reconciliation is
// best-effort and every reconnect resubscribes the full union.
type Adapter struct {
	logger *zap.Logger
	url    string
	unions UnionSource
	dial   Dialer

	backoffMin time.Duration
	backoffMax time.Duration

	events chan models.PriceEvent

	mu      sync.Mutex
	conn    Conn
	current map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdapter creates an Adapter. wsURL is the provider endpoint without the
// token query parameter.
func NewAdapter(logger *zap.Logger, wsURL, token string, unions UnionSource, backoffMin, backoffMax time.Duration, bufferSize int) *Adapter {
	return &Adapter{
		logger:     logger,
		url:        fmt.Sprintf("%s?token=%s", wsURL, token),
		unions:     unions,
		dial:       defaultDialer,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		events:     make(chan models.PriceEvent, bufferSize),
		current:    make(map[string]struct{}),
	}
}

// Events returns the channel of parsed price events. It is closed by Stop.
func (a *Adapter) Events() <-chan models.PriceEvent {
	return a.events
}

// Start launches the connection loop.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run()
	a.logger.Info("Upstream feed adapter started")
	return nil
}

// Stop tears down the upstream connection and closes the event channel.
func (a *Adapter) Stop() error {
	a.cancel()
	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
	close(a.events)
	a.logger.Info("Upstream feed adapter stopped")
	return nil
}

// run dials, resubscribes, and reads until the connection drops, then
// retries with exponential backoff and jitter. Provider failures are never
// fatal to the process; quote delivery just degrades until reconnection.
func (a *Adapter) run() {
	defer a.wg.Done()

	backoff := a.backoffMin
	for {
		if a.ctx.Err() != nil {
			return
		}

		conn, err := a.dial(a.ctx, a.url)
		if err != nil {
			metrics.FeedReconnects.Inc()
			wait := jitter(backoff)
			a.logger.Warn("upstream dial failed, retrying",
				zap.Error(err), zap.Duration("backoff", wait))
			if !a.sleep(wait) {
				return
			}
			backoff = nextBackoff(backoff, a.backoffMax)
			continue
		}
		backoff = a.backoffMin

		// The provider forgets subscriptions across connections: reset the
		// reconciliation baseline so the whole union is resubscribed.
		a.mu.Lock()
		a.conn = conn
		a.current = make(map[string]struct{})
		a.mu.Unlock()

		a.logger.Info("upstream feed connected")
		a.Reconcile(a.unions.GlobalUnion())

		a.readLoop(conn)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		conn.Close()

		if a.ctx.Err() != nil {
			return
		}
		metrics.FeedReconnects.Inc()
		a.logger.Warn("upstream feed disconnected, reconnecting")
	}
}

func (a *Adapter) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-a.ctx.Done():
		return false
	}
}

// Reconcile converges the upstream subscription set toward desired, sending
// one control message per changed symbol and none for symbols present in
// both sets. The current set is updated after dispatch; the provider does
// not ack, so divergence during network round-trips is accepted.
func (a *Adapter) Reconcile(desired []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		// Disconnected; the next successful dial resubscribes from scratch.
		return
	}

	want := make(map[string]struct{}, len(desired))
	for _, t := range desired {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			want[t] = struct{}{}
		}
	}

	for symbol := range a.current {
		if _, keep := want[symbol]; !keep {
			a.sendControl("unsubscribe", symbol)
		}
	}
	for symbol := range want {
		if _, have := a.current[symbol]; !have {
			a.sendControl("subscribe", symbol)
		}
	}

	a.current = want
}

func (a *Adapter) sendControl(msgType, symbol string) {
	if err := a.conn.WriteJSON(controlMessage{Type: msgType, Symbol: symbol}); err != nil {
		a.logger.Warn("failed to send control message",
			zap.String("type", msgType), zap.String("symbol", symbol), zap.Error(err))
	}
}

// readLoop consumes the socket until it errors. A per-connection pinger
// keeps the read deadline alive through quiet periods.
func (a *Adapter) readLoop(conn Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			case <-pingDone:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		a.handleMessage(raw)
	}
}

// handleMessage parses one inbound frame and emits a PriceEvent per trade
// element. Malformed or unrecognized shapes are dropped, not fatal.
func (a *Adapter) handleMessage(raw []byte) {
	var msg tickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug("dropping malformed feed message", zap.Error(err))
		return
	}
	if msg.Type != "trade" {
		a.logger.Debug("dropping feed message of unhandled type", zap.String("type", msg.Type))
		return
	}

	for _, t := range msg.Data {
		if t.Symbol == "" {
			continue
		}
		metrics.FeedTicks.Inc()
		event := models.PriceEvent{
			Ticker:    t.Symbol,
			Price:     decimal.NewFromFloat(t.Price),
			Timestamp: time.Now(),
		}
		select {
		case a.events <- event:
		default:
			a.logger.Warn("price event buffer full, dropping tick", zap.String("ticker", t.Symbol))
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// jitter spreads a delay over [d/2, 3d/2) so reconnect storms decorrelate.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
