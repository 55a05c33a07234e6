package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 256
)

// subscribeRequest is the only inbound frame clients send.
type subscribeRequest struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

// Handler upgrades client connections and runs their pumps.
type Handler struct {
	registry      *Registry
	onUnionChange func(union []string)
	logger        *zap.Logger
	upgrader      websocket.Upgrader
}

// NewHandler creates a streaming handler. onUnionChange is invoked after
// every registry mutation that may have changed the global union; the
// composition root points it at the feed adapter's Reconcile.
func NewHandler(registry *Registry, onUnionChange func(union []string), logger *zap.Logger) *Handler {
	return &Handler{
		registry:      registry,
		onUnionChange: onUnionChange,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection under userID.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &Client{
		userID:  userID,
		conn:    conn,
		send:    make(chan interface{}, sendBuffer),
		done:    make(chan struct{}),
		handler: h,
		logger:  h.logger,
	}

	h.registry.Register(userID, c)
	metrics.WSConnections.Inc()
	h.logger.Info("client connected", zap.String("user_id", userID))

	go c.writePump()
	go c.readPump()
}

// Client is one live user session. The transport handle is owned here for
// the lifetime of the session; everything else talks to it through Send.
type Client struct {
	userID  string
	conn    *websocket.Conn
	send    chan interface{}
	done    chan struct{}
	handler *Handler
	logger  *zap.Logger

	closeOnce sync.Once
}

// UserID returns the user this connection belongs to.
func (c *Client) UserID() string { return c.userID }

// Send queues a message without blocking. It reports false if the client is
// gone or its buffer is full.
func (c *Client) Send(v interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump consumes subscribe requests until the connection drops, then
// cleans up. Malformed frames are dropped with a log; the connection stays
// open.
func (c *Client) readPump() {
	defer func() {
		// Only tear down the binding this connection still owns: if the user
		// reconnected, the registry already points at the replacement.
		removed := c.handler.registry.UnregisterConn(c.userID, c)
		c.Close()
		metrics.WSConnections.Dec()
		if removed {
			// The departed user may have been the last one holding a ticker.
			c.handler.onUnionChange(c.handler.registry.GlobalUnion())
		}
		c.logger.Info("client disconnected", zap.String("user_id", c.userID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.logger.Debug("dropping malformed client message", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		if req.Type != "subscribe" {
			c.logger.Debug("dropping client message of unknown type",
				zap.String("user_id", c.userID), zap.String("type", req.Type))
			continue
		}

		union := c.handler.registry.AddTickers(c.userID, req.Tickers)
		c.handler.onUnionChange(union)
	}
}

// writePump serializes outbound messages and heartbeats.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
