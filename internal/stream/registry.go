// Package stream implements the client-facing side of the live price
// subsystem: the per-user subscription registry, the broadcaster that fans
// events out to connections, the WebSocket client pumps, and the dispatcher
// that consumes upstream price events.
package stream

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Sender is the transport handle the registry binds per user. Send must not
// block; it reports false when the message could not be queued.
type Sender interface {
	UserID() string
	Send(v interface{}) bool
	Close()
}

// Registry tracks which tickers each connected user wants streamed and
// computes the global union needed by the upstream feed. All methods are
// safe for concurrent use; one lock guards both maps so union computation
// always observes a consistent snapshot.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[string]Sender
	subs  map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		conns:  make(map[string]Sender),
		subs:   make(map[string]map[string]struct{}),
	}
}

// Register binds a connection for the user and initializes an empty ticker
// set. Re-registering replaces the prior binding: last registration wins,
// and the evicted connection is closed.
func (r *Registry) Register(userID string, conn Sender) {
	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = conn
	r.subs[userID] = make(map[string]struct{})
	r.mu.Unlock()

	if old != nil && old != conn {
		r.logger.Warn("replacing existing connection binding", zap.String("user_id", userID))
		old.Close()
	}
}

// Unregister removes the user's binding and ticker set. Calling it for an
// unknown user is a no-op; disconnect races are expected and must not fail.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.conns, userID)
	delete(r.subs, userID)
	r.mu.Unlock()
}

// UnregisterConn removes the user's binding only if conn still owns it, and
// reports whether anything was removed. An evicted connection's cleanup races
// its replacement's registration; the stale cleanup must not tear down the
// live session.
func (r *Registry) UnregisterConn(userID string, conn Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] != conn {
		return false
	}
	delete(r.conns, userID)
	delete(r.subs, userID)
	return true
}

// AddTickers adds symbols to the user's set (upper-cased, deduplicated) and
// returns the recomputed global union. An add for an unregistered user is
// treated as empty; the connection loop never fails on it.
func (r *Registry) AddTickers(userID string, tickers []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[userID]
	if !ok {
		r.logger.Debug("subscribe for unregistered user ignored", zap.String("user_id", userID))
		return r.unionLocked()
	}
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return r.unionLocked()
}

// GlobalUnion returns the sorted set union across all registered users.
func (r *Registry) GlobalUnion() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unionLocked()
}

func (r *Registry) unionLocked() []string {
	seen := make(map[string]struct{})
	for _, set := range r.subs {
		for t := range set {
			seen[t] = struct{}{}
		}
	}
	union := make([]string, 0, len(seen))
	for t := range seen {
		union = append(union, t)
	}
	sort.Strings(union)
	return union
}

// SubscribedUsers returns the IDs of users whose set contains the ticker.
func (r *Registry) SubscribedUsers(ticker string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []string
	for userID, set := range r.subs {
		if _, ok := set[ticker]; ok {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Subscribers returns the connections subscribed to the ticker.
func (r *Registry) Subscribers(ticker string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Sender
	for userID, set := range r.subs {
		if _, ok := set[ticker]; ok {
			if conn, bound := r.conns[userID]; bound {
				conns = append(conns, conn)
			}
		}
	}
	return conns
}

// Conn returns the connection bound to the user, if any.
func (r *Registry) Conn(userID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}
