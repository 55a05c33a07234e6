// Package metrics defines the Prometheus collectors for the journal backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnections tracks currently connected streaming clients.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradelog_ws_connections",
		Help: "Number of active client WebSocket connections",
	})

	// FeedTicks counts price ticks received from the upstream feed.
	FeedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradelog_feed_ticks_total",
		Help: "Total price ticks received from the upstream feed",
	})

	// FeedReconnects counts upstream reconnect attempts.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradelog_feed_reconnects_total",
		Help: "Total reconnect attempts to the upstream feed",
	})

	// AlertsEmitted counts stop-loss alerts pushed to clients.
	AlertsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradelog_alerts_emitted_total",
		Help: "Total stop-loss alerts emitted",
	})

	// QuoteCache counts quote lookups by cache outcome (hit or miss).
	QuoteCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradelog_quote_cache_total",
		Help: "Quote cache lookups by outcome",
	}, []string{"outcome"})
)
