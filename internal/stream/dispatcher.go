package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/pkg/models"
)

// AlertChecker evaluates one price event for stop-loss crossings.
type AlertChecker interface {
	Evaluate(ctx context.Context, event models.PriceEvent)
}

// Dispatcher is the single consumer of the feed's price-event channel. It
// pushes each price to subscribers in channel order, then kicks off alert
// evaluation for the tick without waiting for it; alerts may lag the price
// they describe.
type Dispatcher struct {
	events      <-chan models.PriceEvent
	broadcaster *Broadcaster
	alerts      AlertChecker
	logger      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewDispatcher creates a dispatcher over the given event channel.
func NewDispatcher(events <-chan models.PriceEvent, broadcaster *Broadcaster, alerts AlertChecker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		events:      events,
		broadcaster: broadcaster,
		alerts:      alerts,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() {
	go d.run()
	d.logger.Info("Dispatcher started")
}

// Stop terminates the dispatch loop and waits for it to drain.
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case event, ok := <-d.events:
			if !ok {
				return
			}
			d.broadcaster.PushPrice(event)
			go d.alerts.Evaluate(context.Background(), event)
		case <-d.stop:
			return
		}
	}
}
