// Package broadcast fans simulation snapshots out to subscribed renderers.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/scenariosim/scenariosim/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBuffer is the per-subscriber queue size used when none is configured.
const DefaultBuffer = 64

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*config)

type config struct {
	bufferSize int
}

// Buffered sets the subscriber queue size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Subscription receives snapshots for one scenario. C is closed when the
// subscription is removed or the scenario's session ends.
type Subscription struct {
	C        <-chan core.Snapshot
	scenario string
	ch       chan core.Snapshot
	closed   bool
}

// Scenario returns the scenario this subscription follows.
func (s *Subscription) Scenario() string {
	return s.scenario
}

// Hub routes snapshots to subscribers by scenario name. Publish never blocks:
// a subscriber whose queue is full misses that snapshot.
type Hub struct {
	logger Logger
	buffer int

	// OTEL metrics
	subscribersGauge metric.Int64ObservableGauge
	delivered        metric.Int64Counter
	dropped          metric.Int64Counter

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// New creates a new Hub with the given logger and default subscriber buffer.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, buffer int) (*Hub, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h := &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}

	m := meter()

	var err error

	h.subscribersGauge, err = m.Int64ObservableGauge(
		"broadcast.subscribers",
		metric.WithDescription("Current number of snapshot subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscribers gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			h.mu.RLock()
			defer h.mu.RUnlock()
			for scenario, set := range h.subs {
				o.ObserveInt64(h.subscribersGauge, int64(len(set)),
					metric.WithAttributes(attribute.String("scenario", scenario)))
			}
			return nil
		},
		h.subscribersGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering subscribers callback: %w", err)
	}

	h.delivered, err = m.Int64Counter(
		"broadcast.snapshots.delivered",
		metric.WithDescription("Total snapshots queued to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	h.dropped, err = m.Int64Counter(
		"broadcast.snapshots.dropped",
		metric.WithDescription("Total snapshots dropped due to full subscriber queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return h, nil
}

// Subscribe registers a new subscriber for scenario.
func (h *Hub) Subscribe(scenario string, opts ...Option) *Subscription {
	cfg := &config{bufferSize: h.buffer}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = 1
	}

	ch := make(chan core.Snapshot, cfg.bufferSize)
	sub := &Subscription{C: ch, scenario: scenario, ch: ch}

	h.mu.Lock()
	set, ok := h.subs[scenario]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[scenario] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "scenario", scenario, "subscribers", n)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	if set, ok := h.subs[sub.scenario]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.scenario)
		}
	}
	sub.closed = true
	close(sub.ch)
	h.logger.Debug("subscriber removed", "scenario", sub.scenario)
}

// Publish queues snap to every subscriber of snap.Scenario.
// It returns the number of subscribers that received it.
func (h *Hub) Publish(snap core.Snapshot) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[snap.Scenario]
	if len(set) == 0 {
		return 0
	}

	attrs := metric.WithAttributes(attribute.String("scenario", snap.Scenario))
	sent := 0
	for sub := range set {
		select {
		case sub.ch <- snap.Clone():
			sent++
			h.delivered.Add(context.Background(), 1, attrs)
		default:
			h.dropped.Add(context.Background(), 1, attrs)
			h.logger.Debug("subscriber queue full, snapshot dropped", "scenario", snap.Scenario, "tick", snap.Tick)
		}
	}
	return sent
}

// CloseScenario removes and closes every subscriber of scenario.
func (h *Hub) CloseScenario(scenario string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[scenario]
	for sub := range set {
		sub.closed = true
		close(sub.ch)
	}
	delete(h.subs, scenario)
	if len(set) > 0 {
		h.logger.Info("closed subscribers", "scenario", scenario, "count", len(set))
	}
}

// Subscribers returns the number of subscribers for scenario.
func (h *Hub) Subscribers(scenario string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scenario])
}
