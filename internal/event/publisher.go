package event

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"xhsmarket/pkg/metrics"
)

// Publisher hands a domain event to the message bus. *mq.Publisher and
// *outbox.Writer satisfy it.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Nop drops events. Used when no broker is configured.
type Nop struct {
	Logger *zap.Logger
}

func (n Nop) PublishWithContext(_ context.Context, routingKey string, _ any) error {
	if n.Logger != nil {
		n.Logger.Debug("Event dropped, no publisher configured", zap.String("routing_key", routingKey))
	}
	return nil
}

// Metered counts publish outcomes per routing key.
type Metered struct {
	Next Publisher
}

func (m Metered) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	err := m.Next.PublishWithContext(ctx, routingKey, payload)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IncrementEventPublished(routingKey, status)
	return err
}

// Local dispatches events to an in-process Router. It stands in for the
// broker in mock mode so notifications still appear without RabbitMQ.
type Local struct {
	router *Router
	logger *zap.Logger
}

func NewLocal(router *Router, logger *zap.Logger) *Local {
	return &Local{router: router, logger: logger}
}

func (l *Local) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := l.router.Handle(ctx, routingKey, data); err != nil {
		l.logger.Warn("Local event handler failed",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
	return nil
}

// Recorded is one captured publish.
type Recorded struct {
	RoutingKey string
	Payload    any
}

// Recorder captures events for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *Recorder) PublishWithContext(_ context.Context, routingKey string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Keys returns the routing keys in publish order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.events))
	for _, e := range r.events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}
