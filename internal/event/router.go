package event

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, data json.RawMessage) error

// Router maps routing keys to handlers. Its Handle method has the shape of
// mq.MessageHandler so a consumer can feed it directly.
type Router struct {
	routes map[string]HandlerFunc
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		routes: make(map[string]HandlerFunc),
		logger: logger,
	}
}

func (r *Router) Register(routingKey string, h HandlerFunc) {
	r.routes[routingKey] = h
}

func (r *Router) Handle(ctx context.Context, routingKey string, data json.RawMessage) (err error) {
	h, ok := r.routes[routingKey]
	if !ok {
		r.logger.Debug("No handler for event", zap.String("routing_key", routingKey))
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Event handler panic recovered",
				zap.String("routing_key", routingKey),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", routingKey, rec)
		}
	}()

	return h(ctx, data)
}

// Keys lists the routing keys with a registered handler.
func (r *Router) Keys() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	return keys
}
