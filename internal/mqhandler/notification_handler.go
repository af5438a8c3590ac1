package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/service/notification"
	"xhsmarket/pkg/logger"
)

// NotificationQueue is bound to event.NotifyKeys.
const NotificationQueue = "market.notify.q"

type NotificationHandler struct {
	notifications *notification.Service
	router        *event.Router
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *notification.Service, log *zap.Logger) *NotificationHandler {
	r := event.NewRouter(log)
	notifications.Register(r)
	return &NotificationHandler{notifications: notifications, router: r, logger: log}
}

// Handle 写入站内通知；签名与 mq.MessageHandler 一致
func (h *NotificationHandler) Handle(ctx context.Context, routingKey string, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)
	log.Debug("Handling notification event", zap.String("routing_key", routingKey))

	if err := h.router.Handle(ctx, routingKey, raw); err != nil {
		log.Error("Failed to create notification",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// RoutingKeys 返回队列需要绑定的 routing key
func (h *NotificationHandler) RoutingKeys() []string {
	return h.router.Keys()
}
