package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"xhsmarket/pkg/metrics"
	"xhsmarket/pkg/otel"
	"xhsmarket/pkg/trace"
	"xhsmarket/pkg/util"
)

// MessageHandler handles one delivery; routingKey tells which event it carries.
type MessageHandler func(ctx context.Context, routingKey string, data json.RawMessage) error

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger

	retries    *util.RetryCounter
	maxRetries int64
}

// NewConsumer creates a consumer whose queue is bound to every given routing key.
func NewConsumer(url, queueName string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare dlq exchange: %w", err))
	}
	if _, err := DeclareDLQQueue(ch, queueName); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			return fail(fmt.Errorf("failed to bind queue to %s: %w", key, err))
		}
	}

	if err := ch.Qos(16, 0, false); err != nil {
		return fail(fmt.Errorf("failed to set qos: %w", err))
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKeys: routingKeys,
		logger:      logger,
		maxRetries:  3,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetryCounter enables bounded retries: a retryable failure is requeued until
// it has failed more than maxRetries times, then dead-lettered.
func (c *Consumer) WithRetryCounter(rc *util.RetryCounter, maxRetries int64) *Consumer {
	c.retries = rc
	c.maxRetries = maxRetries
	return c
}

// IsConnected reports whether the underlying connection is open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is done or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages", zap.String("queue", c.queue.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", c.queue.Name)
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack、nack 或转入死信队列
func (c *Consumer) handle(parent context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.ExtractHeaders(parent, msg.Headers)
	if traceID, ok := msg.Headers["trace_id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	defer func() {
		metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			c.deadLetter(log, msg, fmt.Sprintf("panic: %v", r), "panic")
		}
	}()

	err := c.handler(ctx, msg.RoutingKey, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		if c.retries != nil && msg.MessageId != "" {
			_ = c.retries.Reset(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
		}
		return
	}

	retryable, errorType := util.IsRetryableError(err)
	log.Warn("Handler error",
		zap.Error(err),
		zap.Bool("retryable", retryable),
		zap.String("error_type", errorType),
	)

	if retryable && c.shouldRetry(ctx, log, msg) {
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	c.deadLetter(log, msg, err.Error(), errorType)
}

func (c *Consumer) shouldRetry(ctx context.Context, log *zap.Logger, msg amqp091.Delivery) bool {
	if c.retries == nil || msg.MessageId == "" {
		// 没有计数器时只依赖 RabbitMQ 的 redelivered 标记重试一次
		return !msg.Redelivered
	}

	count, err := c.retries.IncrementAndGet(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
	if err != nil {
		log.Warn("Retry counter unavailable, falling back to redelivered flag", zap.Error(err))
		return !msg.Redelivered
	}
	return util.ShouldRetry(count, c.maxRetries, true)
}

func (c *Consumer) deadLetter(log *zap.Logger, msg amqp091.Delivery, reason, errorType string) {
	if err := publishToDLQ(c.channel, c.queue.Name, msg, reason, errorType); err != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack dead-lettered message", zap.Error(err))
	}
	log.Warn("Message moved to DLQ", zap.String("error_type", errorType))
}
