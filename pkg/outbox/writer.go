package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"xhsmarket/pkg/trace"
)

// Inserter 是 Writer 需要的最小仓储接口
type Inserter interface {
	InsertEvent(ctx context.Context, q Querier, event *Event) error
}

// Writer 把服务发布的事件写入 outbox，由 Dispatcher 异步投递到 MQ
type Writer struct {
	repo Inserter
}

func NewWriter(repo Inserter) *Writer {
	return &Writer{repo: repo}
}

// PublishWithContext 满足服务层的 Publisher 接口
func (w *Writer) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	aggregateType := AggregateType(routingKey)
	e := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID(body, aggregateType),
		RoutingKey:    routingKey,
		Payload:       body,
		TraceID:       trace.FromContext(ctx),
		Status:        StatusPending,
	}
	return w.repo.InsertEvent(ctx, nil, e)
}

// AggregateType 取 routing key 的第一段，例如 artwork.liked -> artwork
func AggregateType(routingKey string) string {
	head, _, _ := strings.Cut(routingKey, ".")
	return head
}

// aggregateID 读取 payload 中的 <type>_id 字段
func aggregateID(body []byte, aggregateType string) *string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	if id, ok := fields[aggregateType+"_id"].(string); ok && id != "" {
		return &id
	}
	return nil
}
