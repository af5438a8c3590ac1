package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 是 API 发布、worker 订阅的领域事件 topic exchange。
// routing key 即事件名，例如 artwork.liked、transaction.completed。
const ExchangeName = "market.events"

// NewConnection 连接 RabbitMQ。publisher 与每个 consumer 各持有一条连接，
// 以便 /readyz 能分别报告它们的状态。
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange 声明持久化的 market.events exchange；API 与 worker
// 启动时都会调用，先启动的一方负责创建。
func DeclareExchange(ch *amqp091.Channel) error {
	const (
		durable    = true
		autoDelete = false
		internal   = false
		noWait     = false
	)
	return ch.ExchangeDeclare(ExchangeName, "topic", durable, autoDelete, internal, noWait, nil)
}
