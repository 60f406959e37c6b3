package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func NewRabbitConnection(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareQueueAndExchange declares a durable topic exchange and binds queueName to it.
// An empty queueName asks the broker for an exclusive, auto-deleted queue, and the
// generated name is returned.
func DeclareQueueAndExchange(ch *amqp.Channel, queueName, exchange, bindingKey string) (string, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	exclusive := queueName == ""
	q, err := ch.QueueDeclare(
		queueName,
		!exclusive, // durable
		exclusive,  // delete when unused
		exclusive,  // exclusive
		false,      // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind queue %s to %s with key %s: %w", q.Name, exchange, bindingKey, err)
	}
	return q.Name, nil
}
