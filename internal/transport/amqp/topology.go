package amqp

import (
	"fmt"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// DeadLetterName is the exchange and queue that receive rejected messages of queue.
func DeadLetterName(queue string) string {
	return queue + ".dlq"
}

// DeclareTopology declares the work queue and its dead-letter queue.
// Messages nacked without requeue are routed to the dead-letter queue.
func DeclareTopology(conn *Connection, queue string) error {
	return conn.WithChannel(func(ch *amqp091.Channel) error {
		dlq := DeadLetterName(queue)

		if err := ch.ExchangeDeclare(dlq, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", dlq, err)
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, "", dlq, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dlq, err)
		}

		args := amqp091.Table{"x-dead-letter-exchange": dlq}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		return nil
	})
}
