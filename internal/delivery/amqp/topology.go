package amqp

import (
	"fmt"

	amqplib "github.com/rabbitmq/amqp091-go"
)

const (
	queueName = "judge_tasks"

	deadLetterExchange   = "dlx.judge_tasks"
	deadLetterQueue      = "judge_tasks.dlq"
	deadLetterRoutingKey = "judge_tasks.dlq"
)

// declareTopology declares the judge queue and its dead-letter path. All
// declarations are idempotent, so producers and consumers both run it.
func declareTopology(ch *amqplib.Channel) error {
	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare DLQ: %w", err)
	}
	if err := ch.QueueBind(deadLetterQueue, deadLetterRoutingKey, deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("amqp bind DLQ: %w", err)
	}

	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqplib.Table{
			"x-queue-type":              "quorum",
			"x-dead-letter-exchange":    deadLetterExchange,
			"x-dead-letter-routing-key": deadLetterRoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	return nil
}
