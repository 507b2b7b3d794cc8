package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func RetryQueue(queue string) string      { return queue + ".retry" }
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

type queueSpec struct {
	name string
	args amqp.Table
}

// topology lists the queues behind one logical mail queue, in declaration
// order. Rejected jobs dead-letter into .dlq; jobs parked in .retry
// dead-letter back into the main queue once their per-message TTL expires.
func topology(queue string) []queueSpec {
	deadLetterTo := func(target string) amqp.Table {
		return amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": target,
		}
	}
	return []queueSpec{
		{name: DeadLetterQueue(queue)},
		{name: RetryQueue(queue), args: deadLetterTo(queue)},
		{name: queue, args: deadLetterTo(DeadLetterQueue(queue))},
	}
}

// open connects and declares the topology. Publisher and consumer both go
// through it so they never disagree on queue arguments.
func open(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	for _, q := range topology(queue) {
		// durable, not auto-deleted, not exclusive
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare %s: %w", q.name, err)
		}
	}
	return conn, ch, nil
}

func persistent(body []byte, kind string) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Type:         kind,
		Timestamp:    time.Now(),
	}
}
