package notification

import (
	"encoding/json"
	"fmt"

	"antique-auction/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange auction events are published to.
// Routing key = event kind, so consumers can bind per event family.
const ExchangeName = "auction.events"

// AMQPNotifier publishes events to a RabbitMQ topic exchange. Publishing is
// fire-and-forget: a broker failure is logged and never propagated to the
// operation that produced the event.
type AMQPNotifier struct {
	ch *amqp.Channel
}

// NewAMQPNotifier connects to the broker and declares the events exchange
func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notification: dial %s: %w", url, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("notification: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("notification: declare exchange %s: %w", ExchangeName, err)
	}
	return &AMQPNotifier{ch: ch}, nil
}

// Publish sends the event to the exchange with the kind as routing key
func (n *AMQPNotifier) Publish(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		utils.Error("notification: marshal event", map[string]any{"kind": event.Kind, "error": err.Error()})
		return
	}

	err = n.ch.Publish(
		ExchangeName,
		event.Kind,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		utils.Error("notification: publish event", map[string]any{"kind": event.Kind, "error": err.Error()})
	}
}
