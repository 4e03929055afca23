package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps an Envelope with its RabbitMQ delivery information
type Message struct {
	Envelope    *Envelope
	DeliveryTag uint64
	Channel     *amqp.Channel
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message. Without requeue it is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

// GetEnvelope returns the wrapped envelope
func (m *Message) GetEnvelope() *Envelope {
	return m.Envelope
}
