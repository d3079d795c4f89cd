package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the sender uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender publishes messages to a durable queue for an external mailer
// worker to deliver.
type AMQPSender struct {
	queue string

	mu   sync.Mutex // amqp channels are not safe for concurrent publishing
	conn *amqp.Connection
	ch   Channel
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("mail: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail: amqp channel: %w", err)
	}
	s, err := NewAMQPSenderWithChannel(ch, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// NewAMQPSenderWithChannel allows injecting a test channel.
func NewAMQPSenderWithChannel(ch Channel, queue string) (*AMQPSender, error) {
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("mail: declare queue %q: %w", queue, err)
	}
	return &AMQPSender{queue: queue, ch: ch}, nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	r := newReceipt("amqp")
	body, err := json.Marshal(struct {
		Receipt Receipt `json:"receipt"`
		Message
	}{r, msg})
	if err != nil {
		return Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    r.ID,
			Timestamp:    r.AcceptedAt,
			Body:         body,
		},
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("mail: amqp publish: %w", err)
	}
	return r, nil
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.Close(); err != nil {
		return err
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
