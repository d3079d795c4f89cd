// Package mail renders account notifications and hands them to a Sender.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

var ErrClosed = errors.New("mail: dispatcher closed")

// Message is one outgoing email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Receipt identifies an accepted message.
type Receipt struct {
	ID         string    `json:"id"`
	Driver     string    `json:"driver"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

func newReceipt(driver string) Receipt {
	id := ksuid.New()
	return Receipt{ID: id.String(), Driver: driver, AcceptedAt: id.Time().UTC()}
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// LogSender writes messages to the log instead of delivering them. Bodies
// carry reset and verification tokens, so they are logged at debug only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) (Receipt, error) {
	r := newReceipt("log")
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("mail accepted",
		slog.String("receipt", r.ID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	l.Debug("mail body", slog.String("receipt", r.ID), slog.String("text", msg.Text))
	return r, nil
}

const defaultSendTimeout = 10 * time.Second

// Dispatcher sends messages in the background. Failures are logged and
// never reach the caller.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, logger: logger, timeout: defaultSendTimeout}
}

// Notify queues msg for delivery.
func (d *Dispatcher) Notify(msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		r, err := d.sender.Send(ctx, msg)
		if err != nil {
			d.logger.Error("mail delivery failed",
				slog.String("to", msg.To),
				slog.String("subject", msg.Subject),
				slog.Any("error", err),
			)
			return
		}
		d.logger.Debug("mail delivered", slog.String("receipt", r.ID), slog.String("driver", r.Driver))
	}()
	return nil
}

// Close stops accepting messages and waits for in-flight sends.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
