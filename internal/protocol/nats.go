package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// wireReply carries a handler's reply or error across NATS.
type wireReply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NATSBus carries messages over NATS request/reply so the daemon and its
// detectors may run in separate processes.
type NATSBus struct {
	conn           *nats.Conn
	maxRetries     int
	handlerTimeout time.Duration
	logger         *slog.Logger
}

func NewNATSBus(conn *nats.Conn, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{conn: conn, maxRetries: 3, handlerTimeout: 30 * time.Second, logger: logger}
}

func (b *NATSBus) Request(ctx context.Context, subject string, msg Message) (json.RawMessage, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	reply, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrNoResponder
		}
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}

	var wr wireReply
	if err := json.Unmarshal(reply.Data, &wr); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if wr.Error != "" {
		return nil, errors.New(wr.Error)
	}
	return wr.Data, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= b.maxRetries; i++ {
		err = b.conn.Publish(subject, data)
		if err == nil {
			return nil
		}
		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", b.maxRetries, err)
}

func (b *NATSBus) Subscribe(subject string, h Handler) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		go b.serve(m, h)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NATSBus) serve(m *nats.Msg, h Handler) {
	var wr wireReply

	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		wr.Error = "malformed message"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
		data, err := h(ctx, msg)
		cancel()
		if err != nil {
			wr.Error = err.Error()
		}
		wr.Data = data
	}

	if m.Reply == "" {
		if wr.Error != "" {
			b.logger.Debug("bus: handler failed", "subject", m.Subject, "error", wr.Error)
		}
		return
	}
	out, _ := json.Marshal(wr)
	if err := m.Respond(out); err != nil {
		b.logger.Warn("bus: respond failed", "subject", m.Subject, "error", err)
	}
}
