package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

const (
	SubjectCoordinator = "slothunter.coordinator"
	SubjectDetectors   = "slothunter.detectors"
)

// DetectorSubject addresses a single detector.
func DetectorSubject(pageID string) string {
	return "slothunter.detector." + pageID
}

var ErrNoResponder = errors.New("no responder for subject")

// Handler processes one message and returns the encoded reply.
type Handler func(ctx context.Context, msg Message) (json.RawMessage, error)

// Bus carries messages between isolated components.
type Bus interface {
	// Request delivers msg to one handler and waits for its reply.
	Request(ctx context.Context, subject string, msg Message) (json.RawMessage, error)
	// Publish delivers msg to every handler without waiting.
	Publish(ctx context.Context, subject string, msg Message) error
	// Subscribe registers h and returns a function that removes it.
	Subscribe(subject string, h Handler) (func(), error)
}

// LocalBus is an in-process Bus. Every delivery runs on its own goroutine
// so a handler never shares a call stack with its sender.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string][]*localSub
	logger *slog.Logger
}

type localSub struct {
	h Handler
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{subs: make(map[string][]*localSub), logger: logger}
}

func (b *LocalBus) Subscribe(subject string, h Handler) (func(), error) {
	s := &localSub{h: h}
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[subject]
			for i, x := range list {
				if x == s {
					b.subs[subject] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[subject]) == 0 {
				delete(b.subs, subject)
			}
		})
	}, nil
}

func (b *LocalBus) handlers(subject string) []*localSub {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*localSub(nil), b.subs[subject]...)
}

func (b *LocalBus) Request(ctx context.Context, subject string, msg Message) (json.RawMessage, error) {
	subs := b.handlers(subject)
	if len(subs) == 0 {
		return nil, ErrNoResponder
	}

	type result struct {
		data json.RawMessage
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := subs[0].h(ctx, msg)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *LocalBus) Publish(ctx context.Context, subject string, msg Message) error {
	// Deliveries outlive the sender's deadline.
	ctx = context.WithoutCancel(ctx)
	for _, s := range b.handlers(subject) {
		go func(h Handler) {
			if _, err := h(ctx, msg); err != nil {
				b.logger.Debug("bus: handler failed", "subject", subject, "type", msg.Type, "error", err)
			}
		}(s.h)
	}
	return nil
}
