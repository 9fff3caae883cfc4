// Package notify presents alerts to the user. Delivery is best effort:
// a failing notifier is logged and never blocks monitoring.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/slothunter/internal/metrics"
)

var ErrPresentation = errors.New("notification presentation failed")

type Priority int

const (
	PriorityNormal Priority = 0
	PriorityUrgent Priority = 2
)

const DefaultTitle = "SlotHunter"

type Notification struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	Message            string    `json:"message"`
	URL                string    `json:"url,omitempty"`
	Priority           Priority  `json:"priority"`
	RequireInteraction bool      `json:"requireInteraction"`
	Sound              bool      `json:"sound"`
	CreatedAt          time.Time `json:"createdAt"`
}

// New builds a normal-priority notification.
func New(message string, now time.Time) Notification {
	return Notification{
		ID:        uuid.New(),
		Title:     DefaultTitle,
		Message:   message,
		CreatedAt: now,
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Priority >= PriorityUrgent {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, n.Message, "title", n.Title, "url", n.URL, "id", n.ID)
	return nil
}

// Multi fans out to every notifier and joins their failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, x := range m {
		if err := x.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPresentation, errors.Join(errs...))
}

// Deliver sends n and swallows any failure after logging it.
func Deliver(ctx context.Context, nf Notifier, n Notification, logger *slog.Logger) {
	if nf == nil {
		return
	}
	if err := nf.Notify(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("notification failed", "id", n.ID, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
}
