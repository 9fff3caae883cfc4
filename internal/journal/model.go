package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one journaled coordinator event. Detail never carries page
// evidence, only counts and URLs.
type Entry struct {
	ID        int64           `json:"id,omitempty"`
	EventID   uuid.UUID       `json:"eventId"`
	Type      string          `json:"type"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// spooled wraps an entry for JSONL spooling.
type spooled struct {
	EventID   string    `json:"event_id"`
	Payload   Entry     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
