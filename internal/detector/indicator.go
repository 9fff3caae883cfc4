package detector

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Indicator is the on-page banner shown while slots are visible.
type Indicator interface {
	Show(text string)
	Clear()
}

// IndicatorText renders "🎯 N SLOT(S) FOUND! - date".
func IndicatorText(count int, date string) string {
	noun := "SLOTS"
	if count == 1 {
		noun = "SLOT"
	}
	s := fmt.Sprintf("🎯 %d %s FOUND!", count, noun)
	if date != "" {
		s += " - " + date
	}
	return s
}

// MemoryIndicator keeps the current banner text.
type MemoryIndicator struct {
	mu   sync.Mutex
	text string
}

func (m *MemoryIndicator) Show(text string) {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
}

func (m *MemoryIndicator) Clear() { m.Show("") }

func (m *MemoryIndicator) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// LogIndicator writes banner changes to the log.
type LogIndicator struct {
	Logger *slog.Logger
	PageID string

	mu    sync.Mutex
	shown bool
}

func (l *LogIndicator) Show(text string) {
	l.mu.Lock()
	l.shown = true
	l.mu.Unlock()
	l.logger().Info(text, "page", l.PageID)
}

func (l *LogIndicator) Clear() {
	l.mu.Lock()
	was := l.shown
	l.shown = false
	l.mu.Unlock()
	if was {
		l.logger().Info("indicator cleared", "page", l.PageID)
	}
}

func (l *LogIndicator) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Beeper plays the audible alert.
type Beeper interface {
	Beep()
}

// BellBeeper rings the terminal bell three times.
type BellBeeper struct {
	W io.Writer
}

func (b BellBeeper) Beep() {
	for i := 0; i < 3; i++ {
		b.W.Write([]byte("\a"))
	}
}
