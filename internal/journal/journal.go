// Package journal keeps an append-only Postgres trail of monitoring
// transitions, spooling to disk while the database is unreachable.
package journal

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/slothunter/internal/protocol"
)

const spoolFile = "journal_spool.log"

type Service struct {
	DB       *sql.DB
	SpoolDir string // empty disables spooling
	Logger   *slog.Logger

	replayMu sync.Mutex
	wg       sync.WaitGroup
}

func NewService(db *sql.DB, spoolDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if spoolDir != "" {
		_ = os.MkdirAll(spoolDir, 0750)
	}
	return &Service{DB: db, SpoolDir: spoolDir, Logger: logger}
}

// Publish journals ev asynchronously, so the coordinator never waits on
// the database.
func (s *Service) Publish(ev protocol.Event) {
	detail, err := json.Marshal(ev.Data)
	if err != nil {
		s.Logger.Warn("journal: encode detail", "type", ev.Type, "error", err)
		detail = nil
	}
	e := Entry{EventID: uuid.New(), Type: ev.Type, Detail: detail, CreatedAt: ev.At}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Write(ctx, e); err != nil {
			s.Logger.Error("journal write failed", "type", e.Type, "error", err)
		}
	}()
}

// Wait blocks until pending Publish writes finish.
func (s *Service) Wait() { s.wg.Wait() }

// Write inserts e, spooling it when the insert fails.
func (s *Service) Write(ctx context.Context, e Entry) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := s.insert(ctx, e)
	if err == nil {
		return nil
	}
	if s.SpoolDir == "" {
		return fmt.Errorf("journal insert: %w", err)
	}
	s.Logger.Warn("journal insert failed, spooling", "event_id", e.EventID, "error", err)
	if spoolErr := s.spool(e); spoolErr != nil {
		return fmt.Errorf("journal spool: %w", spoolErr)
	}
	return nil
}

func (s *Service) insert(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO monitoring_events (event_id, event_type, detail, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`
	var detail any
	if len(e.Detail) > 0 {
		detail = []byte(e.Detail)
	}
	_, err := s.DB.ExecContext(ctx, query, e.EventID, e.Type, detail, e.CreatedAt)
	return err
}

// Recent returns up to limit entries, newest first, optionally of one type.
func (s *Service) Recent(ctx context.Context, eventType string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := `SELECT id, event_id, event_type, detail, created_at FROM monitoring_events`
	args := []any{}
	if eventType != "" {
		q += ` WHERE event_type = $1`
		args = append(args, eventType)
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			e.Detail = json.RawMessage(detail)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) spool(e Entry) error {
	line, err := json.Marshal(spooled{EventID: e.EventID.String(), Payload: e, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.SpoolDir, spoolFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// StartReplayer flushes the spool every interval until ctx ends.
func (s *Service) StartReplayer(ctx context.Context, interval time.Duration) {
	if s.SpoolDir == "" {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

// ReplaySpool re-inserts spooled entries. Entries that fail again are
// spooled anew, so nothing is lost while the database stays down.
func (s *Service) ReplaySpool(ctx context.Context) int {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	filename := filepath.Join(s.SpoolDir, spoolFile)
	info, err := os.Stat(filename)
	if err != nil || info.Size() == 0 {
		return 0
	}

	// 1. Move the spool aside so failed inserts append to a fresh one
	replayFile := filepath.Join(s.SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(filename, replayFile); err != nil {
		s.Logger.Warn("journal: rotate spool for replay", "error", err)
		return 0
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return 0
	}

	// 2. Re-insert line by line
	succeeded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var sp spooled
		if err := json.Unmarshal(scanner.Bytes(), &sp); err != nil {
			continue
		}
		if err := s.insert(ctx, sp.Payload); err != nil {
			if err := s.spool(sp.Payload); err != nil {
				s.Logger.Error("journal: respool failed", "event_id", sp.EventID, "error", err)
			}
			continue
		}
		succeeded++
	}
	f.Close()

	// 3. Entries are now in the database or spooled again
	os.Remove(replayFile)
	if succeeded > 0 {
		s.Logger.Info("journal replay flushed", "events", succeeded)
	}
	return succeeded
}
