package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/slothunter/internal/protocol"
)

// 1. Write success
func TestWrite_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewService(db, "", nil)
	mock.ExpectExec("INSERT INTO monitoring_events").
		WithArgs(sqlmock.AnyArg(), "monitoring.started", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Write(context.Background(), Entry{Type: "monitoring.started"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 2. DB failure without a spool surfaces the error
func TestWrite_NoSpool(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewService(db, "", nil)
	mock.ExpectExec("INSERT INTO monitoring_events").WillReturnError(sql.ErrConnDone)

	assert.ErrorIs(t, s.Write(context.Background(), Entry{Type: "check"}), sql.ErrConnDone)
}

// 3. DB failure spools, replay flushes
func TestWrite_SpoolAndReplay(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	dir := t.TempDir()
	s := NewService(db, dir, nil)
	id := uuid.New()

	mock.ExpectExec("INSERT INTO monitoring_events").WillReturnError(sql.ErrConnDone)
	require.NoError(t, s.Write(context.Background(), Entry{EventID: id, Type: "slots.found"}))

	_, err := os.Stat(filepath.Join(dir, spoolFile))
	require.NoError(t, err, "spool file created")

	mock.ExpectExec("INSERT INTO monitoring_events").
		WithArgs(id, "slots.found", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.Equal(t, 1, s.ReplaySpool(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	files, _ := os.ReadDir(dir)
	assert.Empty(t, files, "replay file removed")
}

// 4. Replay while still down keeps the entry
func TestReplay_StillDown(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	dir := t.TempDir()
	s := NewService(db, dir, nil)

	mock.ExpectExec("INSERT INTO monitoring_events").WillReturnError(sql.ErrConnDone)
	require.NoError(t, s.Write(context.Background(), Entry{Type: "check"}))

	mock.ExpectExec("INSERT INTO monitoring_events").WillReturnError(sql.ErrConnDone)
	assert.Equal(t, 0, s.ReplaySpool(context.Background()))

	b, err := os.ReadFile(filepath.Join(dir, spoolFile))
	require.NoError(t, err)
	var sp spooled
	require.NoError(t, json.Unmarshal(b[:len(b)-1], &sp))
	assert.Equal(t, "check", sp.Payload.Type)
}

// 5. Publish is asynchronous and encodes Data as detail
func TestPublish(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewService(db, "", nil)
	mock.ExpectExec("INSERT INTO monitoring_events").
		WithArgs(sqlmock.AnyArg(), protocol.EventSlotsFound, []byte(`{"count":2}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.Publish(protocol.Event{Type: protocol.EventSlotsFound, At: time.Now(), Data: map[string]int{"count": 2}})
	s.Wait()
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 6. Recent
func TestRecent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewService(db, "", nil)
	now := time.Now().UTC()
	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "event_id", "event_type", "detail", "created_at"}).
		AddRow(int64(7), id.String(), "slots.found", []byte(`{"count":1}`), now)

	mock.ExpectQuery("SELECT id, event_id, event_type, detail, created_at FROM monitoring_events WHERE event_type = \\$1").
		WithArgs("slots.found", 10).
		WillReturnRows(rows)

	got, err := s.Recent(context.Background(), "slots.found", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, id, got[0].EventID)
	assert.JSONEq(t, `{"count":1}`, string(got[0].Detail))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Runs against a live database when SLOTHUNTER_TEST_DATABASE_URL is set.
func TestOpen_Migrates(t *testing.T) {
	url := os.Getenv("SLOTHUNTER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SLOTHUNTER_TEST_DATABASE_URL not set")
	}
	db, err := Open(url)
	require.NoError(t, err)
	defer db.Close()

	s := NewService(db, "", nil)
	require.NoError(t, s.Write(context.Background(), Entry{Type: "check"}))
	got, err := s.Recent(context.Background(), "check", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
