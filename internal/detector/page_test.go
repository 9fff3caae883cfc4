package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/slothunter/internal/ratelimit"
)

type pageServer struct {
	mu     sync.Mutex
	body   string
	status int
}

func (s *pageServer) set(body string, status int) {
	s.mu.Lock()
	s.body, s.status = body, status
	s.mu.Unlock()
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.WriteHeader(s.status)
	w.Write([]byte(s.body))
}

func waitEvent(t *testing.T, p Page, want EventKind) {
	t.Helper()
	select {
	case ev := <-p.Events():
		assert.Equal(t, want, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatalf("no event %d", want)
	}
}

func TestHTTPPage_DocumentAndEvents(t *testing.T) {
	ps := &pageServer{body: slotsHTML(1), status: 200}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	p := NewHTTPPage(HTTPPageOptions{ID: "p1", URL: srv.URL, PollInterval: 10 * time.Millisecond, UserAgent: "test"})
	doc, err := p.Document(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Book", doc.Find("title").Text())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Watch(ctx)

	ps.set(slotsHTML(2), 200)
	waitEvent(t, p, Mutation)

	ps.set("", 503)
	time.Sleep(50 * time.Millisecond)
	ps.set(slotsHTML(2), 200)
	waitEvent(t, p, Visible)
}

func TestHTTPPage_FallsBackToCache(t *testing.T) {
	ps := &pageServer{body: slotsHTML(1), status: 200}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	p := NewHTTPPage(HTTPPageOptions{ID: "p1", URL: srv.URL})
	_, err := p.Document(context.Background())
	require.NoError(t, err)

	ps.set("", 500)
	doc, err := p.Document(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find(".slot-available").Length())
}

func TestHTTPPage_NoCacheNoDocument(t *testing.T) {
	ps := &pageServer{status: 500}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	_, err := NewHTTPPage(HTTPPageOptions{URL: srv.URL}).Document(context.Background())
	assert.Error(t, err)
}

func TestHTTPPage_Throttled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(slotsHTML(1)))
	}))
	defer srv.Close()

	p := NewHTTPPage(HTTPPageOptions{
		ID:      "p1",
		URL:     srv.URL,
		Limiter: ratelimit.NewLimiter(client, ""),
		Rate:    ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	})

	_, err = p.Document(context.Background())
	require.NoError(t, err)
	doc, err := p.Document(context.Background())
	require.NoError(t, err, "throttled fetch serves the cached body")
	assert.Equal(t, 1, doc.Find(".slot-available").Length())
	assert.Equal(t, int32(1), hits.Load())
}
