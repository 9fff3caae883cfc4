package detector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/technosupport/slothunter/internal/metrics"
	"github.com/technosupport/slothunter/internal/ratelimit"
)

type EventKind int

const (
	Mutation EventKind = iota + 1
	Visible
)

type PageEvent struct {
	Kind EventKind
	At   time.Time
}

// Page is the document a detector observes.
type Page interface {
	URL() string
	Document(ctx context.Context) (*goquery.Document, error)
	Events() <-chan PageEvent
}

// watcher is implemented by pages that need a background loop.
type watcher interface {
	Watch(ctx context.Context)
}

var ErrNoDocument = errors.New("page has no document yet")

// StaticPage serves an in-memory document.
type StaticPage struct {
	url    string
	mu     sync.RWMutex
	html   string
	events chan PageEvent
}

func NewStaticPage(url, html string) *StaticPage {
	return &StaticPage{url: url, html: html, events: make(chan PageEvent, 16)}
}

func (p *StaticPage) URL() string { return p.url }

func (p *StaticPage) Document(ctx context.Context) (*goquery.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return goquery.NewDocumentFromReader(bytes.NewBufferString(p.html))
}

func (p *StaticPage) Events() <-chan PageEvent { return p.events }

// Update replaces the document and signals a mutation.
func (p *StaticPage) Update(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
	p.emit(Mutation)
}

// Show signals that the page became visible.
func (p *StaticPage) Show() { p.emit(Visible) }

func (p *StaticPage) emit(k EventKind) {
	select {
	case p.events <- PageEvent{Kind: k, At: time.Now()}:
	default:
	}
}

// HTTPPage polls a URL. A changed body is a mutation; coming back after
// failed fetches is a visibility change.
type HTTPPage struct {
	id        string
	url       string
	client    *http.Client
	userAgent string
	interval  time.Duration
	limiter   *ratelimit.Limiter
	rate      ratelimit.LimitConfig
	logger    *slog.Logger
	events    chan PageEvent

	mu       sync.Mutex
	body     []byte
	hash     [sha256.Size]byte
	failures int
}

type HTTPPageOptions struct {
	ID           string
	URL          string
	Client       *http.Client
	UserAgent    string
	PollInterval time.Duration
	Limiter      *ratelimit.Limiter // nil disables throttling
	Rate         ratelimit.LimitConfig
	Logger       *slog.Logger
}

func NewHTTPPage(opts HTTPPageOptions) *HTTPPage {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HTTPPage{
		id:        opts.ID,
		url:       opts.URL,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		interval:  opts.PollInterval,
		limiter:   opts.Limiter,
		rate:      opts.Rate,
		logger:    opts.Logger,
		events:    make(chan PageEvent, 16),
	}
}

func (p *HTTPPage) URL() string { return p.url }

func (p *HTTPPage) Events() <-chan PageEvent { return p.events }

// Document fetches the page, falling back to the last good body when the
// fetch is throttled or fails.
func (p *HTTPPage) Document(ctx context.Context) (*goquery.Document, error) {
	body, err := p.refresh(ctx, false)
	if err != nil {
		p.mu.Lock()
		body = p.body
		p.mu.Unlock()
		if body == nil {
			return nil, err
		}
		metrics.PageFetchesTotal.WithLabelValues(p.id, "cached").Inc()
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Watch polls until ctx ends.
func (p *HTTPPage) Watch(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.refresh(ctx, true); err != nil && ctx.Err() == nil {
				p.logger.Debug("page poll failed", "page", p.id, "error", err)
			}
		}
	}
}

// refresh fetches and caches the body. Events are only emitted for
// background polls; a fetch made for a check is already being evaluated.
func (p *HTTPPage) refresh(ctx context.Context, signal bool) ([]byte, error) {
	if p.limiter != nil {
		d, err := p.limiter.Allow(ctx, ratelimit.HostKey(p.url), p.rate)
		switch {
		case err != nil:
			p.logger.Warn("fetch limiter unavailable, fetching anyway", "page", p.id, "error", err)
		case !d.Allowed:
			metrics.PageFetchesTotal.WithLabelValues(p.id, "throttled").Inc()
			return nil, ratelimit.ErrRateLimitExceeded
		}
	}

	body, err := p.fetch(ctx)
	if err != nil {
		metrics.PageFetchesTotal.WithLabelValues(p.id, "error").Inc()
		p.mu.Lock()
		p.failures++
		p.mu.Unlock()
		return nil, err
	}
	metrics.PageFetchesTotal.WithLabelValues(p.id, "ok").Inc()

	sum := sha256.Sum256(body)
	p.mu.Lock()
	recovered := p.failures > 0 && p.body != nil
	changed := p.body != nil && sum != p.hash
	p.failures = 0
	p.body, p.hash = body, sum
	p.mu.Unlock()

	if signal && recovered {
		p.emit(Visible)
	}
	if signal && changed {
		p.emit(Mutation)
	}
	return body, nil
}

func (p *HTTPPage) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", p.url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (p *HTTPPage) emit(k EventKind) {
	select {
	case p.events <- PageEvent{Kind: k, At: time.Now()}:
	default:
	}
}
