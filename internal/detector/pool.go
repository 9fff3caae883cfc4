package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/technosupport/slothunter/internal/protocol"
)

// Factory builds the detector for one page.
type Factory func(id, url string) *Detector

// Pool runs detectors for the life of its context. Pages configured at boot
// and targets set at runtime both go through Start.
type Pool struct {
	ctx      context.Context
	bus      protocol.Bus
	registry *Registry
	build    Factory
	logger   *slog.Logger

	mu     sync.Mutex
	unsubs []func()
	wg     sync.WaitGroup
}

func NewPool(ctx context.Context, bus protocol.Bus, registry *Registry, build Factory, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{ctx: ctx, bus: bus, registry: registry, build: build, logger: logger}
}

// Start attaches and runs a detector for url. If one already watches url
// its ID is returned and nothing new is started. An empty id is generated.
func (p *Pool) Start(id, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.registry.ByURL(url); ok {
		return d.ID(), nil
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := p.registry.Get(id); ok {
		return "", fmt.Errorf("page id %q already in use", id)
	}

	d := p.build(id, url)
	unsub, err := d.Attach(p.bus)
	if err != nil {
		return "", fmt.Errorf("attach detector %s: %w", id, err)
	}
	p.unsubs = append(p.unsubs, unsub)
	p.registry.Add(d)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		d.Run(p.ctx)
	}()
	p.logger.Info("watching page", "page", id, "url", url)
	return id, nil
}

// Watch starts a detector for a runtime target URL.
func (p *Pool) Watch(url string) error {
	_, err := p.Start("", url)
	return err
}

// Wait blocks until every detector has returned, then detaches them from
// the bus. Cancel the pool's context first.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	for _, u := range p.unsubs {
		u()
	}
	p.unsubs = nil
	p.mu.Unlock()
}
