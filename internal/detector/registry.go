package detector

import (
	"sort"
	"sync"

	"github.com/technosupport/slothunter/internal/protocol"
)

// Registry tracks the detectors running in this process.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]*Detector
}

func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]*Detector)}
}

func (r *Registry) Add(d *Detector) {
	r.mu.Lock()
	r.detectors[d.ID()] = d
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.detectors, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	return d, ok
}

// ByURL finds the detector watching url.
func (r *Registry) ByURL(url string) (*Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.detectors {
		if d.URL() == url {
			return d, true
		}
	}
	return nil, false
}

// IDs returns the registered page IDs in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.detectors))
	for id := range r.detectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Pages() []protocol.PageInfo {
	ids := r.IDs()
	out := make([]protocol.PageInfo, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.Get(id); ok {
			out = append(out, d.PageInfo())
		}
	}
	return out
}
