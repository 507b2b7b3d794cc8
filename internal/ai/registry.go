package ai

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry builds providers by name and keeps one instance per name and
// model, so clients holding connections are created once.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	instances map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		instances: make(map[string]Provider),
	}
}

func normalizeName(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = normalizeName(name)
	key := name + "|" + strings.TrimSpace(model)

	r.mu.RLock()
	p, ok := r.instances[key]
	f, known := r.factories[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !known {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[key]; ok {
		return p, nil
	}
	p, err := f(ctx, model)
	if err != nil {
		return nil, err
	}
	r.instances[key] = p
	return p, nil
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close releases providers that hold resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for key, p := range r.instances {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(r.instances, key)
	}
	return first
}
