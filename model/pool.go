package model

import "sync"

// CategoryPool lazily creates and caches one model client per category so
// parallel branches never share a client. Entries live until Clear; the pool
// is scoped to one top-level run, never process-wide.
type CategoryPool struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]Model
}

// NewCategoryPool creates an empty pool backed by the given factory.
func NewCategoryPool(factory Factory) *CategoryPool {
	return &CategoryPool{
		factory: factory,
		clients: make(map[string]Model),
	}
}

// Get returns the client bound to the category, creating it on first use.
func (p *CategoryPool) Get(category string) Model {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[category]; ok {
		return client
	}
	client := p.factory()
	p.clients[category] = client
	return client
}

// Size returns the number of cached clients.
func (p *CategoryPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.clients)
}

// Clear releases every cached client. Safe to call repeatedly and while
// clients obtained earlier are still reachable.
func (p *CategoryPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clients = make(map[string]Model)
}
