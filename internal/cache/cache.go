// Package cache persists the last known user profile between runs. The cache
// is advisory only: the server session is the source of truth, and every
// start-up revalidates against it. A missing or unreadable cache is simply an
// empty one.
package cache

import (
	"context"
	"sync"

	"github.com/azaruiz94/sse-web/internal/domain"
)

type Cache interface {
	// Load returns the cached user, or (nil, nil) when nothing usable is stored.
	Load(ctx context.Context) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
	Clear(ctx context.Context) error
}

// Memory is the in-process cache used by tests and by deployments that opt
// out of persistence.
type Memory struct {
	mu   sync.Mutex
	user *domain.User
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *Memory) Save(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user == nil {
		m.user = nil
		return nil
	}
	u := *user
	m.user = &u
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}
