package mockapi

import (
	"context"
	"sync"
	"time"
)

// Session is a server-side cookie session.
type Session struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Challenge is a pending two-factor verification.
type Challenge struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store holds the fixture's transient auth state. Expired entries are kept
// (not evicted) so handlers can tell "expired" apart from "never existed".
type Store interface {
	PutSession(ctx context.Context, id string, s Session) error
	GetSession(ctx context.Context, id string) (Session, bool, error)
	DeleteSession(ctx context.Context, id string) error

	PutChallenge(ctx context.Context, ch Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, bool, error)
	DeleteChallenge(ctx context.Context, id string) error

	PutResetToken(ctx context.Context, t ResetToken) error
	// ConsumeResetToken marks the token used and returns its prior state.
	ConsumeResetToken(ctx context.Context, token string) (ResetToken, bool, error)
}

type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]Session
	challenges map[string]Challenge
	resets     map[string]ResetToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]Session),
		challenges: make(map[string]Challenge),
		resets:     make(map[string]ResetToken),
	}
}

func (m *MemoryStore) PutSession(_ context.Context, id string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) PutChallenge(_ context.Context, ch Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[ch.ID] = ch
	return nil
}

func (m *MemoryStore) GetChallenge(_ context.Context, id string) (Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[id]
	return ch, ok, nil
}

func (m *MemoryStore) DeleteChallenge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m *MemoryStore) PutResetToken(_ context.Context, t ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[t.Token] = t
	return nil
}

func (m *MemoryStore) ConsumeResetToken(_ context.Context, token string) (ResetToken, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[token]
	if !ok {
		return ResetToken{}, false, nil
	}
	prior := t
	t.Used = true
	m.resets[token] = t
	return prior, true, nil
}
