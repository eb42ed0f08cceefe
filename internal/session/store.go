// Package session holds the client's single source of truth for
// authentication state. The store is an explicit, injected container: all
// mutation goes through the operations below, each atomic under one lock, and
// readers get immutable snapshots.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/azaruiz94/sse-web/internal/cache"
	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/gateway"
)

// Snapshot is an immutable view of the session state.
type Snapshot struct {
	User             *domain.User
	PendingChallenge *domain.Challenge
	Loading          bool
	Error            string
	ServerDown       bool
	SessionExpired   bool
	Rehydrated       bool
}

// Authenticated reports whether a user is present.
func (s Snapshot) Authenticated() bool { return s.User != nil }

// Dispatch identifies one in-flight request. Settling methods only apply a
// dispatch that is still the newest one: last request wins, not last
// response. A dispatch whose context was cancelled is never applied.
type Dispatch struct {
	seq uint64
	ctx context.Context
}

// Outcome is the discriminated result of a login or 2FA confirmation.
type Outcome struct {
	User      *domain.User
	Challenge *domain.Challenge
}

type Store struct {
	mu     sync.Mutex
	state  Snapshot
	seq    uint64 // last dispatched sequence number
	newest uint64 // newest dispatch allowed to settle

	cache  cache.Cache
	logger *slog.Logger
}

func NewStore(c cache.Cache, logger *slog.Logger) *Store {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Store{cache: c, logger: logger}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

func (s *Store) copyState() Snapshot {
	out := s.state
	if s.state.User != nil {
		u := *s.state.User
		out.User = &u
	}
	if s.state.PendingChallenge != nil {
		ch := *s.state.PendingChallenge
		out.PendingChallenge = &ch
	}
	return out
}

func (s *Store) begin(ctx context.Context) Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.newest = s.seq
	s.state.Loading = true
	s.state.Error = ""
	return Dispatch{seq: s.seq, ctx: ctx}
}

// settle runs apply under the lock iff the dispatch is still current.
// Stale and cancelled dispatches are discarded without touching state.
func (s *Store) settle(d Dispatch, apply func()) {
	if d.ctx != nil && d.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.seq != s.newest {
		return
	}
	s.state.Loading = false
	apply()
}

// StartLogin marks a login request in flight.
func (s *Store) StartLogin(ctx context.Context) Dispatch { return s.begin(ctx) }

// StartConfirm marks a 2FA confirmation in flight.
func (s *Store) StartConfirm(ctx context.Context) Dispatch { return s.begin(ctx) }

// StartRevalidate marks a who-am-I check in flight.
func (s *Store) StartRevalidate(ctx context.Context) Dispatch { return s.begin(ctx) }

// CompleteLogin applies a successful login response: either a full user or a
// pending two-factor challenge, never both.
func (s *Store) CompleteLogin(d Dispatch, out Outcome) {
	s.settle(d, func() {
		if out.Challenge != nil {
			// A fresh login supersedes any prior session, cached profile
			// included; user and pendingChallenge are never both set.
			s.clearUserLocked(d.ctx)
			s.state.PendingChallenge = out.Challenge
			s.state.Rehydrated = true
			return
		}
		s.setUserLocked(d.ctx, out.User)
	})
}

// ConfirmChallenge applies a successful 2FA confirmation.
func (s *Store) ConfirmChallenge(d Dispatch, out Outcome) {
	s.settle(d, func() {
		s.state.PendingChallenge = nil
		if out.User != nil {
			s.setUserLocked(d.ctx, out.User)
		}
	})
}

// FailLogin records a login or confirmation failure. Transport failures set
// serverDown and mask the message; everything else surfaces the backend's
// detail inline.
func (s *Store) FailLogin(d Dispatch, err error) {
	s.settle(d, func() {
		if errors.Is(err, gateway.ErrUnavailable) {
			s.state.ServerDown = true
			s.state.Error = ""
			return
		}
		s.state.ServerDown = false
		s.state.Error = errorMessage(err)
	})
}

// Revalidate applies the outcome of the who-am-I check. The branching is the
// heart of the store: silent unauthenticated, server down (cached user kept
// for display), forced expiry, or a generic error.
func (s *Store) Revalidate(d Dispatch, user *domain.User, err error) {
	s.settle(d, func() {
		switch {
		case err == nil:
			s.setUserLocked(d.ctx, user)
			s.state.ServerDown = false
		case errors.Is(err, gateway.ErrSessionExpired):
			s.state.SessionExpired = true
			s.state.ServerDown = false
			s.state.Error = ""
		case errors.Is(err, gateway.ErrUnauthenticated):
			// Not user-visible: the guard redirects to login instead.
			s.clearUserLocked(d.ctx)
			s.state.ServerDown = false
			s.state.Error = ""
			s.state.Rehydrated = true
		case errors.Is(err, gateway.ErrUnavailable):
			// Keep whatever the cache put on screen; just flag the outage.
			s.state.ServerDown = true
			s.state.Error = ""
		default:
			s.clearUserLocked(d.ctx)
			s.state.ServerDown = false
			s.state.Error = errorMessage(err)
			s.state.Rehydrated = true
		}
	})
}

// Logout resets the session. Idempotent: a second call on an empty session is
// a no-op. In-flight dispatches are invalidated so a late response cannot
// resurrect the user. The backend logout call is the caller's business; the
// store does not block on it.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.newest = s.seq
	s.clearUserLocked(ctx)
	s.state.PendingChallenge = nil
	s.state.Loading = false
	s.state.Error = ""
	s.state.ServerDown = false
	// SessionExpired stays put: it is a one-way edge that only a fresh
	// successful login resets.
	s.state.Rehydrated = true
}

// LoadCachedUser optimistically restores the persisted profile so the UI can
// render without a logged-out flash. Rehydrated is set whether or not
// anything was cached; the revalidation that follows always wins.
func (s *Store) LoadCachedUser(ctx context.Context) {
	user, err := s.cache.Load(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("user cache unreadable", "err", err)
	} else if user != nil {
		s.state.User = user
	}
	s.state.Rehydrated = true
}

// MarkSessionExpired flags the forced-logout condition. Idempotent; only a
// fresh successful login resets it.
func (s *Store) MarkSessionExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SessionExpired = true
}

func (s *Store) setUserLocked(ctx context.Context, user *domain.User) {
	s.state.User = user
	s.state.PendingChallenge = nil
	s.state.Rehydrated = true
	if user != nil {
		s.state.SessionExpired = false
		s.state.ServerDown = false
		if err := s.cache.Save(ctx, user); err != nil {
			s.logger.Warn("persist user cache", "err", err)
		}
	}
}

func (s *Store) clearUserLocked(ctx context.Context) {
	s.state.User = nil
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("clear user cache", "err", err)
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *gateway.BackendError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
