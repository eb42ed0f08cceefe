// Package guard decides what a protected view may render based on the
// current session snapshot: a fixed-priority decision function plus a
// one-shot watcher for forced logout on session expiry.
package guard

import (
	"context"
	"sync"

	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/observability"
	"github.com/azaruiz94/sse-web/internal/session"
)

type Decision int

const (
	// DecisionServerDown blocks everything with the outage notice.
	DecisionServerDown Decision = iota
	// DecisionUnauthenticated redirects to the login view.
	DecisionUnauthenticated
	// DecisionLoading blocks with a spinner while a check is outstanding.
	DecisionLoading
	// DecisionForbidden redirects to the 403 view.
	DecisionForbidden
	// DecisionAuthorized renders the requested view.
	DecisionAuthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionServerDown:
		return "server_down"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionLoading:
		return "loading"
	case DecisionForbidden:
		return "forbidden"
	case DecisionAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Decide evaluates the guard states in strict priority order; the first match
// wins. required may be empty for routes that only need authentication.
// Permission checks are allow-list only: absence of the code is the sole
// forbidden condition.
func Decide(snap session.Snapshot, required domain.Permission) Decision {
	switch {
	case snap.ServerDown:
		return DecisionServerDown
	case snap.User == nil && !snap.Loading && snap.Rehydrated:
		return DecisionUnauthenticated
	case snap.Loading || snap.User == nil:
		return DecisionLoading
	case required != "" && !snap.User.Permissions.Has(required):
		return DecisionForbidden
	default:
		return DecisionAuthorized
	}
}

// ExpiryWatcher turns the sessionExpired flag's false-to-true transition into
// exactly one trigger, no matter how many times the guard re-evaluates while
// the flag stays up. It re-arms when the flag drops (fresh login).
type ExpiryWatcher struct {
	mu    sync.Mutex
	fired bool
}

func (w *ExpiryWatcher) Observe(expired bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !expired {
		w.fired = false
		return false
	}
	if w.fired {
		return false
	}
	w.fired = true
	return true
}

// Guard binds the decision function to a store and a forced-logout action.
type Guard struct {
	store  *session.Store
	watch  ExpiryWatcher
	logout func(ctx context.Context)
}

// New builds a guard. logout runs exactly once per expiry transition; it
// should clear the store and fire the backend logout best-effort.
func New(store *session.Store, logout func(ctx context.Context)) *Guard {
	return &Guard{store: store, logout: logout}
}

// Evaluate reads the current snapshot, applies the expiry side effect if its
// transition is fresh, and returns the render decision.
func (g *Guard) Evaluate(ctx context.Context, required domain.Permission) Decision {
	snap := g.store.Snapshot()
	if g.watch.Observe(snap.SessionExpired) {
		if g.logout != nil {
			g.logout(ctx)
		}
		snap = g.store.Snapshot()
	}
	d := Decide(snap, required)
	observability.RecordGuardDecision(d.String())
	return d
}
