// Package bootstrap runs the start-up rehydration sequence: restore the
// cached profile immediately, then revalidate it against the server. The
// revalidation result always wins over the optimistic cache.
package bootstrap

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/session"
)

// Gateway is the slice of the auth gateway the sequence needs.
type Gateway interface {
	FetchCurrentUser(ctx context.Context) (*domain.User, error)
}

// Start loads the cache synchronously so the first render already has a user
// to show, then kicks off the who-am-I check in the background. The returned
// group settles when the revalidation has been applied to the store.
func Start(ctx context.Context, store *session.Store, gw Gateway, logger *slog.Logger) *errgroup.Group {
	store.LoadCachedUser(ctx)

	d := store.StartRevalidate(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := gw.FetchCurrentUser(ctx)
		store.Revalidate(d, user, err)
		if err != nil {
			logger.Debug("revalidation settled with failure", "err", err)
		}
		// Failure here is a session-state outcome, not a start-up error:
		// the guard renders it.
		return nil
	})
	return g
}
