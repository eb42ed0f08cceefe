package app

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/azaruiz94/sse-web/internal/cache"
	"github.com/azaruiz94/sse-web/internal/config"
	"github.com/azaruiz94/sse-web/internal/gateway"
	"github.com/azaruiz94/sse-web/internal/guard"
	"github.com/azaruiz94/sse-web/internal/observability"
	"github.com/azaruiz94/sse-web/internal/session"
)

// ProviderSet wires the console from a loaded configuration.
var ProviderSet = wire.NewSet(
	observability.NewLogger,
	observability.InitRuntime,
	ProvideCache,
	ProvideCarrier,
	ProvideGateway,
	ProvideStore,
	ProvideGuard,
	New,
)

// ProvideCache opens the encrypted on-disk profile cache when the config
// carries a cache key, falling back to the in-memory cache otherwise.
func ProvideCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if !cfg.CacheEnabled() {
		return cache.NewMemory()
	}
	c, err := cache.OpenSQLite(cfg.CachePath, cfg.CacheKey)
	if err != nil {
		logger.Warn("profile cache unavailable, continuing without persistence", "path", cfg.CachePath, "error", err)
		return cache.NewMemory()
	}
	return c
}

func ProvideCarrier(cfg *config.Config) (gateway.CredentialCarrier, error) {
	return gateway.NewCarrier(cfg.AuthTransport)
}

func ProvideGateway(cfg *config.Config, carrier gateway.CredentialCarrier, logger *slog.Logger) *gateway.Client {
	return gateway.New(cfg.APIBaseURL, carrier, cfg.RequestTimeout, logger)
}

func ProvideStore(c cache.Cache, logger *slog.Logger) *session.Store {
	return session.NewStore(c, logger)
}

// ProvideGuard attaches the forced-logout reaction to the route guard: an
// observed expiry clears local state immediately and tells the backend to
// drop the session in the background.
func ProvideGuard(store *session.Store, gw *gateway.Client, logger *slog.Logger) *guard.Guard {
	return guard.New(store, func(ctx context.Context) {
		observability.Audit(ctx, "session_expired_forced_logout")
		store.Logout(ctx)
		go func() {
			if err := gw.Logout(context.WithoutCancel(ctx)); err != nil {
				logger.Debug("backend logout after expiry failed", "error", err)
			}
		}()
	})
}
