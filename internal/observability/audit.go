package observability

import (
	"context"
	"log/slog"
)

// Audit records an auth-relevant event (login, forced logout, expiry) on the
// default logger.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
