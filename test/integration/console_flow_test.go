package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/azaruiz94/sse-web/internal/cache"
	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/gateway"
	"github.com/azaruiz94/sse-web/internal/guard"
	"github.com/azaruiz94/sse-web/internal/menu"
	"github.com/azaruiz94/sse-web/internal/mockapi"
	"github.com/azaruiz94/sse-web/internal/session"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	server  *mockapi.Server
	backend *httptest.Server
	store   *session.Store
	memory  *mockapi.MemoryStore
	gw      *gateway.Client
	guard   *guard.Guard
	carrier gateway.CredentialCarrier
}

func newHarness(t *testing.T, transport string, opts mockapi.Options) *harness {
	t.Helper()

	if opts.JWTSecret == "" {
		opts.JWTSecret = "integration-secret"
	}
	memory := mockapi.NewMemoryStore()
	srv := mockapi.NewServer(opts, memory, discard())
	srv.SeedDefaults()
	backend := httptest.NewServer(srv.Router())
	t.Cleanup(backend.Close)

	carrier, err := gateway.NewCarrier(transport)
	if err != nil {
		t.Fatalf("NewCarrier: %v", err)
	}
	gw := gateway.New(backend.URL, carrier, 5*time.Second, discard())
	store := session.NewStore(cache.NewMemory(), discard())
	g := guard.New(store, func(ctx context.Context) {
		store.Logout(ctx)
		_ = gw.Logout(ctx)
	})
	return &harness{server: srv, backend: backend, store: store, memory: memory, gw: gw, guard: g, carrier: carrier}
}

// login drives the full dispatch cycle the way the UI does.
func (h *harness) login(ctx context.Context, email, password string) error {
	d := h.store.StartLogin(ctx)
	out, err := h.gw.Login(ctx, email, password)
	if err != nil {
		h.store.FailLogin(d, err)
		return err
	}
	h.store.CompleteLogin(d, session.Outcome{User: out.User, Challenge: out.Challenge})
	return nil
}

func (h *harness) revalidate(ctx context.Context) {
	d := h.store.StartRevalidate(ctx)
	user, err := h.gw.FetchCurrentUser(ctx)
	h.store.Revalidate(d, user, err)
}

func TestCookieLoginRevalidateLogout(t *testing.T) {
	h := newHarness(t, "cookie", mockapi.Options{})
	ctx := context.Background()

	if err := h.login(ctx, "admin@sse.gov.py", "admin123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	snap := h.store.Snapshot()
	if snap.User == nil || snap.User.Email != "admin@sse.gov.py" {
		t.Fatalf("expected an authenticated session, got %+v", snap)
	}

	if got := h.guard.Evaluate(ctx, domain.PermVerExpediente); got != guard.DecisionAuthorized {
		t.Fatalf("expected authorized, got %s", got)
	}

	// The cookie session survives a fresh revalidation.
	h.revalidate(ctx)
	if snap = h.store.Snapshot(); snap.User == nil {
		t.Fatal("expected the cookie session accepted by /users/me")
	}

	if err := h.gw.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	h.store.Logout(ctx)
	if got := h.guard.Evaluate(ctx, ""); got != guard.DecisionUnauthenticated {
		t.Fatalf("expected unauthenticated after logout, got %s", got)
	}

	// The server-side session is gone too.
	h.revalidate(ctx)
	if snap = h.store.Snapshot(); snap.User != nil {
		t.Fatal("expected the backend to reject the cleared session")
	}
}

func TestBearerLoginAndRevalidate(t *testing.T) {
	h := newHarness(t, "bearer", mockapi.Options{})
	ctx := context.Background()

	if err := h.login(ctx, "mesa@sse.gov.py", "mesa1234"); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.revalidate(ctx)
	snap := h.store.Snapshot()
	if snap.User == nil || snap.User.Email != "mesa@sse.gov.py" {
		t.Fatalf("expected the bearer token accepted, got %+v", snap.User)
	}

	// The menu mirrors the account's two read permissions.
	groups := menu.Build(snap.User.Permissions)
	if len(groups) != 1 || groups[0].ID != "sistema" || len(groups[0].Items) != 2 {
		t.Fatalf("unexpected menu for mesa account: %+v", groups)
	}
	if got := h.guard.Evaluate(ctx, domain.PermVerUsuario); got != guard.DecisionForbidden {
		t.Fatalf("expected forbidden without VER_USUARIO, got %s", got)
	}
}

func TestTwoFactorLoginFlow(t *testing.T) {
	h := newHarness(t, "cookie", mockapi.Options{TwoFAEnabled: true})
	ctx := context.Background()

	if err := h.login(ctx, "2fa@sse.gov.py", "secreto99"); err != nil {
		t.Fatalf("login: %v", err)
	}
	snap := h.store.Snapshot()
	if snap.User != nil || snap.PendingChallenge == nil {
		t.Fatalf("expected a pending challenge, got %+v", snap)
	}

	ch, ok, err := h.memory.GetChallenge(ctx, snap.PendingChallenge.ChallengeID)
	if err != nil || !ok {
		t.Fatalf("challenge not stored: %v", err)
	}

	d := h.store.StartConfirm(ctx)
	out, err := h.gw.ConfirmTwoFactor(ctx, ch.ID, ch.Code)
	if err != nil {
		t.Fatalf("ConfirmTwoFactor: %v", err)
	}
	h.store.ConfirmChallenge(d, session.Outcome{User: out.User})

	snap = h.store.Snapshot()
	if snap.User == nil || snap.PendingChallenge != nil {
		t.Fatalf("expected a settled authenticated session, got %+v", snap)
	}
}

func TestExpiredCookieSessionForcesLogout(t *testing.T) {
	// Sessions are issued already expired so the very next check trips the
	// backend's SESSION_EXPIRED answer.
	h := newHarness(t, "cookie", mockapi.Options{SessionTTL: -time.Minute})
	ctx := context.Background()

	if err := h.login(ctx, "admin@sse.gov.py", "admin123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if h.store.Snapshot().User == nil {
		t.Fatal("login itself still succeeds")
	}

	h.revalidate(ctx)
	snap := h.store.Snapshot()
	if !snap.SessionExpired {
		t.Fatalf("expected sessionExpired from the backend signal, got %+v", snap)
	}

	if got := h.guard.Evaluate(ctx, ""); got != guard.DecisionUnauthenticated {
		t.Fatalf("expected forced logout to land on login, got %s", got)
	}
	if h.store.Snapshot().User != nil {
		t.Fatal("expected the user cleared by the forced logout")
	}
}

func TestExpiredBearerTokenDetectedLocally(t *testing.T) {
	h := newHarness(t, "bearer", mockapi.Options{SessionTTL: -time.Minute})
	ctx := context.Background()

	if err := h.login(ctx, "admin@sse.gov.py", "admin123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The issued token is already past exp, so the carrier reports expiry
	// without a round trip.
	if _, err := h.gw.FetchCurrentUser(ctx); !errors.Is(err, gateway.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestBackendOutageScenario(t *testing.T) {
	h := newHarness(t, "cookie", mockapi.Options{})
	ctx := context.Background()
	h.backend.Close() // simulate the records backend being down

	err := h.login(ctx, "admin@sse.gov.py", "admin123")
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	snap := h.store.Snapshot()
	if !snap.ServerDown || snap.Error != "" {
		t.Fatalf("expected a masked outage state, got %+v", snap)
	}
	if got := h.guard.Evaluate(ctx, ""); got != guard.DecisionServerDown {
		t.Fatalf("expected the outage screen, got %s", got)
	}
}

func TestWrongPasswordShowsBackendMessage(t *testing.T) {
	h := newHarness(t, "cookie", mockapi.Options{})
	ctx := context.Background()

	if err := h.login(ctx, "admin@sse.gov.py", "wrong"); err == nil {
		t.Fatal("expected a rejection")
	}
	snap := h.store.Snapshot()
	if snap.Error != "Correo o contraseña incorrectos" {
		t.Fatalf("expected the backend's own message inline, got %q", snap.Error)
	}
	if snap.ServerDown {
		t.Fatal("a rejection is not an outage")
	}
}
