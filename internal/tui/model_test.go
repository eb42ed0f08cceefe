package tui

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/azaruiz94/sse-web/internal/cache"
	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/gateway"
	"github.com/azaruiz94/sse-web/internal/guard"
	"github.com/azaruiz94/sse-web/internal/session"
)

func newTestModel(t *testing.T) (Model, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewStore(cache.NewMemory(), logger)
	g := guard.New(store, func(ctx context.Context) { store.Logout(ctx) })
	return New(context.Background(), store, nil, g), store
}

func TestViewShowsSpinnerBeforeRehydration(t *testing.T) {
	m, _ := newTestModel(t)
	if !strings.Contains(m.View(), "Verificando sesión") {
		t.Fatal("expected the loading spinner before rehydration")
	}
}

func TestViewShowsLoginWhenUnauthenticated(t *testing.T) {
	m, store := newTestModel(t)
	store.LoadCachedUser(context.Background())

	if !strings.Contains(m.View(), "Iniciar sesión") {
		t.Fatal("expected the login form")
	}
}

func TestViewShowsInlineLoginError(t *testing.T) {
	m, store := newTestModel(t)
	store.LoadCachedUser(context.Background())
	d := store.StartLogin(context.Background())
	store.FailLogin(d, &gateway.BackendError{Status: 401, Message: "Credenciales inválidas"})

	if !strings.Contains(m.View(), "Credenciales inválidas") {
		t.Fatal("expected the backend message inline on the form")
	}
}

func TestViewShowsOutageNotice(t *testing.T) {
	m, store := newTestModel(t)
	d := store.StartLogin(context.Background())
	store.FailLogin(d, gateway.ErrUnavailable)

	view := m.View()
	if !strings.Contains(view, "No se pudo conectar con el servidor") {
		t.Fatal("expected the outage notice")
	}
	if !strings.Contains(view, "[r] reintentar") {
		t.Fatal("expected the retry hint")
	}
}

func TestViewShowsChallengePrompt(t *testing.T) {
	m, store := newTestModel(t)
	d := store.StartLogin(context.Background())
	store.CompleteLogin(d, session.Outcome{Challenge: &domain.Challenge{
		ChallengeID: "ch-1", EmailMasked: "a***@sse.gov.py", TTLSeconds: 300,
	}})

	view := m.View()
	if !strings.Contains(view, "Verificación en dos pasos") {
		t.Fatal("expected the challenge prompt")
	}
	if !strings.Contains(view, "a***@sse.gov.py") {
		t.Fatal("expected the masked email shown")
	}
}

func TestViewShowsOnlyPermittedMenuItems(t *testing.T) {
	m, store := newTestModel(t)
	d := store.StartLogin(context.Background())
	store.CompleteLogin(d, session.Outcome{User: &domain.User{
		ID: 2, FirstName: "Mesa", LastName: "Entrada", Email: "mesa@sse.gov.py",
		Permissions: domain.NewPermissionSet(domain.PermVerSolicitante, domain.PermVerExpediente),
	}})

	view := m.View()
	if !strings.Contains(view, "Expedientes") || !strings.Contains(view, "Solicitantes") {
		t.Fatal("expected the granted sections listed")
	}
	if strings.Contains(view, "Usuarios") || strings.Contains(view, "Configuración") {
		t.Fatal("sections without the permission must not render")
	}
}
