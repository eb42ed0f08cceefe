// Package tui renders the console: a login form (with optional two-factor
// prompt) and the permission-gated navigation menu. Every frame is driven by
// the route guard's decision over the current session snapshot.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/gateway"
	"github.com/azaruiz94/sse-web/internal/guard"
	"github.com/azaruiz94/sse-web/internal/menu"
	"github.com/azaruiz94/sse-web/internal/session"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type (
	// refreshMsg tells the model a store mutation settled.
	refreshMsg struct{}
	tickMsg    time.Time
)

type focusField int

const (
	focusEmail focusField = iota
	focusPassword
)

type Model struct {
	ctx   context.Context
	store *session.Store
	gw    *gateway.Client
	guard *guard.Guard

	email    string
	password string
	code     string
	focus    focusField

	cursor     int
	activeItem *menu.Item

	frame int
	width int
}

func New(ctx context.Context, store *session.Store, gw *gateway.Client, g *guard.Guard) Model {
	return Model{ctx: ctx, store: store, gw: gw, guard: g}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.frame++
		return m, tick()
	case refreshMsg:
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.store.Snapshot()
	decision := m.decision()

	switch decision {
	case guard.DecisionServerDown:
		switch msg.String() {
		case "r":
			return m, m.revalidateCmd()
		case "q":
			return m, tea.Quit
		}
		return m, nil
	case guard.DecisionLoading:
		return m, nil
	case guard.DecisionUnauthenticated:
		if snap.PendingChallenge != nil {
			return m.handleChallengeKey(msg, snap)
		}
		return m.handleLoginKey(msg)
	case guard.DecisionForbidden:
		if msg.Type == tea.KeyEsc {
			m.activeItem = nil
		}
		return m, nil
	default:
		return m.handleMenuKey(msg)
	}
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown, tea.KeyUp:
		if m.focus == focusEmail {
			m.focus = focusPassword
		} else {
			m.focus = focusEmail
		}
	case tea.KeyEnter:
		if m.focus == focusEmail {
			m.focus = focusPassword
			return m, nil
		}
		return m, m.loginCmd(m.email, m.password)
	case tea.KeyBackspace:
		if m.focus == focusEmail {
			m.email = trimLast(m.email)
		} else {
			m.password = trimLast(m.password)
		}
	case tea.KeyRunes, tea.KeySpace:
		if m.focus == focusEmail {
			m.email += string(msg.Runes)
		} else {
			m.password += string(msg.Runes)
		}
	}
	return m, nil
}

func (m Model) handleChallengeKey(msg tea.KeyMsg, snap session.Snapshot) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m, m.confirmCmd(snap.PendingChallenge.ChallengeID, m.code)
	case tea.KeyBackspace:
		m.code = trimLast(m.code)
	case tea.KeyRunes:
		m.code += string(msg.Runes)
	}
	return m, nil
}

func (m Model) handleMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.flatItems()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(items)-1 {
			m.cursor++
		}
	case "enter":
		if m.activeItem == nil && m.cursor < len(items) {
			it := items[m.cursor]
			m.activeItem = &it
		}
	case "esc":
		m.activeItem = nil
	case "l":
		m.activeItem = nil
		m.password = ""
		m.code = ""
		return m, m.logoutCmd()
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

// decision runs the guard, gating on the active item's permission when a view
// is open.
func (m Model) decision() guard.Decision {
	var required domain.Permission
	if m.activeItem != nil {
		required = m.activeItem.Permission
	}
	return m.guard.Evaluate(m.ctx, required)
}

func (m Model) flatItems() []menu.Item {
	snap := m.store.Snapshot()
	if snap.User == nil {
		return nil
	}
	var out []menu.Item
	for _, g := range menu.Build(snap.User.Permissions) {
		out = append(out, g.Items...)
	}
	return out
}

func (m Model) loginCmd(email, password string) tea.Cmd {
	store, gw, ctx := m.store, m.gw, m.ctx
	return func() tea.Msg {
		d := store.StartLogin(ctx)
		out, err := gw.Login(ctx, email, password)
		if err != nil {
			store.FailLogin(d, err)
		} else {
			store.CompleteLogin(d, session.Outcome{User: out.User, Challenge: out.Challenge})
		}
		return refreshMsg{}
	}
}

func (m Model) confirmCmd(challengeID, code string) tea.Cmd {
	store, gw, ctx := m.store, m.gw, m.ctx
	return func() tea.Msg {
		d := store.StartConfirm(ctx)
		out, err := gw.ConfirmTwoFactor(ctx, challengeID, code)
		if err != nil {
			store.FailLogin(d, err)
		} else {
			store.ConfirmChallenge(d, session.Outcome{User: out.User, Challenge: out.Challenge})
		}
		return refreshMsg{}
	}
}

func (m Model) revalidateCmd() tea.Cmd {
	store, gw, ctx := m.store, m.gw, m.ctx
	return func() tea.Msg {
		d := store.StartRevalidate(ctx)
		user, err := gw.FetchCurrentUser(ctx)
		store.Revalidate(d, user, err)
		return refreshMsg{}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	store, gw, ctx := m.store, m.gw, m.ctx
	return func() tea.Msg {
		store.Logout(ctx)
		// Best-effort: local state is already cleared.
		_ = gw.Logout(ctx)
		return refreshMsg{}
	}
}

func (m Model) View() string {
	snap := m.store.Snapshot()
	var body string
	switch m.decision() {
	case guard.DecisionServerDown:
		body = noticeStyle.Render("No se pudo conectar con el servidor.\nPor favor, intente más tarde.") +
			helpStyle.Render("\n[r] reintentar  [q] salir")
	case guard.DecisionLoading:
		body = fmt.Sprintf("%s Verificando sesión...", spinnerFrames[m.frame%len(spinnerFrames)])
	case guard.DecisionUnauthenticated:
		if snap.PendingChallenge != nil {
			body = m.viewChallenge(snap)
		} else {
			body = m.viewLogin(snap)
		}
	case guard.DecisionForbidden:
		body = noticeStyle.Render("403 — No tiene permiso para acceder a esta sección.") +
			helpStyle.Render("\n[esc] volver al menú")
	default:
		body = m.viewMain(snap)
	}
	return titleStyle.Render("SSE — Seguimiento de Expedientes") + "\n\n" + body + "\n"
}

func (m Model) viewLogin(snap session.Snapshot) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Iniciar sesión") + "\n\n")
	b.WriteString(field("Correo", m.email, m.focus == focusEmail))
	b.WriteString(field("Contraseña", strings.Repeat("•", len(m.password)), m.focus == focusPassword))
	if snap.Error != "" {
		b.WriteString("\n" + errorStyle.Render(snap.Error) + "\n")
	}
	b.WriteString(helpStyle.Render("[tab] cambiar campo  [enter] ingresar  [ctrl+c] salir"))
	return b.String()
}

func (m Model) viewChallenge(snap session.Snapshot) string {
	ch := snap.PendingChallenge
	var b strings.Builder
	b.WriteString(labelStyle.Render("Verificación en dos pasos") + "\n\n")
	b.WriteString(fmt.Sprintf("Se envió un código a %s (válido %ds)\n\n", ch.EmailMasked, ch.TTLSeconds))
	b.WriteString(field("Código", m.code, true))
	if snap.Error != "" {
		b.WriteString("\n" + errorStyle.Render(snap.Error) + "\n")
	}
	b.WriteString(helpStyle.Render("[enter] confirmar  [ctrl+c] salir"))
	return b.String()
}

func (m Model) viewMain(snap session.Snapshot) string {
	if m.activeItem != nil {
		return labelStyle.Render(m.activeItem.Title) + "\n\n" +
			fmt.Sprintf("Vista %s (%s)\n", m.activeItem.URL, m.activeItem.Permission) +
			helpStyle.Render("[esc] volver al menú")
	}
	groups := menu.Build(snap.User.Permissions)
	// The cursor indexes the flattened item list of the freshly built menu.
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Sesión: %s %s <%s>\n", snap.User.FirstName, snap.User.LastName, snap.User.Email))
	idx := 0
	for _, g := range groups {
		b.WriteString(groupStyle.Render(g.Title) + "\n")
		for _, it := range g.Items {
			if idx == m.cursor {
				b.WriteString(selectedItemStyle.Render("▸ "+it.Title) + "\n")
			} else {
				b.WriteString(itemStyle.Render(it.Title) + "\n")
			}
			idx++
		}
	}
	if idx == 0 {
		b.WriteString("\nSu cuenta no tiene secciones habilitadas.\n")
	}
	b.WriteString(helpStyle.Render("[↑/↓] mover  [enter] abrir  [l] cerrar sesión  [q] salir"))
	return b.String()
}

func field(label, value string, focused bool) string {
	marker := "  "
	if focused {
		marker = "> "
	}
	return fmt.Sprintf("%s%s: %s\n", marker, labelStyle.Render(label), value)
}

func trimLast(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(r[:len(r)-1])
}
