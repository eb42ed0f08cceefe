// Package mockapi is a development fixture implementing the backend's
// authentication contract: login with optional two-factor, cookie sessions
// and bearer tokens, revalidation, logout, and password reset. It exists so
// the console (and its integration tests) can run against a faithful stand-in
// without the real records-management backend.
package mockapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionCookie = "SESSION"

// Account is a seeded fixture user.
type Account struct {
	ID           uint
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Document     string
	RoleIDs      []uint
	DependencyID uint
	Enabled      bool
	Permissions  []string
	TwoFA        bool

	passwordHash string
}

type Options struct {
	JWTSecret    string
	Pepper       string
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	ResetTTL     time.Duration
	TwoFAEnabled bool
}

type Server struct {
	opts     Options
	store    Store
	tokens   *TokenManager
	logger   *slog.Logger
	accounts map[string]*Account
}

func NewServer(opts Options, store Store, logger *slog.Logger) *Server {
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.ChallengeTTL == 0 {
		opts.ChallengeTTL = 5 * time.Minute
	}
	if opts.ResetTTL == 0 {
		opts.ResetTTL = 15 * time.Minute
	}
	if opts.Pepper == "" {
		opts.Pepper = "sse-mockapi-pepper"
	}
	return &Server{
		opts:     opts,
		store:    store,
		tokens:   NewTokenManager(opts.JWTSecret),
		logger:   logger,
		accounts: make(map[string]*Account),
	}
}

// AddAccount registers a fixture user with the given password.
func (s *Server) AddAccount(a Account, password string) {
	a.passwordHash = s.hash(password)
	s.accounts[strings.ToLower(a.Email)] = &a
}

// SeedDefaults loads the stock development accounts. The printed passwords
// are fixture-only.
func (s *Server) SeedDefaults() {
	all := []string{
		"VER_SOLICITANTE", "VER_EXPEDIENTE", "VER_RESOLUCION", "VER_ESTADO",
		"VER_DEPENDENCIA", "VER_USUARIO", "VER_ROL", "VER_PERMISOS", "VER_AUDITORIA",
		"CREAR_EXPEDIENTE", "CREAR_RESOLUCION", "FIRMAR_RESOLUCION",
		"CREAR_USUARIO", "EDITAR_USUARIO", "CREAR_ROL", "EDITAR_ROL",
	}
	s.AddAccount(Account{
		ID: 1, FirstName: "Ana", LastName: "Zárate", Email: "admin@sse.gov.py",
		Document: "1234567", RoleIDs: []uint{1}, DependencyID: 1, Enabled: true,
		Permissions: all,
	}, "admin123")
	s.AddAccount(Account{
		ID: 2, FirstName: "Mesa", LastName: "Entrada", Email: "mesa@sse.gov.py",
		Document: "7654321", RoleIDs: []uint{2}, DependencyID: 2, Enabled: true,
		Permissions: []string{"VER_SOLICITANTE", "VER_EXPEDIENTE"},
	}, "mesa1234")
	s.AddAccount(Account{
		ID: 3, FirstName: "Sofía", LastName: "Benítez", Email: "2fa@sse.gov.py",
		Document: "5550123", RoleIDs: []uint{1}, DependencyID: 1, Enabled: true,
		Permissions: all, TwoFA: true,
	}, "secreto99")
	s.logger.Info("seeded fixture accounts", "count", len(s.accounts))
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/2fa/confirm", s.handleTwoFaConfirm)
		r.Post("/logout", s.handleLogout)
		r.Post("/password/request", s.handlePasswordRequest)
		r.Post("/password/reset", s.handlePasswordReset)
	})
	r.Get("/users/me", s.handleMe)

	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "cuerpo de solicitud inválido", nil)
		return
	}
	acct := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	if acct == nil || !s.verify(acct, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Correo o contraseña incorrectos", nil)
		return
	}
	if !acct.Enabled {
		writeError(w, r, http.StatusForbidden, "ACCOUNT_DISABLED", "El usuario está deshabilitado", nil)
		return
	}

	if acct.TwoFA && s.opts.TwoFAEnabled {
		ch := Challenge{
			ID:        uuid.NewString(),
			Email:     acct.Email,
			Code:      s.challengeCode(),
			ExpiresAt: time.Now().Add(s.opts.ChallengeTTL),
		}
		if err := s.store.PutChallenge(r.Context(), ch); err != nil {
			writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "no se pudo crear el desafío", nil)
			return
		}
		s.logger.Info("two-factor challenge issued", "email", acct.Email, "code", ch.Code)
		writeJSON(w, r, http.StatusOK, map[string]any{
			"twoFaRequired":   true,
			"challengeId":     ch.ID,
			"emailMasked":     maskEmail(acct.Email),
			"twoFaTtlSeconds": int(s.opts.ChallengeTTL.Seconds()),
		})
		return
	}

	s.issueSession(w, r, acct)
}

type twoFaRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

func (s *Server) handleTwoFaConfirm(w http.ResponseWriter, r *http.Request) {
	var req twoFaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "cuerpo de solicitud inválido", nil)
		return
	}
	ch, ok, err := s.store.GetChallenge(r.Context(), req.ChallengeID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "no se pudo verificar el desafío", nil)
		return
	}
	if !ok || time.Now().After(ch.ExpiresAt) {
		writeError(w, r, http.StatusBadRequest, "CHALLENGE_INVALID", "El código expiró o el desafío no existe", nil)
		return
	}
	if subtleNotEqual(ch.Code, req.Code) {
		writeError(w, r, http.StatusBadRequest, "CODE_MISMATCH", "Código de verificación incorrecto", nil)
		return
	}
	_ = s.store.DeleteChallenge(r.Context(), ch.ID)
	acct := s.accounts[strings.ToLower(ch.Email)]
	if acct == nil {
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Cuenta no encontrada", nil)
		return
	}
	s.issueSession(w, r, acct)
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, acct *Account) {
	id := uuid.NewString()
	sess := Session{Email: acct.Email, ExpiresAt: time.Now().Add(s.opts.SessionTTL)}
	if err := s.store.PutSession(r.Context(), id, sess); err != nil {
		writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "no se pudo crear la sesión", nil)
		return
	}
	// No Expires on the cookie itself: expiry is tracked server-side so an
	// expired session can still be answered with SESSION_EXPIRED instead of
	// the cookie silently vanishing from the client.
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	token, err := s.tokens.Sign(acct.Email, acct.Permissions, s.opts.SessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "TOKEN_ERROR", "no se pudo firmar el token", nil)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"user":        userPayload(acct),
		"accessToken": token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, expired := s.authenticate(r)
	if expired {
		writeError(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "La sesión ha expirado", nil)
		return
	}
	if acct == nil {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid credentials", nil)
		return
	}
	writeJSON(w, r, http.StatusOK, userPayload(acct))
}

// authenticate resolves the request's account via cookie or bearer token.
// expired=true means a credential was presented but is past its lifetime.
func (s *Server) authenticate(r *http.Request) (acct *Account, expired bool) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		sess, ok, err := s.store.GetSession(r.Context(), c.Value)
		if err == nil && ok {
			if time.Now().After(sess.ExpiresAt) {
				return nil, true
			}
			return s.accounts[strings.ToLower(sess.Email)], false
		}
		return nil, false
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		email, err := s.tokens.Parse(strings.TrimSpace(auth[7:]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, true
			}
			return nil, false
		}
		return s.accounts[strings.ToLower(email)], false
	}
	return nil, false
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		_ = s.store.DeleteSession(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "sesión cerrada"})
}

type passwordRequestBody struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "cuerpo de solicitud inválido", nil)
		return
	}
	// Same response whether or not the account exists.
	if acct := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]; acct != nil {
		t := ResetToken{
			Token:     uuid.NewString(),
			Email:     acct.Email,
			ExpiresAt: time.Now().Add(s.opts.ResetTTL),
		}
		if err := s.store.PutResetToken(r.Context(), t); err == nil {
			s.logger.Info("password reset token issued", "email", acct.Email, "token", t.Token)
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"message": "Si el correo existe, se envió un enlace de restablecimiento",
	})
}

type passwordResetBody struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "cuerpo de solicitud inválido", nil)
		return
	}
	if req.Password == "" || req.Password != req.ConfirmPassword {
		writeError(w, r, http.StatusBadRequest, "PASSWORD_MISMATCH", "Las contraseñas no coinciden", nil)
		return
	}
	t, ok, err := s.store.ConsumeResetToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "no se pudo verificar el token", nil)
		return
	}
	if !ok || t.Used || time.Now().After(t.ExpiresAt) {
		writeError(w, r, http.StatusBadRequest, "RESET_TOKEN_INVALID", "Reset token expired or used",
			map[string]string{"detail": "Reset token expired or used"})
		return
	}
	if acct := s.accounts[strings.ToLower(t.Email)]; acct != nil {
		acct.passwordHash = s.hash(req.Password)
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Contraseña restablecida"})
}

func userPayload(a *Account) map[string]any {
	return map[string]any{
		"id":           a.ID,
		"firstName":    a.FirstName,
		"lastName":     a.LastName,
		"email":        a.Email,
		"phone":        a.Phone,
		"document":     a.Document,
		"roleIds":      a.RoleIDs,
		"dependencyId": a.DependencyID,
		"enabled":      a.Enabled,
		"permissions":  a.Permissions,
	}
}

func (s *Server) hash(password string) string {
	mac := hmac.New(sha256.New, []byte(s.opts.Pepper))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) verify(a *Account, password string) bool {
	return hmac.Equal([]byte(a.passwordHash), []byte(s.hash(password)))
}

func (s *Server) challengeCode() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "000000"
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000)
}

func subtleNotEqual(want, got string) bool {
	return !hmac.Equal([]byte(want), []byte(got))
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***" + email[at+1:]
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
