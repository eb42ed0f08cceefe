// Package gateway talks to the records-management backend's authentication
// endpoints and classifies every failure into the taxonomy the session store
// branches on: unauthenticated, server unavailable, session expired, or a
// backend rejection carrying its own human-readable detail.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/observability"
)

// Outcome is the discriminated result of a login or 2FA confirmation:
// exactly one of User or Challenge is set.
type Outcome struct {
	User      *domain.User
	Challenge *domain.Challenge
}

type Client struct {
	baseURL string
	http    *http.Client
	carrier CredentialCarrier
	logger  *slog.Logger
}

func New(baseURL string, carrier CredentialCarrier, timeout time.Duration, logger *slog.Logger) *Client {
	hc := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	carrier.Install(hc)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		carrier: carrier,
		logger:  logger,
	}
}

// Carrier exposes the active credential carrier so the composition root can
// share it with callers that need Expired/Clear.
func (c *Client) Carrier() CredentialCarrier { return c.carrier }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type userDTO struct {
	ID           uint     `json:"id"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	Document     string   `json:"document"`
	RoleIDs      []uint   `json:"roleIds"`
	DependencyID uint     `json:"dependencyId"`
	Enabled      bool     `json:"enabled"`
	Permissions  []string `json:"permissions"`
}

type loginDTO struct {
	User            *userDTO `json:"user"`
	TwoFaRequired   bool     `json:"twoFaRequired"`
	ChallengeID     string   `json:"challengeId"`
	EmailMasked     string   `json:"emailMasked"`
	TwoFaTtlSeconds int      `json:"twoFaTtlSeconds"`
	AccessToken     string   `json:"accessToken"`
}

type messageDTO struct {
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, email, password string) (Outcome, error) {
	body := map[string]string{"email": email, "password": password}
	var dto loginDTO
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &dto); err != nil {
		observability.RecordAuthLogin("password", "error")
		return Outcome{}, err
	}
	out, err := c.acceptLogin(dto)
	if err != nil {
		observability.RecordAuthLogin("password", "error")
		return Outcome{}, err
	}
	if out.Challenge != nil {
		observability.RecordAuthLogin("password", "challenge")
	} else {
		observability.RecordAuthLogin("password", "ok")
	}
	return out, nil
}

func (c *Client) ConfirmTwoFactor(ctx context.Context, challengeID, code string) (Outcome, error) {
	body := map[string]string{"challengeId": challengeID, "code": code}
	var dto loginDTO
	if err := c.do(ctx, http.MethodPost, "/auth/2fa/confirm", body, &dto); err != nil {
		observability.RecordAuthLogin("2fa", "error")
		return Outcome{}, err
	}
	out, err := c.acceptLogin(dto)
	if err != nil {
		observability.RecordAuthLogin("2fa", "error")
		return Outcome{}, err
	}
	observability.RecordAuthLogin("2fa", "ok")
	return out, nil
}

func (c *Client) acceptLogin(dto loginDTO) (Outcome, error) {
	if dto.TwoFaRequired {
		return Outcome{Challenge: &domain.Challenge{
			ChallengeID: dto.ChallengeID,
			EmailMasked: dto.EmailMasked,
			TTLSeconds:  dto.TwoFaTtlSeconds,
		}}, nil
	}
	if dto.User == nil {
		return Outcome{}, &BackendError{Status: http.StatusOK, Message: "login response carried neither user nor challenge"}
	}
	if err := c.carrier.Store(Grant{AccessToken: dto.AccessToken}); err != nil {
		return Outcome{}, fmt.Errorf("store credential: %w", err)
	}
	return Outcome{User: c.toDomain(dto.User)}, nil
}

// FetchCurrentUser is the revalidation call. Its failure classification is
// the store's branching input: 401/403 become ErrUnauthenticated, transport
// failures ErrUnavailable, and everything else keeps the backend detail.
func (c *Client) FetchCurrentUser(ctx context.Context) (*domain.User, error) {
	if c.carrier.Expired() {
		observability.RecordRevalidation("expired_local")
		return nil, ErrSessionExpired
	}
	var dto userDTO
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &dto)
	if err != nil {
		var be *BackendError
		switch {
		case errors.Is(err, ErrSessionExpired):
			observability.RecordRevalidation("expired")
			return nil, err
		case errors.Is(err, ErrUnavailable):
			observability.RecordRevalidation("unavailable")
			return nil, err
		case errors.As(err, &be) && (be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden):
			observability.RecordRevalidation("unauthenticated")
			return nil, ErrUnauthenticated
		default:
			observability.RecordRevalidation("error")
			return nil, err
		}
	}
	observability.RecordRevalidation("ok")
	return c.toDomain(&dto), nil
}

// Logout is best-effort: the local credential is cleared even when the
// network call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if clearErr := c.carrier.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	if err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	observability.RecordAuthLogout("ok")
	return nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, "/auth/password/request", map[string]string{"email": email}, &dto); err != nil {
		return "", err
	}
	return dto.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, password, confirmPassword string) (string, error) {
	body := map[string]string{"token": token, "password": password, "confirmPassword": confirmPassword}
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, "/auth/password/reset", body, &dto); err != nil {
		return "", err
	}
	return dto.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("backend unreachable", "method", method, "path", path, "err", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		// A non-envelope body is tolerated; classification then falls back
		// to the HTTP status alone.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode >= 400 {
		return c.classify(resp.StatusCode, env.Error)
	}
	if out == nil {
		return nil
	}
	data := env.Data
	if data == nil {
		data = raw
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) classify(status int, apiErr *apiError) error {
	if apiErr != nil && apiErr.Code == codeSessionExpired {
		return ErrSessionExpired
	}
	be := &BackendError{Status: status}
	if apiErr != nil {
		be.Code = apiErr.Code
		// Prefer the backend's specific detail over its generic message,
		// and either over bare HTTP status text.
		if d, ok := apiErr.Details["detail"].(string); ok && d != "" {
			be.Message = d
		} else {
			be.Message = apiErr.Message
		}
	}
	if be.Message == "" {
		be.Message = http.StatusText(status)
	}
	return be
}

func (c *Client) toDomain(dto *userDTO) *domain.User {
	perms := make(domain.PermissionSet, len(dto.Permissions))
	for _, code := range dto.Permissions {
		p, ok := domain.ParsePermission(code)
		if !ok {
			observability.RecordUnknownPermission(code)
			c.logger.Warn("dropping unknown permission code", "code", code)
			continue
		}
		perms.Add(p)
	}
	return &domain.User{
		ID:           dto.ID,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		Email:        dto.Email,
		Phone:        dto.Phone,
		Document:     dto.Document,
		RoleIDs:      dto.RoleIDs,
		DependencyID: dto.DependencyID,
		Enabled:      dto.Enabled,
		Permissions:  perms,
	}
}
