package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *MemoryStore, *httptest.Server) {
	t.Helper()
	store := NewMemoryStore()
	srv := NewServer(Options{JWTSecret: "test-secret", TwoFAEnabled: true}, store,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.SeedDefaults()
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)
	return srv, store, hs
}

func post(t *testing.T, url string, body any) (*http.Response, response) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) response {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func sessionCookieFrom(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("expected a SESSION cookie")
	return nil
}

func TestLoginIssuesCookieAndToken(t *testing.T) {
	_, _, hs := newTestServer(t)

	resp, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "admin@sse.gov.py", "password": "admin123"})
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("expected success, got %d %+v", resp.StatusCode, body)
	}

	var data struct {
		User        map[string]any `json:"user"`
		AccessToken string         `json:"accessToken"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User["email"] != "admin@sse.gov.py" {
		t.Fatalf("unexpected user payload: %+v", data.User)
	}
	if data.AccessToken == "" {
		t.Fatal("expected a bearer token alongside the cookie")
	}
	if c := sessionCookieFrom(t, resp); !c.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, _, hs := newTestServer(t)

	resp, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "admin@sse.gov.py", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
}

func TestTwoFactorFlow(t *testing.T) {
	_, store, hs := newTestServer(t)

	_, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "2fa@sse.gov.py", "password": "secreto99"})
	var challenge struct {
		TwoFaRequired   bool   `json:"twoFaRequired"`
		ChallengeID     string `json:"challengeId"`
		EmailMasked     string `json:"emailMasked"`
		TwoFaTtlSeconds int    `json:"twoFaTtlSeconds"`
	}
	if err := json.Unmarshal(body.Data, &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if !challenge.TwoFaRequired || challenge.ChallengeID == "" {
		t.Fatalf("expected a challenge, got %+v", challenge)
	}
	if !strings.Contains(challenge.EmailMasked, "*") {
		t.Fatalf("expected a masked email, got %q", challenge.EmailMasked)
	}

	ch, ok, err := store.GetChallenge(context.Background(), challenge.ChallengeID)
	if err != nil || !ok {
		t.Fatalf("challenge not stored: %v", err)
	}

	resp, confirm := post(t, hs.URL+"/auth/2fa/confirm", map[string]string{"challengeId": ch.ID, "code": ch.Code})
	if resp.StatusCode != http.StatusOK || !confirm.Success {
		t.Fatalf("expected confirmed login, got %d %+v", resp.StatusCode, confirm)
	}
	sessionCookieFrom(t, resp)

	// The challenge is single-use.
	resp, retry := post(t, hs.URL+"/auth/2fa/confirm", map[string]string{"challengeId": ch.ID, "code": ch.Code})
	if resp.StatusCode != http.StatusBadRequest || retry.Error == nil || retry.Error.Code != "CHALLENGE_INVALID" {
		t.Fatalf("expected the challenge consumed, got %d %+v", resp.StatusCode, retry.Error)
	}
}

func TestTwoFactorWrongCode(t *testing.T) {
	_, store, hs := newTestServer(t)

	_, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "2fa@sse.gov.py", "password": "secreto99"})
	var challenge struct {
		ChallengeID string `json:"challengeId"`
	}
	if err := json.Unmarshal(body.Data, &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	ch, _, _ := store.GetChallenge(context.Background(), challenge.ChallengeID)
	wrong := "000000"
	if ch.Code == wrong {
		wrong = "000001"
	}

	resp, confirm := post(t, hs.URL+"/auth/2fa/confirm", map[string]string{"challengeId": ch.ID, "code": wrong})
	if resp.StatusCode != http.StatusBadRequest || confirm.Error == nil || confirm.Error.Code != "CODE_MISMATCH" {
		t.Fatalf("expected a code mismatch, got %d %+v", resp.StatusCode, confirm.Error)
	}
}

func meWithCookie(t *testing.T, hs *httptest.Server, c *http.Cookie) (*http.Response, response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, hs.URL+"/users/me", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.AddCookie(c)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	return resp, decode(t, resp)
}

func TestMeWithCookieSession(t *testing.T) {
	_, _, hs := newTestServer(t)

	resp, _ := post(t, hs.URL+"/auth/login", map[string]string{"email": "mesa@sse.gov.py", "password": "mesa1234"})
	c := sessionCookieFrom(t, resp)

	meResp, me := meWithCookie(t, hs, c)
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", meResp.StatusCode)
	}
	var user struct {
		Email       string   `json:"email"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(me.Data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Email != "mesa@sse.gov.py" || len(user.Permissions) != 2 {
		t.Fatalf("unexpected profile: %+v", user)
	}
}

func TestMeWithBearerToken(t *testing.T) {
	_, _, hs := newTestServer(t)

	_, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "admin@sse.gov.py", "password": "admin123"})
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, hs.URL+"/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+data.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	if me := decode(t, resp); resp.StatusCode != http.StatusOK || !me.Success {
		t.Fatalf("expected 200, got %d %+v", resp.StatusCode, me)
	}
}

func TestMeExpiredCookieIsSessionExpired(t *testing.T) {
	_, store, hs := newTestServer(t)

	id := "expired-session"
	if err := store.PutSession(context.Background(), id, Session{
		Email:     "admin@sse.gov.py",
		ExpiresAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	resp, body := meWithCookie(t, hs, &http.Cookie{Name: sessionCookie, Value: id})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "SESSION_EXPIRED" {
		t.Fatalf("expected the explicit expiry code, got %+v", body.Error)
	}
}

func TestMeExpiredBearerIsSessionExpired(t *testing.T) {
	srv, _, hs := newTestServer(t)

	token, err := srv.tokens.Sign("admin@sse.gov.py", nil, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, hs.URL+"/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusUnauthorized || body.Error == nil || body.Error.Code != "SESSION_EXPIRED" {
		t.Fatalf("expected SESSION_EXPIRED, got %d %+v", resp.StatusCode, body.Error)
	}
}

func TestMeWithoutCredentials(t *testing.T) {
	_, _, hs := newTestServer(t)

	resp, err := http.Get(hs.URL + "/users/me")
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusUnauthorized || body.Error == nil || body.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %d %+v", resp.StatusCode, body.Error)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	_, store, hs := newTestServer(t)

	resp, _ := post(t, hs.URL+"/auth/login", map[string]string{"email": "admin@sse.gov.py", "password": "admin123"})
	c := sessionCookieFrom(t, resp)

	req, _ := http.NewRequest(http.MethodPost, hs.URL+"/auth/logout", nil)
	req.AddCookie(c)
	outResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /auth/logout: %v", err)
	}
	if out := decode(t, outResp); outResp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("expected logout to succeed, got %d", outResp.StatusCode)
	}

	if _, ok, _ := store.GetSession(context.Background(), c.Value); ok {
		t.Fatal("expected the server-side session removed")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s, store, hs := newTestServer(t)

	resp, body := post(t, hs.URL+"/auth/password/request", map[string]string{"email": "admin@sse.gov.py"})
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("expected a neutral success, got %d", resp.StatusCode)
	}

	var token string
	store.mu.Lock()
	for tok := range store.resets {
		token = tok
	}
	store.mu.Unlock()
	if token == "" {
		t.Fatal("expected a reset token issued")
	}

	resp, reset := post(t, hs.URL+"/auth/password/reset", map[string]string{
		"token": token, "password": "nueva123", "confirmPassword": "nueva123",
	})
	if resp.StatusCode != http.StatusOK || !reset.Success {
		t.Fatalf("expected reset to succeed, got %d %+v", resp.StatusCode, reset.Error)
	}
	if acct := s.accounts["admin@sse.gov.py"]; !s.verify(acct, "nueva123") {
		t.Fatal("expected the password rotated")
	}

	// Single-use: a second attempt reports the exact consumed-token detail.
	resp, again := post(t, hs.URL+"/auth/password/reset", map[string]string{
		"token": token, "password": "otra1234", "confirmPassword": "otra1234",
	})
	if resp.StatusCode != http.StatusBadRequest || again.Error == nil {
		t.Fatalf("expected rejection, got %d", resp.StatusCode)
	}
	if again.Error.Code != "RESET_TOKEN_INVALID" || again.Error.Details["detail"] != "Reset token expired or used" {
		t.Fatalf("unexpected error payload: %+v", again.Error)
	}
}

func TestPasswordResetMismatch(t *testing.T) {
	_, _, hs := newTestServer(t)

	resp, body := post(t, hs.URL+"/auth/password/reset", map[string]string{
		"token": "whatever", "password": "a", "confirmPassword": "b",
	})
	if resp.StatusCode != http.StatusBadRequest || body.Error == nil || body.Error.Code != "PASSWORD_MISMATCH" {
		t.Fatalf("expected PASSWORD_MISMATCH, got %d %+v", resp.StatusCode, body.Error)
	}
}

func TestPasswordRequestUnknownEmailIsNeutral(t *testing.T) {
	_, store, hs := newTestServer(t)

	resp, body := post(t, hs.URL+"/auth/password/request", map[string]string{"email": "nadie@sse.gov.py"})
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("the response must not disclose account existence, got %d", resp.StatusCode)
	}
	store.mu.Lock()
	n := len(store.resets)
	store.mu.Unlock()
	if n != 0 {
		t.Fatal("no token should be issued for an unknown account")
	}
}

func TestDisabledAccountIsRejected(t *testing.T) {
	srv, _, hs := newTestServer(t)
	srv.AddAccount(Account{ID: 9, Email: "baja@sse.gov.py", Enabled: false}, "baja1234")

	resp, body := post(t, hs.URL+"/auth/login", map[string]string{"email": "baja@sse.gov.py", "password": "baja1234"})
	if resp.StatusCode != http.StatusForbidden || body.Error == nil || body.Error.Code != "ACCOUNT_DISABLED" {
		t.Fatalf("expected ACCOUNT_DISABLED, got %d %+v", resp.StatusCode, body.Error)
	}
}
