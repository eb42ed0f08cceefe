package gateway

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Grant is whatever credential material a successful login handed back.
// Cookie deployments carry nothing here (the jar holds the session cookie);
// bearer deployments carry the access token.
type Grant struct {
	AccessToken string
}

// CredentialCarrier abstracts the two authentication transports the backend
// has shipped with: an HttpOnly session cookie and a client-held bearer token.
// The gateway is agnostic to which one is active.
type CredentialCarrier interface {
	// Install wires the carrier into the HTTP client (cookie jar or
	// authorizing round tripper).
	Install(c *http.Client)
	// Store records the grant returned by a successful login or 2FA confirm.
	Store(g Grant) error
	// Clear drops any held credential material on logout.
	Clear() error
	// Expired reports whether the held credential is already known to be
	// stale without a network round trip. Cookie carriers always return
	// false; only the server knows the cookie's state.
	Expired() bool
}

// CookieCarrier relies on a server-managed SESSION cookie sent with every
// request. The client never sees credential material directly. The carrier is
// itself the jar handed to the HTTP client, delegating to an inner jar that
// Clear can swap out; swapping the inner jar therefore empties the installed
// client too.
type CookieCarrier struct {
	mu  sync.RWMutex
	jar http.CookieJar
}

func NewCookieCarrier() (*CookieCarrier, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &CookieCarrier{jar: jar}, nil
}

func (c *CookieCarrier) Install(client *http.Client) { client.Jar = c }

func (c *CookieCarrier) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.jar.SetCookies(u, cookies)
}

func (c *CookieCarrier) Cookies(u *url.URL) []*http.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jar.Cookies(u)
}

func (c *CookieCarrier) Store(Grant) error { return nil }

func (c *CookieCarrier) Clear() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()
	return nil
}

func (c *CookieCarrier) Expired() bool { return false }

// BearerCarrier holds an access token in memory and attaches it to every
// request. The token's exp claim is read (unverified; verification is the
// server's job) so a dead token can be reported without a round trip.
type BearerCarrier struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewBearerCarrier() *BearerCarrier { return &BearerCarrier{} }

func (b *BearerCarrier) Install(client *http.Client) {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = &bearerTransport{carrier: b, base: base}
}

func (b *BearerCarrier) Store(g Grant) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = g.AccessToken
	b.expiresAt = time.Time{}
	if g.AccessToken == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(g.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			b.expiresAt = exp.Time
		}
	}
	return nil
}

func (b *BearerCarrier) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = ""
	b.expiresAt = time.Time{}
	return nil
}

func (b *BearerCarrier) Expired() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token != "" && !b.expiresAt.IsZero() && time.Now().After(b.expiresAt)
}

func (b *BearerCarrier) current() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

type bearerTransport struct {
	carrier *BearerCarrier
	base    http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := t.carrier.current()
	if tok == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}).SetAuthHeader(clone)
	return t.base.RoundTrip(clone)
}

// NewCarrier builds the carrier named by configuration. Mode matching is
// case-insensitive; anything other than "bearer" means the cookie transport.
func NewCarrier(mode string) (CredentialCarrier, error) {
	if strings.EqualFold(strings.TrimSpace(mode), "bearer") {
		return NewBearerCarrier(), nil
	}
	return NewCookieCarrier()
}
