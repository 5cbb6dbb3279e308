package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/httpclient"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/metrics"
)

const (
	oauthPath = "/oauth/v1/generate"
	// DefaultTokenTTL is how long a fetched token is reused. Daraja tokens
	// live 60 minutes; the margin keeps a token from expiring mid-request.
	DefaultTokenTTL = 50 * time.Minute
)

// tokenEntry caches a bearer token with its expiry time.
type tokenEntry struct {
	accessToken string
	expiresAt   time.Time
}

// valid reports whether the entry can be served at now.
func (e tokenEntry) valid(now time.Time) bool {
	return e.accessToken != "" && !e.expiresAt.IsZero() && now.Before(e.expiresAt)
}

// invalidator is implemented by credential sources that cache; a 401 from the
// OAuth endpoint drops their cached credentials.
type invalidator interface {
	Invalidate()
}

// TokenManager fetches and caches the Daraja OAuth client-credentials token.
//
// The check-then-refresh sequence is not serialized: concurrent callers that
// miss the cache each exchange credentials and the last write wins. Enable
// single-flight to collapse concurrent refreshes into one upstream call.
type TokenManager struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	source CredentialSource
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	entry tokenEntry

	group *singleflight.Group // nil unless single-flight is enabled
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSingleFlight makes concurrent cache misses share one upstream exchange.
func WithSingleFlight(enabled bool) TokenOption {
	return func(m *TokenManager) {
		if enabled {
			m.group = &singleflight.Group{}
		} else {
			m.group = nil
		}
	}
}

// NewTokenManager creates a TokenManager with an empty cache.
func NewTokenManager(logger *zap.Logger, exec *httpclient.Executor, source CredentialSource, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		logger: logger,
		exec:   exec,
		source: source,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetToken returns a valid bearer token, exchanging credentials when the
// cached one is absent or expired.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		metrics.IncTokenCache("hit")
		return token, nil
	}
	metrics.IncTokenCache("miss")

	if m.group == nil {
		token, _, err := m.refresh(ctx)
		return token, err
	}

	v, err, shared := m.group.Do("token", func() (any, error) {
		// A caller that lost the race may find the winner's token already stored.
		if token, ok := m.cached(); ok {
			return token, nil
		}
		token, _, err := m.refresh(ctx)
		return token, err
	})
	if shared {
		m.logger.Debug("daraja.auth.refresh_shared")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Generate always performs a fresh exchange, primes the cache with the new
// token and returns the raw OAuth response body.
func (m *TokenManager) Generate(ctx context.Context) (json.RawMessage, error) {
	_, raw, err := m.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Invalidate drops the cached token.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.entry = tokenEntry{}
	m.mu.Unlock()
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.RLock()
	entry := m.entry
	m.mu.RUnlock()
	if entry.valid(m.now()) {
		return entry.accessToken, true
	}
	return "", false
}

// refresh exchanges credentials for a token and stores it.
func (m *TokenManager) refresh(ctx context.Context) (string, json.RawMessage, error) {
	creds, err := m.source.Credentials(ctx)
	if err != nil {
		return "", nil, &Error{Kind: ErrConfiguration, Op: "oauth", Err: err}
	}
	if missing := creds.missing(); len(missing) > 0 {
		m.logger.Error("daraja.auth.missing_credentials",
			zap.Strings("missing", missing))
		return "", nil, &Error{Kind: ErrConfiguration, Op: "oauth",
			Err: fmt.Errorf("missing %s", strings.Join(missing, ", "))}
	}

	tokenResp, raw, err := m.fetchToken(ctx, creds)
	if err != nil {
		metrics.IncTokenRefresh("error")
		m.logger.Error("daraja.auth.token_failed", zap.Error(err))
		if inv, ok := m.source.(invalidator); ok && StatusCode(err) == http.StatusUnauthorized {
			inv.Invalidate()
		}
		return "", nil, err
	}

	m.mu.Lock()
	m.entry = tokenEntry{
		accessToken: tokenResp.AccessToken,
		expiresAt:   m.now().Add(m.ttl),
	}
	m.mu.Unlock()

	metrics.IncTokenRefresh("ok")
	m.logger.Info("daraja.auth.token_refreshed",
		zap.String("upstream_expires_in", tokenResp.ExpiresIn.String()),
		zap.Duration("cached_for", m.ttl))

	return tokenResp.AccessToken, raw, nil
}

// fetchToken requests a new access token using HTTP Basic credentials.
func (m *TokenManager) fetchToken(ctx context.Context, creds Credentials) (*TokenResponse, json.RawMessage, error) {
	url := strings.TrimRight(creds.BaseURL, "/") + oauthPath + "?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, &Error{Kind: ErrConfiguration, Op: "oauth", Err: err}
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(creds.ConsumerKey, creds.ConsumerSecret))
	req.Header.Set("Content-Type", "application/json")

	var tokenResp TokenResponse
	raw, err := m.exec.DoJSON(ctx, req, &tokenResp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, nil, &Error{Kind: ErrAuthentication, Op: "oauth", StatusCode: statusErr.StatusCode}
		}
		if errors.Is(err, httpclient.ErrDecode) {
			return nil, nil, &Error{Kind: ErrAuthentication, Op: "oauth",
				Err: &Error{Kind: ErrUpstreamProtocol, Op: "oauth"}}
		}
		return nil, nil, &Error{Kind: ErrAuthentication, Op: "oauth", Err: err}
	}

	if tokenResp.AccessToken == "" {
		m.logger.Warn("daraja.auth.empty_access_token", zap.String("body", string(raw)))
		return nil, nil, &Error{Kind: ErrAuthentication, Op: "oauth",
			Err: &Error{Kind: ErrUpstreamProtocol, Op: "oauth"}}
	}

	return &tokenResp, raw, nil
}

func basicAuth(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}
