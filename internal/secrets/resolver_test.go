package secrets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/daraja"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/httpclient"
	pkgsecrets "github.com/Checker-Finance/adapters/mpesa-adapter/pkg/secrets"
)

// fakeProvider serves secrets from a map and counts calls.
type fakeProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (f *fakeProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.secrets[key]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return m, nil
}

var envFallback = daraja.Credentials{
	ConsumerKey:    "env-key",
	ConsumerSecret: "env-secret",
	BaseURL:        "https://sandbox.safaricom.co.ke",
}

func newTestSource(p *fakeProvider) *CredentialSource {
	resolver := NewAWSResolver(zap.NewNop(), p, pkgsecrets.NewCache[daraja.Credentials](time.Hour))
	return NewCredentialSource(resolver, "prod/mpesa", envFallback)
}

func TestCredentialSource_FromSecret(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/mpesa": {
			"consumer_key":    "sm-key",
			"consumer_secret": "sm-secret",
			"base_url":        "https://api.safaricom.co.ke",
		},
	}}
	src := newTestSource(p)

	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sm-key", creds.ConsumerKey)
	assert.Equal(t, "sm-secret", creds.ConsumerSecret)
	assert.Equal(t, "https://api.safaricom.co.ke", creds.BaseURL)
}

func TestCredentialSource_BaseURLFallsBackToEnv(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/mpesa": {"consumer_key": "sm-key", "consumer_secret": "sm-secret"},
	}}
	src := newTestSource(p)

	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sm-key", creds.ConsumerKey)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", creds.BaseURL)
}

func TestCredentialSource_CachesSecret(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/mpesa": {"consumer_key": "k", "consumer_secret": "s"},
	}}
	src := newTestSource(p)

	for i := 0; i < 3; i++ {
		_, err := src.Credentials(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.calls)

	src.Invalidate()
	_, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestCredentialSource_ProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("access denied")}
	src := newTestSource(p)

	_, err := src.Credentials(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod/mpesa")

	// failures are not cached
	_, _ = src.Credentials(context.Background())
	assert.Equal(t, 2, p.calls)
}

func TestCredentialSource_ParseUsesEnvForMissingKeys(t *testing.T) {
	src := &CredentialSource{fallback: envFallback}

	creds, err := src.parse(map[string]string{"consumer_key": "  sm-key  "})
	require.NoError(t, err)
	assert.Equal(t, "sm-key", creds.ConsumerKey)
	assert.Equal(t, "env-secret", creds.ConsumerSecret)
}

func TestCredentialSource_ParseRequiresKeyAndSecret(t *testing.T) {
	src := &CredentialSource{}

	_, err := src.parse(map[string]string{"consumer_key": "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer_secret")

	_, err = src.parse(map[string]string{})
	require.Error(t, err)
}

// ─── Token manager integration: 401 busts cached credentials ────────────────

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestCredentialSource_UnauthorizedInvalidatesCache(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/mpesa": {"consumer_key": "k", "consumer_secret": "s"},
	}}
	src := newTestSource(p)

	exec := httpclient.New(zap.NewNop(), nil, &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Header:     http.Header{},
		}, nil
	})}, "daraja")
	tm := daraja.NewTokenManager(zap.NewNop(), exec, src)

	_, err := tm.GetToken(context.Background())
	require.ErrorIs(t, err, daraja.ErrAuthentication)
	_, err = tm.GetToken(context.Background())
	require.ErrorIs(t, err, daraja.ErrAuthentication)

	assert.Equal(t, 2, p.calls, "each 401 should force a fresh secret read")
}
