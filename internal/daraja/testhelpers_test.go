package daraja

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/httpclient"
)

const testBaseURL = "https://sandbox.safaricom.co.ke"

// mockTransport is an http.RoundTripper that delegates to a handler function.
type mockTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

// jsonResponse builds a fake *http.Response with the given status and JSON body.
func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// newTestExecutor creates an Executor whose transport is fn.
func newTestExecutor(fn func(*http.Request) (*http.Response, error)) *httpclient.Executor {
	return httpclient.New(zap.NewNop(), nil, &http.Client{Transport: &mockTransport{fn: fn}}, "daraja")
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCreds() StaticCredentials {
	return StaticCredentials{
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		BaseURL:        testBaseURL,
	}
}

func newTestTokenManager(t *testing.T, source CredentialSource, clock *fakeClock, fn func(*http.Request) (*http.Response, error), opts ...TokenOption) *TokenManager {
	t.Helper()
	opts = append([]TokenOption{WithClock(clock.Now)}, opts...)
	return NewTokenManager(zap.NewNop(), newTestExecutor(fn), source, opts...)
}
