package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/daraja"
)

// ─── Mocks ────────────────────────────────────────────────────────────────────

type mockTokens struct {
	generateFn func(ctx context.Context) (json.RawMessage, error)
}

func (m *mockTokens) Generate(ctx context.Context) (json.RawMessage, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockRegistrar struct {
	calls      int
	got        daraja.RegistrationConfig
	registerFn func(ctx context.Context, cfg daraja.RegistrationConfig) (json.RawMessage, error)
}

func (m *mockRegistrar) RegisterURLs(ctx context.Context, cfg daraja.RegistrationConfig) (json.RawMessage, error) {
	m.calls++
	m.got = cfg
	if m.registerFn != nil {
		return m.registerFn(ctx, cfg)
	}
	return nil, fmt.Errorf("not implemented")
}

// ─── Test app helpers ─────────────────────────────────────────────────────────

var testRegistration = daraja.RegistrationConfig{
	BaseURL:         "https://sandbox.safaricom.co.ke",
	ShortCode:       "600638",
	ConfirmationURL: "https://merchant.example.com/api/c2b/confirmation",
	ValidationURL:   "https://merchant.example.com/api/c2b/validation",
	ResponseType:    "Completed",
}

func newTestApp(tokens TokenGenerator, registrar URLRegistrar) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(zap.NewNop())})
	handler := NewDarajaHandler(zap.NewNop(), tokens, registrar, testRegistration)
	webhooks := daraja.NewWebhookHandler(zap.NewNop(), nil, nil)
	RegisterRoutes(app, handler, webhooks)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// ─── GenerateToken ────────────────────────────────────────────────────────────

func TestGenerateToken_Success(t *testing.T) {
	tokens := &mockTokens{generateFn: func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"access_token":"abc","expires_in":"3599"}`), nil
	}}
	app := newTestApp(tokens, &mockRegistrar{})

	resp, body := doRequest(t, app, http.MethodGet, "/daraja/token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"access_token":"abc","expires_in":"3599"}`, string(body))
}

func TestGenerateToken_Failure(t *testing.T) {
	tokens := &mockTokens{generateFn: func(context.Context) (json.RawMessage, error) {
		return nil, &daraja.Error{Kind: daraja.ErrAuthentication, Op: "oauth", StatusCode: http.StatusUnauthorized}
	}}
	app := newTestApp(tokens, &mockRegistrar{})

	resp, body := doRequest(t, app, http.MethodGet, "/daraja/token", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to retrieve access token"}`, string(body))
}

// ─── RegisterURL ──────────────────────────────────────────────────────────────

func TestRegisterURL_Success(t *testing.T) {
	registrar := &mockRegistrar{registerFn: func(context.Context, daraja.RegistrationConfig) (json.RawMessage, error) {
		return json.RawMessage(`{"ResponseCode":"0","ResponseDescription":"success"}`), nil
	}}
	app := newTestApp(&mockTokens{}, registrar)

	resp, body := doRequest(t, app, http.MethodPost, "/api/register/url", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ResponseCode":"0","ResponseDescription":"success"}`, string(body))
	assert.Equal(t, 1, registrar.calls)
	assert.Equal(t, testRegistration, registrar.got)
}

func TestRegisterURL_IgnoresRequestBody(t *testing.T) {
	registrar := &mockRegistrar{registerFn: func(context.Context, daraja.RegistrationConfig) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	app := newTestApp(&mockTokens{}, registrar)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/register/url", `{"ShortCode":"999999"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "600638", registrar.got.ShortCode)
}

func TestRegisterURL_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing configuration",
			err:        &daraja.Error{Kind: daraja.ErrConfiguration, Op: "registerurl"},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Server configuration error. Please check environment variables.",
		},
		{
			name:       "invalid url",
			err:        &daraja.Error{Kind: daraja.ErrValidation, Op: "registerurl"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid URL format. URLs must use HTTPS protocol.",
		},
		{
			name:       "oauth unauthorized",
			err:        fmt.Errorf("daraja: get auth token: %w", &daraja.Error{Kind: daraja.ErrAuthentication, Op: "oauth", StatusCode: 401}),
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Authentication failed with M-Pesa API",
		},
		{
			name:       "registration unauthorized",
			err:        &daraja.Error{Kind: daraja.ErrUpstreamHTTP, Op: "registerurl", StatusCode: 401},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Authentication failed with M-Pesa API",
		},
		{
			name:       "oauth credentials missing",
			err:        fmt.Errorf("daraja: get auth token: %w", &daraja.Error{Kind: daraja.ErrConfiguration, Op: "oauth"}),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Server configuration error. Please check environment variables.",
		},
		{
			name:       "upstream bad request",
			err:        &daraja.Error{Kind: daraja.ErrUpstreamHTTP, Op: "registerurl", StatusCode: 400},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to register URLs with M-Pesa",
		},
		{
			name:       "network failure",
			err:        &daraja.Error{Kind: daraja.ErrUpstreamHTTP, Op: "registerurl", Err: errors.New("dial tcp: timeout")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to register URLs with M-Pesa",
		},
		{
			name:       "oauth protocol error",
			err:        &daraja.Error{Kind: daraja.ErrAuthentication, Op: "oauth", Err: &daraja.Error{Kind: daraja.ErrUpstreamProtocol, Op: "oauth"}},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to register URLs with M-Pesa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registrar := &mockRegistrar{registerFn: func(context.Context, daraja.RegistrationConfig) (json.RawMessage, error) {
				return nil, tt.err
			}}
			app := newTestApp(&mockTokens{}, registrar)

			resp, body := doRequest(t, app, http.MethodPost, "/api/register/url", "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tt.wantMsg, out["error"])
		})
	}
}
