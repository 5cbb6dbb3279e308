package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/httpclient"
)

const registerURLPath = "/mpesa/c2b/v1/registerurl"

// callbackURLPattern accepts https URLs with a dotted host and a restricted
// path/query character set.
var callbackURLPattern = regexp.MustCompile(`^https://([\w-]+\.)+[\w-]+(/[\w ./?%&=-]*)?$`)

// ValidCallbackURL reports whether u is acceptable as a C2B callback URL.
func ValidCallbackURL(u string) bool {
	return callbackURLPattern.MatchString(u)
}

// TokenSource supplies bearer tokens for Daraja API calls.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Client wraps authenticated calls to the Daraja API.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	tokens  TokenSource
	baseURL CredentialSource
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURLSource resolves the Daraja base URL from source on every call,
// so a rotated secret is picked up without a restart. A non-empty resolved
// URL takes precedence over RegistrationConfig.BaseURL.
func WithBaseURLSource(source CredentialSource) ClientOption {
	return func(c *Client) { c.baseURL = source }
}

// NewClient constructs a new Daraja API client.
func NewClient(logger *zap.Logger, exec *httpclient.Executor, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		logger: logger,
		exec:   exec,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterURLs registers the confirmation and validation URLs for a short code.
// POST /mpesa/c2b/v1/registerurl
//
// Configuration and URL format are checked before any token or upstream call.
// On success the raw upstream body is returned for relaying.
func (c *Client) RegisterURLs(ctx context.Context, cfg RegistrationConfig) (json.RawMessage, error) {
	cfg.BaseURL = c.resolveBaseURL(ctx, cfg.BaseURL)
	if missing := cfg.missing(); len(missing) > 0 {
		c.logger.Error("daraja.register.missing_config", zap.Strings("missing", missing))
		return nil, &Error{Kind: ErrConfiguration, Op: "registerurl",
			Err: fmt.Errorf("missing %s", strings.Join(missing, ", "))}
	}

	if !ValidCallbackURL(cfg.ConfirmationURL) || !ValidCallbackURL(cfg.ValidationURL) {
		c.logger.Warn("daraja.register.invalid_url",
			zap.String("confirmation_url", cfg.ConfirmationURL),
			zap.String("validation_url", cfg.ValidationURL))
		return nil, &Error{Kind: ErrValidation, Op: "registerurl",
			Err: errors.New("URLs must be HTTPS and properly formatted")}
	}

	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("daraja: get auth token: %w", err)
	}

	responseType := cfg.ResponseType
	if responseType == "" {
		responseType = DefaultResponseType
	}
	payload := RegisterURLRequest{
		ShortCode:       cfg.ShortCode,
		ResponseType:    responseType,
		ConfirmationURL: cfg.ConfirmationURL,
		ValidationURL:   cfg.ValidationURL,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + registerURLPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Op: "registerurl", Err: err}
	}
	setHeaders(req, token)

	body, err := c.exec.Do(ctx, req)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, &Error{Kind: ErrUpstreamHTTP, Op: "registerurl", StatusCode: statusErr.StatusCode}
		}
		return nil, &Error{Kind: ErrUpstreamHTTP, Op: "registerurl", Err: err}
	}

	c.logger.Info("daraja.register.success",
		zap.String("short_code", cfg.ShortCode),
		zap.String("response_type", responseType),
		zap.String("body", string(body)))

	return body, nil
}

// resolveBaseURL returns the source's current base URL, or fallback when
// there is no source or it cannot be read.
func (c *Client) resolveBaseURL(ctx context.Context, fallback string) string {
	if c.baseURL == nil {
		return fallback
	}
	creds, err := c.baseURL.Credentials(ctx)
	if err != nil {
		c.logger.Warn("daraja.register.base_url_unresolved", zap.Error(err))
		return fallback
	}
	if creds.BaseURL == "" {
		return fallback
	}
	return creds.BaseURL
}

// missing returns the environment names of unset registration settings.
func (r RegistrationConfig) missing() []string {
	var names []string
	if r.ShortCode == "" {
		names = append(names, "SHORT_CODE")
	}
	if r.ConfirmationURL == "" {
		names = append(names, "CONFIRMATION_URL")
	}
	if r.ValidationURL == "" {
		names = append(names, "VALIDATION_URL")
	}
	if r.BaseURL == "" {
		names = append(names, "MPESA_BASE_URL")
	}
	return names
}

// setHeaders sets required headers for Daraja API requests.
func setHeaders(req *http.Request, bearerToken string) {
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
