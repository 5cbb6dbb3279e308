package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/metrics"
	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/rate"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/utils"
)

// ErrDecode is returned by DoJSON when a 2xx body is not valid JSON for out.
var ErrDecode = errors.New("decode failed")

// StatusError is returned for non-2xx upstream responses. The body is kept
// for logging and is deliberately left out of Error().
type StatusError struct {
	Venue      string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Venue, e.StatusCode)
}

// Executor performs single-shot, rate-limited HTTP calls against one venue.
// Failures are returned immediately; there is no retry.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	venueTag string
}

// New creates an Executor. rateMgr may be nil.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, venueTag string) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		venueTag: venueTag,
	}
}

// Do executes req and returns the raw response body for 2xx responses.
// Non-2xx responses yield a *StatusError; the upstream body is logged.
func (e *Executor) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	endpoint := req.URL.Path
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, endpoint); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.http.Do(req.WithContext(ctx))
	metrics.ObserveDuration(metrics.DarajaRequestDuration, start, endpoint, req.Method)
	if err != nil {
		metrics.IncDarajaRequest(endpoint, req.Method, "error")
		e.logger.Warn(e.venueTag+".http_failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	metrics.IncDarajaRequest(endpoint, req.Method, strconv.Itoa(resp.StatusCode))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", e.venueTag, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn(e.venueTag+".http_error_status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("authorization", utils.MaskBearer(req.Header.Get("Authorization"))),
			zap.String("body", string(body)))
		return nil, &StatusError{Venue: e.venueTag, StatusCode: resp.StatusCode, Body: body}
	}

	e.logger.Debug(e.venueTag+".http_success",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return body, nil
}

// DoJSON executes req and JSON-decodes a 2xx body into out. The raw body is
// returned alongside so callers can relay it unchanged.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, out any) ([]byte, error) {
	body, err := e.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(e.venueTag+".decode_failed",
				zap.String("endpoint", req.URL.Path),
				zap.Error(err),
				zap.String("body", string(body)))
			return body, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return body, nil
}
