package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/daraja"
)

// Client-facing error messages.
const (
	msgTokenFailed        = "Failed to retrieve access token"
	msgConfigError        = "Server configuration error. Please check environment variables."
	msgInvalidURL         = "Invalid URL format. URLs must use HTTPS protocol."
	msgAuthFailed         = "Authentication failed with M-Pesa API"
	msgRegistrationFailed = "Failed to register URLs with M-Pesa"
)

// TokenGenerator exchanges credentials for a fresh OAuth token.
type TokenGenerator interface {
	Generate(ctx context.Context) (json.RawMessage, error)
}

// URLRegistrar registers C2B callback URLs with Daraja.
type URLRegistrar interface {
	RegisterURLs(ctx context.Context, cfg daraja.RegistrationConfig) (json.RawMessage, error)
}

// DarajaHandler serves the token and URL registration endpoints.
type DarajaHandler struct {
	logger       *zap.Logger
	tokens       TokenGenerator
	registrar    URLRegistrar
	registration daraja.RegistrationConfig
}

// NewDarajaHandler creates a new DarajaHandler. registration is the
// deployment's short code and callback URLs.
func NewDarajaHandler(logger *zap.Logger, tokens TokenGenerator, registrar URLRegistrar, registration daraja.RegistrationConfig) *DarajaHandler {
	return &DarajaHandler{
		logger:       logger,
		tokens:       tokens,
		registrar:    registrar,
		registration: registration,
	}
}

// GenerateToken returns the raw OAuth response.
// GET /daraja/token
func (h *DarajaHandler) GenerateToken(c *fiber.Ctx) error {
	raw, err := h.tokens.Generate(c.UserContext())
	if err != nil {
		h.logger.Error("api.token.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgTokenFailed})
	}
	return sendRawJSON(c, raw)
}

// RegisterURL registers the configured confirmation and validation URLs and
// relays Daraja's response body.
// POST /api/register/url
func (h *DarajaHandler) RegisterURL(c *fiber.Ctx) error {
	raw, err := h.registrar.RegisterURLs(c.UserContext(), h.registration)
	if err != nil {
		status, msg := registrationError(err)
		h.logger.Error("api.register_url.failed",
			zap.String("short_code", h.registration.ShortCode),
			zap.Int("status", status),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return sendRawJSON(c, raw)
}

// registrationError maps a registration failure to a status and message.
// An upstream 401 (from OAuth or registration) is passed through as 401.
func registrationError(err error) (int, string) {
	switch {
	case errors.Is(err, daraja.ErrConfiguration):
		return fiber.StatusInternalServerError, msgConfigError
	case errors.Is(err, daraja.ErrValidation):
		return fiber.StatusBadRequest, msgInvalidURL
	case daraja.StatusCode(err) == http.StatusUnauthorized:
		return fiber.StatusUnauthorized, msgAuthFailed
	default:
		return fiber.StatusInternalServerError, msgRegistrationFailed
	}
}

func sendRawJSON(c *fiber.Ctx, raw json.RawMessage) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if len(raw) == 0 {
		return c.Status(fiber.StatusOK).SendString("{}")
	}
	return c.Status(fiber.StatusOK).Send(raw)
}
