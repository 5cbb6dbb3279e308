package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/metrics"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/model"
)

// AcceptancePolicy decides whether a validation request is accepted.
// Returning an error answers the callback with ResultOtherError.
type AcceptancePolicy func(ctx context.Context, tx C2BTransaction) (bool, error)

// AcceptAll accepts every transaction.
func AcceptAll(context.Context, C2BTransaction) (bool, error) { return true, nil }

// EventPublisher receives normalized C2B callbacks.
type EventPublisher interface {
	PublishC2BEvent(ctx context.Context, evt model.C2BEvent) error
}

// DefaultPublishTimeout bounds how long a callback waits on event publishing.
const DefaultPublishTimeout = 2 * time.Second

// WebhookHandler answers Daraja C2B validation and confirmation callbacks.
//
// Daraja treats any non-200 answer as a delivery failure and keeps retrying,
// so both endpoints answer 200 no matter what happens internally.
type WebhookHandler struct {
	logger         *zap.Logger
	policy         AcceptancePolicy
	publisher      EventPublisher
	publishTimeout time.Duration
	now            func() time.Time
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithPublishTimeout sets the deadline given to each event publish.
// Non-positive values keep DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) WebhookOption {
	return func(h *WebhookHandler) {
		if d > 0 {
			h.publishTimeout = d
		}
	}
}

// NewWebhookHandler creates a new WebhookHandler. A nil policy accepts all
// transactions; a nil publisher disables event publishing.
func NewWebhookHandler(logger *zap.Logger, policy AcceptancePolicy, publisher EventPublisher, opts ...WebhookOption) *WebhookHandler {
	if policy == nil {
		policy = AcceptAll
	}
	h := &WebhookHandler{
		logger:         logger,
		policy:         policy,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleValidation processes validation callbacks.
// POST /api/c2b/validation
func (h *WebhookHandler) HandleValidation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	evt, resp, ok := h.validate(ctx, c.Body())
	metrics.IncC2BCallback(callbackKindValidate, resp.ResultCode)
	if ok {
		h.publish(ctx, evt)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleConfirmation processes confirmation callbacks.
// POST /api/c2b/confirmation
func (h *WebhookHandler) HandleConfirmation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if evt, ok := h.confirm(c.Body()); ok {
		h.publish(ctx, evt)
	}
	metrics.IncC2BCallback(callbackKindConfirm, "0")
	return c.Status(fiber.StatusOK).JSON(ConfirmationResponse{
		ResultCode: confirmationResultOK,
		ResultDesc: resultDescConfirmed,
	})
}

// validate decides the answer to a validation callback. ok reports whether
// the payload parsed and a decision was reached; evt is then the event to publish.
func (h *WebhookHandler) validate(ctx context.Context, body []byte) (evt model.C2BEvent, resp ValidationResponse, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("c2b.validation.panic", zap.Any("panic", r))
			resp = ValidationResponse{ResultCode: ResultOtherError, ResultDesc: resultDescRejected}
			ok = false
		}
	}()

	tx, err := h.decodeTransaction(callbackKindValidate, body)
	if err != nil {
		h.logger.Warn("c2b.validation.parse_error",
			zap.Error(err),
			zap.String("body", string(body)))
		return evt, ValidationResponse{ResultCode: ResultOtherError, ResultDesc: resultDescRejected}, false
	}

	h.logger.Info("c2b.validation.received",
		zap.String("trans_id", tx.TransID.String()),
		zap.String("trans_type", tx.TransactionType.String()),
		zap.String("amount", tx.TransAmount.String()),
		zap.String("short_code", tx.BusinessShortCode.String()),
		zap.String("bill_ref", tx.BillRefNumber.String()))

	accepted, err := h.policy(ctx, tx)
	switch {
	case err != nil:
		h.logger.Error("c2b.validation.policy_failed",
			zap.String("trans_id", tx.TransID.String()),
			zap.Error(err))
		resp = ValidationResponse{ResultCode: ResultOtherError, ResultDesc: resultDescRejected}
	case accepted:
		resp = ValidationResponse{ResultCode: ResultAccepted, ResultDesc: resultDescAccepted}
	default:
		h.logger.Info("c2b.validation.rejected",
			zap.String("trans_id", tx.TransID.String()),
			zap.String("bill_ref", tx.BillRefNumber.String()))
		resp = ValidationResponse{ResultCode: ResultInvalidAccount, ResultDesc: resultDescRejected}
	}
	return ToC2BEvent(callbackKindValidate, tx, resp.ResultCode, h.now()), resp, true
}

// confirm records a confirmation callback. ok is false when the body is not JSON.
func (h *WebhookHandler) confirm(body []byte) (evt model.C2BEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("c2b.confirmation.panic", zap.Any("panic", r))
			ok = false
		}
	}()

	tx, err := h.decodeTransaction(callbackKindConfirm, body)
	if err != nil {
		h.logger.Error("c2b.confirmation.parse_error",
			zap.Error(err),
			zap.String("body", string(body)))
		return evt, false
	}

	h.logger.Info("c2b.confirmation.received",
		zap.String("trans_id", tx.TransID.String()),
		zap.String("trans_type", tx.TransactionType.String()),
		zap.String("trans_time", tx.TransTime.String()),
		zap.String("amount", tx.TransAmount.String()),
		zap.String("short_code", tx.BusinessShortCode.String()),
		zap.String("bill_ref", tx.BillRefNumber.String()),
		zap.String("org_balance", tx.OrgAccountBalance.String()))
	return ToC2BEvent(callbackKindConfirm, tx, "0", h.now()), true
}

// publish hands the event to the publisher under its own deadline.
// Failures and panics are logged; they never change the callback answer.
func (h *WebhookHandler) publish(ctx context.Context, evt model.C2BEvent) {
	if h.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("c2b.publish_panic",
				zap.String("kind", evt.Kind),
				zap.String("trans_id", evt.TransID),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()
	if err := h.publisher.PublishC2BEvent(ctx, evt); err != nil {
		h.logger.Warn("c2b.publish_failed",
			zap.String("kind", evt.Kind),
			zap.String("trans_id", evt.TransID),
			zap.Error(err))
	}
}

// decodeTransaction parses a callback body field by field. Only bytes that are
// not JSON fail; an empty body or a non-object document is an empty
// transaction, and fields of an unexpected shape are skipped.
func (h *WebhookHandler) decodeTransaction(kind string, body []byte) (C2BTransaction, error) {
	var tx C2BTransaction
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return tx, nil
	}
	if !json.Valid(body) {
		return tx, errors.New("decode c2b payload: invalid json")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		h.logger.Warn("c2b.payload_not_object", zap.String("kind", kind))
		return tx, nil
	}
	for name, dst := range tx.fields() {
		v, present := raw[name]
		if !present {
			continue
		}
		if err := dst.UnmarshalJSON(v); err != nil {
			h.logger.Warn("c2b.payload_field_skipped",
				zap.String("kind", kind),
				zap.String("field", name),
				zap.Error(err))
		}
	}
	return tx, nil
}
