package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/adapters/mpesa-adapter/internal/metrics"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/logger"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/model"
)

const (
	// SubjectPrefix is the root of every C2B subject, e.g. "evt.c2b.confirmation.v1".
	SubjectPrefix = "evt.c2b"
	eventVersion  = "1.0.0"
)

// jetStream is the subset of nats.JetStreamContext the publisher calls.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher wraps a NATS connection and publishes canonical C2B events.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	service string
	now     func() time.Time
}

// New creates a new Publisher with JetStream enabled.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
		now:     time.Now,
	}, nil
}

// EnsureStream creates the stream capturing all C2B subjects if it does not exist.
func (p *Publisher) EnsureStream(name string) error {
	_, err := p.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	logger.Component("publisher").Infow("publisher.stream_created", "stream", name)
	return nil
}

// Subject returns the subject for a callback kind.
func Subject(kind string) string {
	return fmt.Sprintf("%s.%s.v1", SubjectPrefix, kind)
}

// PublishC2BEvent wraps evt in an Envelope and publishes it on its kind's subject.
func (p *Publisher) PublishC2BEvent(ctx context.Context, evt model.C2BEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal c2b event: %w", err)
	}

	subject := Subject(evt.Kind)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         subject,
		EventType:     "c2b." + evt.Kind,
		Version:       eventVersion,
		Timestamp:     p.now().UTC(),
		Payload:       payload,
	}
	return p.PublishEnvelope(ctx, subject, env, evt.TransID)
}

// PublishEnvelope serializes and publishes an event envelope. A non-empty
// msgID is set as Nats-Msg-Id so Daraja redeliveries are deduplicated.
// A ctx deadline bounds the wait for the JetStream ack; without one the
// connection's default ack timeout applies.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope, msgID string) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Component("publisher").Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var opts []nats.PubOpt
	if msgID != "" {
		opts = append(opts, nats.MsgId(env.EventType+":"+msgID))
	}
	// nats.Context without a deadline would wait on the ack indefinitely.
	if _, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Context(ctx))
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, opts...)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.Component("publisher").Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.Component("publisher").Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Close drains and closes the underlying connection.
func (p *Publisher) Close() {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
