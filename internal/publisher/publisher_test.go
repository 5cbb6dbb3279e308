package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/logger"
	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/model"
)

// mockJetStream records published messages and stream calls.
type mockJetStream struct {
	published  []*nats.Msg
	pubOpts    [][]nats.PubOpt
	fail       bool
	streams    map[string]*nats.StreamConfig
	infoErr    error
	addedCalls int
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	m.pubOpts = append(m.pubOpts, opts)
	return &nats.PubAck{Stream: "MPESA_EVENTS"}, nil
}

func (m *mockJetStream) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	cfg, ok := m.streams[stream]
	if !ok {
		return nil, nats.ErrStreamNotFound
	}
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (m *mockJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	m.addedCalls++
	if m.streams == nil {
		m.streams = map[string]*nats.StreamConfig{}
	}
	m.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func newTestPublisher(js *mockJetStream) *Publisher {
	return &Publisher{
		js:      js,
		service: "mpesa-adapter",
		now:     func() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC) },
	}
}

func sampleEvent() model.C2BEvent {
	return model.C2BEvent{
		Kind:          "confirmation",
		TransID:       "RKTQDM7W6S",
		Amount:        decimal.RequireFromString("10.00"),
		ShortCode:     "600638",
		BillRefNumber: "invoice008",
		ResultCode:    "0",
		ReceivedAt:    time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "evt.c2b.confirmation.v1", Subject("confirmation"))
	assert.Equal(t, "evt.c2b.validation.v1", Subject("validation"))
}

func TestPublishC2BEvent_Success(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	err := p.PublishC2BEvent(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.c2b.confirmation.v1", msg.Subject)
	assert.Equal(t, "c2b.confirmation", msg.Header.Get("event_type"))
	assert.Equal(t, "mpesa-adapter", msg.Header.Get("service"))
	assert.Equal(t, "application/json", msg.Header.Get("content_type"))
	assert.NotEmpty(t, msg.Header.Get("correlation_id"))
	assert.Len(t, js.pubOpts[0], 1, "message id option expected")

	var env model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, "evt.c2b.confirmation.v1", env.Topic)
	assert.Equal(t, "1.0.0", env.Version)
	assert.Equal(t, time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), env.Timestamp)

	var evt model.C2BEvent
	require.NoError(t, json.Unmarshal(env.Payload, &evt))
	assert.Equal(t, "RKTQDM7W6S", evt.TransID)
	assert.True(t, decimal.RequireFromString("10").Equal(evt.Amount))
}

func TestPublishC2BEvent_NoTransIDSkipsMsgID(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	evt := sampleEvent()
	evt.TransID = ""
	require.NoError(t, p.PublishC2BEvent(context.Background(), evt))
	assert.Empty(t, js.pubOpts[0])
}

func TestPublishC2BEvent_DeadlineBoundsAck(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.PublishC2BEvent(ctx, sampleEvent()))
	assert.Len(t, js.pubOpts[0], 2, "message id and context options expected")

	evt := sampleEvent()
	evt.TransID = ""
	require.NoError(t, p.PublishC2BEvent(ctx, evt))
	assert.Len(t, js.pubOpts[1], 1, "context option expected")
}

func TestPublishC2BEvent_ExpiredDeadline(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	err := p.PublishC2BEvent(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, js.published)
}

func TestPublishC2BEvent_Failure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	js := &mockJetStream{fail: true}
	p := newTestPublisher(js)

	err := p.PublishC2BEvent(context.Background(), sampleEvent())
	assert.Error(t, err)
	assert.Empty(t, js.published)

	failed := logs.FilterMessage("publisher.publish_failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "publisher", failed[0].ContextMap()["component"])
	assert.Equal(t, "evt.c2b.confirmation.v1", failed[0].ContextMap()["subject"])
}

func TestPublishC2BEvent_CancelledContext(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.PublishC2BEvent(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, js.published)
}

func TestEnsureStream_CreatesWhenMissing(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	require.NoError(t, p.EnsureStream("MPESA_EVENTS"))
	assert.Equal(t, 1, js.addedCalls)
	assert.Equal(t, []string{"evt.c2b.>"}, js.streams["MPESA_EVENTS"].Subjects)

	require.NoError(t, p.EnsureStream("MPESA_EVENTS"))
	assert.Equal(t, 1, js.addedCalls, "existing stream must not be re-added")
}

func TestEnsureStream_InfoError(t *testing.T) {
	js := &mockJetStream{infoErr: errors.New("jetstream not enabled")}
	p := newTestPublisher(js)

	err := p.EnsureStream("MPESA_EVENTS")
	require.Error(t, err)
	assert.Equal(t, 0, js.addedCalls)
}

func TestClose_NilConn(t *testing.T) {
	p := newTestPublisher(&mockJetStream{})
	assert.NotPanics(t, p.Close)
}
