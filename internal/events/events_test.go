package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warnet/backend/internal/events"
	"warnet/backend/internal/lib/sl"
)

type message struct {
	routingKey string
	payload    []byte
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{routingKey: routingKey, payload: payload})
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestEmitterPublishesEncodedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := events.NewEmitter(pub, sl.Discard(), nil)

	event := emitter.Emit(context.Background(), events.SessionExtended, "s1", map[string]int{"minutes": 30})
	assert.NotEmpty(t, event.ID)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "session.extended", pub.messages[0].routingKey)

	var decoded struct {
		ID        string         `json:"id"`
		Type      string         `json:"type"`
		SessionID string         `json:"sessionId"`
		Data      map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "session.extended", decoded.Type)
	assert.Equal(t, "s1", decoded.SessionID)
	assert.Equal(t, 30, decoded.Data["minutes"])
}

func TestEmitterSwallowsPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	var failed []events.Type
	emitter := events.NewEmitter(pub, sl.Discard(), func(typ events.Type) {
		failed = append(failed, typ)
	})

	emitter.Emit(context.Background(), events.PaymentRecorded, "s1", nil)
	assert.Equal(t, []events.Type{events.PaymentRecorded}, failed)
}

func TestBreakerPublisherOpens(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	var states []string
	breaker := events.NewBreakerPublisher(pub, events.BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 2,
	}, sl.Discard(), func(to string) { states = append(states, to) })

	ctx := context.Background()
	assert.Error(t, breaker.Publish(ctx, "k", nil))
	assert.Error(t, breaker.Publish(ctx, "k", nil))
	assert.Equal(t, "open", breaker.State())
	assert.Equal(t, []string{"open"}, states)

	pub.err = nil
	assert.ErrorIs(t, breaker.Publish(ctx, "k", nil), gobreaker.ErrOpenState)
	assert.Empty(t, pub.messages)

	require.NoError(t, breaker.Close())
	assert.True(t, pub.closed)
}

func TestNoopPublisher(t *testing.T) {
	pub := events.NewNoopPublisher(sl.Discard())
	assert.NoError(t, pub.Publish(context.Background(), "k", []byte("{}")))
	assert.NoError(t, pub.Close())
}
