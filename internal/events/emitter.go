// Package events publishes session lifecycle events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warnet/backend/internal/lib/sl"
)

type Type string

const (
	SessionAdded         Type = "session.added"
	SessionExtended      Type = "session.extended"
	SessionCompleted     Type = "session.completed"
	SessionRemoved       Type = "session.removed"
	SessionExpired       Type = "session.expired"
	PaymentRecorded      Type = "payment.recorded"
	TransactionFinalized Type = "transaction.finalized"
	HistoryDeleted       Type = "history.deleted"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	SessionID  string    `json:"sessionId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// Emitter encodes events and hands them to a Publisher. Publish failures are
// logged and never returned to the caller.
type Emitter struct {
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
	onFailure func(Type)
}

func NewEmitter(publisher Publisher, log *slog.Logger, onFailure func(Type)) *Emitter {
	return &Emitter{
		publisher: publisher,
		log:       log,
		now:       time.Now,
		onFailure: onFailure,
	}
}

func (e *Emitter) Emit(ctx context.Context, eventType Type, sessionID string, data any) Event {
	const op = "events.Emit"

	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		SessionID:  sessionID,
		OccurredAt: e.now().UTC(),
		Data:       data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.fail(op, event, err)
		return event
	}
	if err := e.publisher.Publish(ctx, string(eventType), payload); err != nil {
		e.fail(op, event, err)
	}
	return event
}

func (e *Emitter) fail(op string, event Event, err error) {
	e.log.Warn("failed to publish event",
		slog.String("op", op),
		slog.String("type", string(event.Type)),
		slog.String("event_id", event.ID),
		sl.Err(err),
	)
	if e.onFailure != nil {
		e.onFailure(event.Type)
	}
}
