package handover

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/flowbridge/internal/version"
)

// EventType names the handover event on the broker.
const EventType = "livechat.handover.v1"

// Meta describes an emitted event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps event data for publishing.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Event is the payload of a handover envelope.
type Event struct {
	RoomID       string    `json:"room_id"`
	VisitorToken string    `json:"visitor_token,omitempty"`
	Department   string    `json:"department"`
	RequestedAt  time.Time `json:"requested_at"`
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that published envelopes carry.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

func newEnvelope(ctx context.Context, ev Event) Envelope {
	producer := version.UserAgent()
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &producer,
		Time:     ev.RequestedAt,
		Type:     EventType,
	}
	if id, ok := CorrelationID(ctx); ok {
		meta.CorrelationID = &id
	}
	return Envelope{Meta: meta, Data: ev}
}
