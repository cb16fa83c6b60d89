// Package handover moves livechat rooms from the bot to human departments.
package handover

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/flowbridge/internal/hooks"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// Assigner reassigns a room to a department.
type Assigner interface {
	AssignDepartment(ctx context.Context, roomID, visitorToken, department string) error
}

// Dispatcher performs a handover: the store assignment is required, the
// broker event and hook are best effort.
type Dispatcher struct {
	rooms      Assigner
	publisher  Publisher // nil when no broker is configured
	routingKey string
	hooks      *hooks.Manager
	now        func() time.Time
	log        *logging.Logger
}

// NewDispatcher creates a dispatcher. publisher and hooks may be nil.
func NewDispatcher(rooms Assigner, publisher Publisher, routingKey string, hookMgr *hooks.Manager, log *logging.Logger) *Dispatcher {
	if routingKey == "" {
		routingKey = EventType
	}
	return &Dispatcher{
		rooms:      rooms,
		publisher:  publisher,
		routingKey: routingKey,
		hooks:      hookMgr,
		now:        time.Now,
		log:        log.Sub("handover"),
	}
}

// PerformHandover implements domain.Handover.
func (d *Dispatcher) PerformHandover(ctx context.Context, roomID, visitorToken, department string) error {
	if err := d.rooms.AssignDepartment(ctx, roomID, visitorToken, department); err != nil {
		return fmt.Errorf("assigning room %s to %q: %w", roomID, department, err)
	}

	ev := Event{
		RoomID:       roomID,
		VisitorToken: visitorToken,
		Department:   department,
		RequestedAt:  d.now().UTC(),
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, d.routingKey, newEnvelope(ctx, ev)); err != nil {
			d.log.Error().Err(err).Str("roomId", roomID).Msg("publishing handover event")
		}
	}

	if d.hooks != nil {
		d.hooks.EmitAsync(ctx, hooks.EventHandover, map[string]any{
			"roomId":       roomID,
			"visitorToken": visitorToken,
			"department":   department,
		})
	}

	d.log.Info().Str("roomId", roomID).Str("department", department).Msg("room handed over")
	return nil
}

// Close releases the publisher.
func (d *Dispatcher) Close() error {
	if d.publisher == nil {
		return nil
	}
	return d.publisher.Close()
}
