package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// Store is the full persistence surface of the bridge.
type Store interface {
	domain.RoomStore
	domain.AtomicRoomFields
	domain.VisitorDirectory
	domain.MessageSink

	// SaveRoom upserts a room. Existing custom fields are kept; fields in
	// room.CustomFields are only added when absent.
	SaveRoom(ctx context.Context, room *domain.Room) error
	// SaveVisitor upserts a visitor. Custom fields are written without overwrite.
	SaveVisitor(ctx context.Context, v *domain.Visitor) error
	// AssignDepartment hands a room to a department and records the handover.
	AssignDepartment(ctx context.Context, roomID, visitorToken, department string) error
	ListHandovers(ctx context.Context, roomID string) ([]HandoverRecord, error)
	ListMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	Close() error
}

// HandoverRecord is one entry in a room's handover log.
type HandoverRecord struct {
	RoomID       string    `json:"roomId"`
	VisitorToken string    `json:"visitorToken,omitempty"`
	Department   string    `json:"department"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OpenStore opens the configured backend. path is ignored by the memory driver.
func OpenStore(driver, path string, log *logging.Logger) (Store, error) {
	switch driver {
	case "", "sqlite":
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db), nil
	case "memory":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
