package domain

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned when no room exists for a session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVisitorNotFound is returned when no visitor matches a token.
	ErrVisitorNotFound = errors.New("visitor not found")
)

// RoomStore reads and patches rooms.
type RoomStore interface {
	GetRoomByID(ctx context.Context, id string) (*Room, error)
	UpdateRoomCustomFields(ctx context.Context, id string, patch map[string]any) error
}

// AtomicRoomFields is implemented by stores that can mutate a single
// custom field without a read-modify-write race.
type AtomicRoomFields interface {
	// SetCustomFieldOnce stores value under key unless the key is already
	// set. It reports whether this call did the write.
	SetCustomFieldOnce(ctx context.Context, id, key string, value any) (bool, error)
	// IncrementCustomField adds one to a numeric field and returns the new value.
	IncrementCustomField(ctx context.Context, id, key string) (int, error)
}

// VisitorDirectory looks up visitors and writes their custom fields.
type VisitorDirectory interface {
	GetVisitorByToken(ctx context.Context, token string) (*Visitor, error)
	SetCustomField(ctx context.Context, token, key, value string, overwrite bool) error
}

// MessageSink posts messages into rooms.
type MessageSink interface {
	CreateMessage(ctx context.Context, roomID string, msg OutgoingMessage) (Message, error)
}

// Handover moves a room from the bot to a human department.
type Handover interface {
	PerformHandover(ctx context.Context, roomID, visitorToken, department string) error
}
