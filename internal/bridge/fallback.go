package bridge

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// FallbackTracker keeps the per-room count of consecutive fallback replies.
type FallbackTracker struct {
	rooms  domain.RoomStore
	atomic domain.AtomicRoomFields // nil when the store has no atomic ops
	limit  int
	log    *logging.Logger
}

// NewFallbackTracker creates a tracker escalating after limit consecutive
// fallbacks. A limit of 0 disables escalation.
func NewFallbackTracker(rooms domain.RoomStore, limit int, log *logging.Logger) *FallbackTracker {
	f := &FallbackTracker{rooms: rooms, limit: limit, log: log.Sub("fallback")}
	if a, ok := rooms.(domain.AtomicRoomFields); ok {
		f.atomic = a
	}
	return f
}

// Limit returns the escalation threshold.
func (f *FallbackTracker) Limit() int { return f.limit }

// OnReply updates the streak from a reply and returns the new value.
func (f *FallbackTracker) OnReply(ctx context.Context, sessionID string, isFallback bool) (int, error) {
	if isFallback {
		return f.OnFallback(ctx, sessionID)
	}
	return 0, f.OnSuccess(ctx, sessionID)
}

// OnFallback increments the streak.
func (f *FallbackTracker) OnFallback(ctx context.Context, sessionID string) (int, error) {
	if f.atomic != nil {
		n, err := f.atomic.IncrementCustomField(ctx, sessionID, domain.FieldFallbackStreak)
		if err != nil {
			return 0, err
		}
		f.log.Debug().Str("sessionId", sessionID).Int("streak", n).Msg("fallback")
		return n, nil
	}

	n, err := f.Streak(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n++
	if err := f.rooms.UpdateRoomCustomFields(ctx, sessionID, map[string]any{domain.FieldFallbackStreak: n}); err != nil {
		return 0, err
	}
	f.log.Debug().Str("sessionId", sessionID).Int("streak", n).Msg("fallback")
	return n, nil
}

// OnSuccess resets the streak to zero.
func (f *FallbackTracker) OnSuccess(ctx context.Context, sessionID string) error {
	n, err := f.Streak(ctx, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return f.rooms.UpdateRoomCustomFields(ctx, sessionID, map[string]any{domain.FieldFallbackStreak: 0})
}

// Streak returns the persisted counter.
func (f *FallbackTracker) Streak(ctx context.Context, sessionID string) (int, error) {
	room, err := f.rooms.GetRoomByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return streakValue(room.Field(domain.FieldFallbackStreak)), nil
}

// ShouldEscalate reports whether the streak reached the limit.
func (f *FallbackTracker) ShouldEscalate(ctx context.Context, sessionID string) (bool, error) {
	if f.limit <= 0 {
		return false, nil
	}
	n, err := f.Streak(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return n >= f.limit, nil
}

func streakValue(v any) int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n = int(i)
		}
	case string:
		n, _ = strconv.Atoi(x)
	}
	return max(n, 0)
}
