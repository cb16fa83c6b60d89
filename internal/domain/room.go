package domain

import "time"

// RoomType classifies where a conversation happens.
type RoomType string

const (
	RoomTypeLivechat RoomType = "livechat"
	RoomTypeDirect   RoomType = "direct"
	RoomTypeChannel  RoomType = "channel"
)

// Custom fields the bridge keeps on a room.
const (
	FieldNotFirstMessage = "isNotFirstMessage"
	FieldFallbackStreak  = "fallbackStreak"
)

// Room is a livechat conversation. Its ID doubles as the agent session id.
type Room struct {
	ID           string         `json:"id"`
	Type         RoomType       `json:"type"`
	IsOpen       bool           `json:"isOpen"`
	ServedBy     string         `json:"servedBy,omitempty"` // username of the serving agent
	VisitorToken string         `json:"visitorToken,omitempty"`
	Department   string         `json:"department,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Field returns a custom field value, or nil when the room has none.
func (r *Room) Field(key string) any {
	if r == nil || r.CustomFields == nil {
		return nil
	}
	return r.CustomFields[key]
}

// NotFirstMessage reports whether the bootstrap turn already happened.
func (r *Room) NotFirstMessage() bool {
	v, _ := r.Field(FieldNotFirstMessage).(bool)
	return v
}

// Visitor is the anonymous end user on the other side of a livechat room.
type Visitor struct {
	Token        string         `json:"token"`
	Name         string         `json:"name,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// HasField reports whether the visitor profile defines key.
func (v *Visitor) HasField(key string) bool {
	if v == nil || v.CustomFields == nil {
		return false
	}
	_, ok := v.CustomFields[key]
	return ok
}
