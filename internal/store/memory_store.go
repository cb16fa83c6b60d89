package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/flowbridge/internal/domain"
)

// MemStore is an in-process Store for tests and the "memory" driver.
// Returned rooms and visitors are copies.
type MemStore struct {
	mu        sync.Mutex
	rooms     map[string]*domain.Room
	visitors  map[string]*domain.Visitor
	messages  map[string][]domain.Message
	handovers map[string][]HandoverRecord
	now       func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rooms:     make(map[string]*domain.Room),
		visitors:  make(map[string]*domain.Visitor),
		messages:  make(map[string][]domain.Message),
		handovers: make(map[string][]HandoverRecord),
		now:       time.Now,
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) GetRoomByID(_ context.Context, id string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return copyRoom(r), nil
}

func (m *MemStore) SaveRoom(_ context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := map[string]any{}
	if existing, ok := m.rooms[room.ID]; ok {
		fields = existing.CustomFields
	}
	mergeAbsent(fields, room.CustomFields)

	saved := copyRoom(room)
	saved.CustomFields = cloneFields(fields)
	saved.UpdatedAt = m.now()
	m.rooms[room.ID] = saved
	return nil
}

func (m *MemStore) UpdateRoomCustomFields(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for k, v := range patch {
		r.CustomFields[k] = v
	}
	r.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SetCustomFieldOnce(_ context.Context, id, key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if _, set := r.CustomFields[key]; set {
		return false, nil
	}
	r.CustomFields[key] = value
	r.UpdatedAt = m.now()
	return true, nil
}

func (m *MemStore) IncrementCustomField(_ context.Context, id, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	next := intValue(r.CustomFields[key]) + 1
	r.CustomFields[key] = next
	r.UpdatedAt = m.now()
	return next, nil
}

func (m *MemStore) AssignDepartment(_ context.Context, roomID, visitorToken, department string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.Department = department
	r.ServedBy = ""
	r.UpdatedAt = m.now()
	m.handovers[roomID] = append(m.handovers[roomID], HandoverRecord{
		RoomID:       roomID,
		VisitorToken: visitorToken,
		Department:   department,
		CreatedAt:    m.now(),
	})
	return nil
}

func (m *MemStore) ListHandovers(_ context.Context, roomID string) ([]HandoverRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.handovers[roomID]), nil
}

func (m *MemStore) GetVisitorByToken(_ context.Context, token string) (*domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[token]
	if !ok {
		return nil, domain.ErrVisitorNotFound
	}
	return copyVisitor(v), nil
}

func (m *MemStore) SaveVisitor(_ context.Context, v *domain.Visitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := copyVisitor(v)
	if existing, ok := m.visitors[v.Token]; ok {
		fields := existing.CustomFields
		mergeAbsent(fields, v.CustomFields)
		saved.CustomFields = cloneFields(fields)
		if saved.Name == "" {
			saved.Name = existing.Name
		}
	}
	saved.UpdatedAt = m.now()
	m.visitors[v.Token] = saved
	return nil
}

func (m *MemStore) SetCustomField(_ context.Context, token, key, value string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[token]
	if !ok {
		return domain.ErrVisitorNotFound
	}
	if _, set := v.CustomFields[key]; set && !overwrite {
		return nil
	}
	v.CustomFields[key] = value
	v.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) CreateMessage(_ context.Context, roomID string, msg domain.OutgoingMessage) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return domain.Message{}, domain.ErrSessionNotFound
	}
	out := domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Options:   slices.Clone(msg.Options),
		CreatedAt: m.now(),
	}
	m.messages[roomID] = append(m.messages[roomID], out)
	return out, nil
}

func (m *MemStore) ListMessages(_ context.Context, roomID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages[roomID]), nil
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	c.CustomFields = cloneFields(r.CustomFields)
	return &c
}

func copyVisitor(v *domain.Visitor) *domain.Visitor {
	c := *v
	c.CustomFields = cloneFields(v.CustomFields)
	return &c
}
