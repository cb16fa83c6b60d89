package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/flowbridge/internal/domain"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteStore creates a store using the given database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- rooms ---

// GetRoomByID returns the room or domain.ErrSessionNotFound.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*domain.Room, error) {
	return s.getRoom(ctx, s.db.sql, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getRoom(ctx context.Context, q queryer, id string) (*domain.Room, error) {
	var (
		room      domain.Room
		roomType  string
		isOpen    int
		fields    string
		updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, type, is_open, served_by, visitor_token, department, custom_fields, updated_at
		 FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &roomType, &isOpen, &room.ServedBy, &room.VisitorToken, &room.Department, &fields, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", id, err)
	}

	room.Type = domain.RoomType(roomType)
	room.IsOpen = isOpen != 0
	if room.CustomFields, err = decodeFields(fields); err != nil {
		return nil, fmt.Errorf("loading room %s: %w", id, err)
	}
	room.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return &room, nil
}

// SaveRoom upserts a room, keeping custom fields already stored.
func (s *SQLiteStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		fields := map[string]any{}
		existing, err := s.getRoom(ctx, tx, room.ID)
		switch {
		case err == nil:
			fields = existing.CustomFields
		case !errors.Is(err, domain.ErrSessionNotFound):
			return err
		}
		mergeAbsent(fields, room.CustomFields)

		encoded, err := encodeFields(fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rooms (id, type, is_open, served_by, visitor_token, department, custom_fields, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   type = excluded.type,
			   is_open = excluded.is_open,
			   served_by = excluded.served_by,
			   visitor_token = excluded.visitor_token,
			   department = excluded.department,
			   custom_fields = excluded.custom_fields,
			   updated_at = excluded.updated_at`,
			room.ID, string(room.Type), boolInt(room.IsOpen), room.ServedBy, room.VisitorToken,
			room.Department, encoded, s.timestamp(),
		)
		return err
	})
}

// UpdateRoomCustomFields merges patch into the room's custom fields.
func (s *SQLiteStore) UpdateRoomCustomFields(ctx context.Context, id string, patch map[string]any) error {
	return s.mutateFields(ctx, id, func(fields map[string]any) (bool, error) {
		for k, v := range patch {
			fields[k] = v
		}
		return true, nil
	})
}

// SetCustomFieldOnce writes key only when it is not set yet.
func (s *SQLiteStore) SetCustomFieldOnce(ctx context.Context, id, key string, value any) (bool, error) {
	written := false
	err := s.mutateFields(ctx, id, func(fields map[string]any) (bool, error) {
		if _, ok := fields[key]; ok {
			return false, nil
		}
		fields[key] = value
		written = true
		return true, nil
	})
	return written, err
}

// IncrementCustomField adds one to a counter field and returns the new value.
func (s *SQLiteStore) IncrementCustomField(ctx context.Context, id, key string) (int, error) {
	var next int
	err := s.mutateFields(ctx, id, func(fields map[string]any) (bool, error) {
		next = intValue(fields[key]) + 1
		fields[key] = next
		return true, nil
	})
	return next, err
}

// mutateFields runs fn on a room's custom fields inside a transaction and
// stores the result when fn reports a change.
func (s *SQLiteStore) mutateFields(ctx context.Context, id string, fn func(map[string]any) (bool, error)) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		room, err := s.getRoom(ctx, tx, id)
		if err != nil {
			return err
		}
		changed, err := fn(room.CustomFields)
		if err != nil || !changed {
			return err
		}
		encoded, err := encodeFields(room.CustomFields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE rooms SET custom_fields = ?, updated_at = ? WHERE id = ?`,
			encoded, s.timestamp(), id,
		)
		return err
	})
}

// AssignDepartment moves the room to department, releases the bot, and
// appends to the handover log.
func (s *SQLiteStore) AssignDepartment(ctx context.Context, roomID, visitorToken, department string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rooms SET department = ?, served_by = '', updated_at = ? WHERE id = ?`,
			department, s.timestamp(), roomID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrSessionNotFound
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO handovers (room_id, visitor_token, department, created_at) VALUES (?, ?, ?, ?)`,
			roomID, visitorToken, department, s.timestamp(),
		)
		return err
	})
}

// ListHandovers returns a room's handover log, oldest first.
func (s *SQLiteStore) ListHandovers(ctx context.Context, roomID string) ([]HandoverRecord, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT room_id, visitor_token, department, created_at FROM handovers WHERE room_id = ? ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HandoverRecord
	for rows.Next() {
		var rec HandoverRecord
		var ts string
		if err := rows.Scan(&rec.RoomID, &rec.VisitorToken, &rec.Department, &ts); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.DateTime, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- visitors ---

// GetVisitorByToken returns the visitor or domain.ErrVisitorNotFound.
func (s *SQLiteStore) GetVisitorByToken(ctx context.Context, token string) (*domain.Visitor, error) {
	return s.getVisitor(ctx, s.db.sql, token)
}

func (s *SQLiteStore) getVisitor(ctx context.Context, q queryer, token string) (*domain.Visitor, error) {
	var (
		v         domain.Visitor
		fields    string
		updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT token, name, custom_fields, updated_at FROM visitors WHERE token = ?`, token,
	).Scan(&v.Token, &v.Name, &fields, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVisitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading visitor: %w", err)
	}
	if v.CustomFields, err = decodeFields(fields); err != nil {
		return nil, fmt.Errorf("loading visitor: %w", err)
	}
	v.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return &v, nil
}

// SaveVisitor upserts a visitor without overwriting existing custom fields.
func (s *SQLiteStore) SaveVisitor(ctx context.Context, v *domain.Visitor) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		fields := map[string]any{}
		name := v.Name
		existing, err := s.getVisitor(ctx, tx, v.Token)
		switch {
		case err == nil:
			fields = existing.CustomFields
			if name == "" {
				name = existing.Name
			}
		case !errors.Is(err, domain.ErrVisitorNotFound):
			return err
		}
		mergeAbsent(fields, v.CustomFields)

		encoded, err := encodeFields(fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO visitors (token, name, custom_fields, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(token) DO UPDATE SET
			   name = excluded.name,
			   custom_fields = excluded.custom_fields,
			   updated_at = excluded.updated_at`,
			v.Token, name, encoded, s.timestamp(),
		)
		return err
	})
}

// SetCustomField writes one visitor field. Without overwrite an existing
// value is left alone.
func (s *SQLiteStore) SetCustomField(ctx context.Context, token, key, value string, overwrite bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := s.getVisitor(ctx, tx, token)
		if err != nil {
			return err
		}
		if _, ok := v.CustomFields[key]; ok && !overwrite {
			return nil
		}
		v.CustomFields[key] = value

		encoded, err := encodeFields(v.CustomFields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE visitors SET custom_fields = ?, updated_at = ? WHERE token = ?`,
			encoded, s.timestamp(), token,
		)
		return err
	})
}

// --- messages ---

// CreateMessage stores a message in roomID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID string, msg domain.OutgoingMessage) (domain.Message, error) {
	out := domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Options:   msg.Options,
		CreatedAt: s.now(),
	}

	var options sql.NullString
	if len(msg.Options) > 0 {
		data, err := json.Marshal(msg.Options)
		if err != nil {
			return domain.Message{}, fmt.Errorf("encoding options: %w", err)
		}
		options = sql.NullString{String: string(data), Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getRoom(ctx, tx, roomID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, room_id, sender, text, options, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			out.ID, roomID, out.Sender, out.Text, options, out.CreatedAt.Format(time.DateTime),
		)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

// ListMessages returns a room's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, room_id, sender, text, options, created_at FROM messages WHERE room_id = ? ORDER BY rowid`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			options sql.NullString
			ts      string
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Sender, &m.Text, &options, &ts); err != nil {
			return nil, err
		}
		if options.Valid && options.String != "" {
			_ = json.Unmarshal([]byte(options.String), &m.Options)
		}
		m.CreatedAt, _ = time.Parse(time.DateTime, ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- helpers ---

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(time.DateTime)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
