package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create rooms, visitors and messages",
		SQL: `
			CREATE TABLE rooms (
				id             TEXT PRIMARY KEY,
				type           TEXT NOT NULL,
				is_open        INTEGER NOT NULL DEFAULT 1,
				served_by      TEXT NOT NULL DEFAULT '',
				visitor_token  TEXT NOT NULL DEFAULT '',
				department     TEXT NOT NULL DEFAULT '',
				custom_fields  TEXT NOT NULL DEFAULT '{}',
				updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_rooms_visitor ON rooms (visitor_token);

			CREATE TABLE visitors (
				token          TEXT PRIMARY KEY,
				name           TEXT NOT NULL DEFAULT '',
				custom_fields  TEXT NOT NULL DEFAULT '{}',
				updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE messages (
				id          TEXT PRIMARY KEY,
				room_id     TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
				sender      TEXT NOT NULL,
				text        TEXT NOT NULL,
				options     TEXT,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_room ON messages (room_id);
		`,
	},
	{
		Version: 2,
		Name:    "create handover log",
		SQL: `
			CREATE TABLE handovers (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				room_id        TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
				visitor_token  TEXT NOT NULL DEFAULT '',
				department     TEXT NOT NULL DEFAULT '',
				created_at     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_handovers_room ON handovers (room_id, id);
		`,
	},
}
