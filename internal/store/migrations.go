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
		Name:    "create sessions and turns",
		SQL: `
			CREATE TABLE sessions (
				channel_id         TEXT PRIMARY KEY,
				id                 TEXT NOT NULL UNIQUE,
				system_instruction TEXT NOT NULL,
				tools              TEXT NOT NULL DEFAULT '[]',
				created_at         TEXT NOT NULL,
				updated_at         TEXT NOT NULL
			);

			CREATE TABLE turns (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role       TEXT NOT NULL CHECK (role IN ('user', 'model')),
				text       TEXT NOT NULL,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_turns_session ON turns (session_id, id);
		`,
	},
}
