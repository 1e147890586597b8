package memory

// migrations is the ordered list of SQL migration statements.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL,
		dedupe_key TEXT,
		UNIQUE(room_id, seq)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_dedupe
		ON messages(room_id, dedupe_key) WHERE dedupe_key IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS summaries (
		room_id TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}
