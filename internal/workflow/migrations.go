package workflow

// migrations is the ordered list of SQL migration statements for the journal.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		params TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs(status)`,
	`CREATE TABLE IF NOT EXISTS workflow_steps (
		run_id TEXT NOT NULL,
		step TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		finished_at DATETIME,
		PRIMARY KEY (run_id, step)
	)`,
}
