package db

// GetSchemaSQL returns the authoritative schema. Tests load it through this
// function so test schemas cannot drift from production.
func GetSchemaSQL() string {
	return schemaSQL
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_history (
    id            TEXT PRIMARY KEY,
    thread_key    TEXT NOT NULL,
    description   TEXT NOT NULL,
    status        TEXT NOT NULL,
    branch_name   TEXT NOT NULL DEFAULT '',
    pr_url        TEXT NOT NULL DEFAULT '',
    preview_url   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    files_changed INTEGER NOT NULL DEFAULT 0,
    retries       INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_job_history_thread ON job_history(thread_key);
CREATE INDEX IF NOT EXISTS idx_job_history_created ON job_history(created_at);
`
