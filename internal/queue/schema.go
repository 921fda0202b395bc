package queue

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS publish_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    brand TEXT NOT NULL,
    title TEXT NOT NULL,
    slug TEXT NOT NULL,
    short_description TEXT,
    long_description TEXT,
    publish_at TEXT,
    video_file TEXT,
    thumbnail_file TEXT,
    status TEXT NOT NULL,
    failed_from TEXT,
    record_id INTEGER NOT NULL DEFAULT 0,
    cdn_video_id TEXT,
    cdn_library_id INTEGER NOT NULL DEFAULT 0,
    session_json TEXT,
    thumbnail_url TEXT,
    error_message TEXT,
    needs_review INTEGER NOT NULL DEFAULT 0,
    review_reason TEXT,
    progress_step TEXT,
    progress_percent REAL NOT NULL DEFAULT 0,
    progress_message TEXT,
    progress_bytes INTEGER NOT NULL DEFAULT 0,
    total_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_heartbeat TEXT
);

CREATE INDEX IF NOT EXISTS idx_publish_jobs_status ON publish_jobs(status);
CREATE INDEX IF NOT EXISTS idx_publish_jobs_created_at ON publish_jobs(created_at);
`

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}
