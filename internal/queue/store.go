package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vidpress/internal/config"
)

// Store manages publish job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue inserts a validated draft as a pending publish job and returns
// the stored row.
func (s *Store) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO publish_jobs (
            brand, title, slug, short_description, long_description, publish_at,
            video_file, thumbnail_file, status, progress_percent,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Brand,
		job.Title,
		job.Slug,
		nullableString(job.ShortDescription),
		nullableString(job.LongDescription),
		nullableTime(&job.PublishAt),
		nullableString(job.VideoFile),
		nullableString(job.ThumbnailFile),
		StatusPending,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a publish job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM publish_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing publish job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE publish_jobs
         SET brand = ?, title = ?, slug = ?, short_description = ?, long_description = ?,
             publish_at = ?, video_file = ?, thumbnail_file = ?, status = ?, failed_from = ?,
             record_id = ?, cdn_video_id = ?, cdn_library_id = ?, session_json = ?,
             thumbnail_url = ?, error_message = ?, needs_review = ?, review_reason = ?,
             progress_step = ?, progress_percent = ?, progress_message = ?,
             progress_bytes = ?, total_bytes = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.Brand,
		job.Title,
		job.Slug,
		nullableString(job.ShortDescription),
		nullableString(job.LongDescription),
		nullableTime(&job.PublishAt),
		nullableString(job.VideoFile),
		nullableString(job.ThumbnailFile),
		job.Status,
		nullableString(string(job.FailedFrom)),
		job.RecordID,
		nullableString(job.CDNVideoID),
		job.CDNLibraryID,
		nullableString(job.SessionJSON),
		nullableString(job.ThumbnailURL),
		nullableString(job.ErrorMessage),
		boolToInt(job.NeedsReview),
		nullableString(job.ReviewReason),
		nullableString(job.ProgressStep),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.ProgressBytes,
		job.TotalBytes,
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableHeartbeat(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM publish_jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextForStatuses returns the oldest job matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE status IN (` + placeholders + `) ORDER BY created_at, id LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResult(ctx, `UPDATE publish_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing rewinds jobs stuck in a processing status back to
// that step's entry status when heartbeats expire, so a crashed run is
// picked up again without redoing completed steps.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	var reclaimed int64
	for _, step := range Steps() {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE publish_jobs
             SET status = ?, progress_message = 'Reclaimed from stale processing',
                 progress_percent = 0, last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			step.EntryStatus(),
			time.Now().UTC().Format(time.RFC3339Nano),
			step.ProcessingStatus(),
			cutoff.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim stale jobs: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return reclaimed, fmt.Errorf("rows affected: %w", err)
		}
		reclaimed += count
	}
	return reclaimed, nil
}

// RetryFailed moves failed (and reviewed) jobs back to the entry status of
// the step they failed in. Resumption is forward-only: completed steps are
// never re-run. With no ids, all failed jobs are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	var candidates []*Job
	var err error
	if len(ids) == 0 {
		candidates, err = s.List(ctx, StatusFailed, StatusReview)
		if err != nil {
			return 0, err
		}
	} else {
		for _, id := range ids {
			job, err := s.GetByID(ctx, id)
			if err != nil {
				return 0, err
			}
			if job == nil || (job.Status != StatusFailed && job.Status != StatusReview) {
				continue
			}
			candidates = append(candidates, job)
		}
	}

	var retried int64
	for _, job := range candidates {
		job.Status = ResumeStatusFor(job.FailedFrom)
		job.FailedFrom = ""
		job.ErrorMessage = ""
		job.NeedsReview = false
		job.ReviewReason = ""
		job.ProgressPercent = 0
		job.ProgressMessage = "Retry requested"
		if err := s.Update(ctx, job); err != nil {
			return retried, err
		}
		retried++
	}
	return retried, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM publish_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusReview:
			health.Review += count
		case StatusCompleted:
			health.Completed += count
		default:
			health.Processing += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'publish_jobs'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM publish_jobs")
		if err := row.Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM publish_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM publish_jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM publish_jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM publish_jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResult(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

const jobColumns = "id, brand, title, slug, short_description, long_description, publish_at, video_file, thumbnail_file, status, failed_from, record_id, cdn_video_id, cdn_library_id, session_json, thumbnail_url, error_message, needs_review, review_reason, progress_step, progress_percent, progress_message, progress_bytes, total_bytes, created_at, updated_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		brand            string
		title            string
		slug             string
		shortDescription sql.NullString
		longDescription  sql.NullString
		publishAtRaw     sql.NullString
		videoFile        sql.NullString
		thumbnailFile    sql.NullString
		statusStr        string
		failedFrom       sql.NullString
		recordID         sql.NullInt64
		cdnVideoID       sql.NullString
		cdnLibraryID     sql.NullInt64
		sessionJSON      sql.NullString
		thumbnailURL     sql.NullString
		errorMessage     sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
		progressStep     sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		progressBytes    sql.NullInt64
		totalBytes       sql.NullInt64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&brand,
		&title,
		&slug,
		&shortDescription,
		&longDescription,
		&publishAtRaw,
		&videoFile,
		&thumbnailFile,
		&statusStr,
		&failedFrom,
		&recordID,
		&cdnVideoID,
		&cdnLibraryID,
		&sessionJSON,
		&thumbnailURL,
		&errorMessage,
		&needsReview,
		&reviewReason,
		&progressStep,
		&progressPercent,
		&progressMessage,
		&progressBytes,
		&totalBytes,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Brand:            brand,
		Title:            title,
		Slug:             slug,
		ShortDescription: shortDescription.String,
		LongDescription:  longDescription.String,
		VideoFile:        videoFile.String,
		ThumbnailFile:    thumbnailFile.String,
		Status:           Status(statusStr),
		FailedFrom:       Status(failedFrom.String),
		RecordID:         recordID.Int64,
		CDNVideoID:       cdnVideoID.String,
		CDNLibraryID:     cdnLibraryID.Int64,
		SessionJSON:      sessionJSON.String,
		ThumbnailURL:     thumbnailURL.String,
		ErrorMessage:     errorMessage.String,
		ReviewReason:     reviewReason.String,
		ProgressStep:     progressStep.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
		ProgressBytes:    progressBytes.Int64,
		TotalBytes:       totalBytes.Int64,
	}
	if needsReview.Valid {
		job.NeedsReview = needsReview.Int64 != 0
	}

	if publishAt, err := parseTimeString(publishAtRaw.String); err == nil {
		job.PublishAt = publishAt
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableHeartbeat(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
