package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"correspondence/internal/domain"
	"correspondence/internal/store"
)

const jobColumns = `id, kind, payload, run_at, COALESCE(depends_on,''), only_on_success, status,
	attempts, COALESCE(last_error,''), created_at, updated_at`

func scanJob(row pgx.Row) (store.ScheduledJob, error) {
	var (
		j       store.ScheduledJob
		payload []byte
		status  string
	)
	if err := row.Scan(&j.ID, &j.Kind, &payload, &j.RunAt, &j.DependsOn, &j.OnlyOnSuccess, &status,
		&j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return store.ScheduledJob{}, err
	}
	j.Payload = json.RawMessage(payload)
	j.Status = store.JobStatus(status)
	return j, nil
}

func (s *Store) InsertJob(ctx context.Context, in store.JobInsert) error {
	payload := []byte(in.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, kind, payload, run_at, depends_on, only_on_success, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, in.ID, in.Kind, payload, in.RunAt, nullIfEmpty(in.DependsOn), in.OnlyOnSuccess, string(in.Status), in.Now)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (store.ScheduledJob, error) {
	j, err := scanJob(s.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id=$1`, id))
	if err != nil {
		if isNoRows(err) {
			return store.ScheduledJob{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return store.ScheduledJob{}, err
	}
	return j, nil
}

// AcquireDueJobs moves up to limit due jobs from scheduled to enqueued. Rows
// locked by another dispatcher are skipped.
func (s *Store) AcquireDueJobs(ctx context.Context, now time.Time, limit int) ([]store.ScheduledJob, error) {
	rows, err := s.DB.Query(ctx, `
		WITH due AS (
			SELECT id FROM scheduled_jobs
			WHERE status='scheduled' AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_jobs j SET status='enqueued', updated_at=$1
		FROM due WHERE j.id = due.id
		RETURNING j.id, j.kind, j.payload, j.run_at, COALESCE(j.depends_on,''), j.only_on_success,
		          j.status, j.attempts, COALESCE(j.last_error,''), j.created_at, j.updated_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimJob moves an enqueued job to running and returns the attempt number. A
// running job whose worker went silent for staleAfter can be reclaimed.
func (s *Store) ClaimJob(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (int, bool, error) {
	var attempts int
	err := s.DB.QueryRow(ctx, `
		UPDATE scheduled_jobs
		SET status='running', attempts=attempts+1, updated_at=$2
		WHERE id=$1 AND (status='enqueued' OR (status='running' AND updated_at < $3))
		RETURNING attempts
	`, id, now, now.Add(-staleAfter)).Scan(&attempts)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return attempts, true, nil
}

func (s *Store) MarkJobSucceeded(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE scheduled_jobs SET status='succeeded', last_error=NULL, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

func (s *Store) MarkJobFailed(ctx context.Context, id, lastErr string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE scheduled_jobs SET status='failed', last_error=$2, updated_at=$3 WHERE id=$1
	`, id, lastErr, now)
	return err
}

// RescheduleJob puts a failed attempt back on the schedule.
func (s *Store) RescheduleJob(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE scheduled_jobs SET status='scheduled', run_at=$2, last_error=$3, updated_at=$4
		WHERE id=$1 AND status IN ('enqueued','running')
	`, id, runAt, lastErr, now)
	return err
}

// DeleteJob cancels a job that has not started yet.
func (s *Store) DeleteJob(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE scheduled_jobs SET status='deleted', updated_at=$2
		WHERE id=$1 AND status IN ('scheduled','awaiting','enqueued')
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ReleaseContinuations schedules jobs waiting on parentID. Continuations that
// only run on success are deleted when the parent failed.
func (s *Store) ReleaseContinuations(ctx context.Context, parentID string, parentSucceeded bool, now time.Time) (int64, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE scheduled_jobs SET status='scheduled', run_at=$2, updated_at=$2
		WHERE depends_on=$1 AND status='awaiting' AND ($3 OR NOT only_on_success)
	`, parentID, now, parentSucceeded)
	if err != nil {
		return 0, err
	}
	if !parentSucceeded {
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_jobs SET status='deleted', last_error='parent failed', updated_at=$2
			WHERE depends_on=$1 AND status='awaiting' AND only_on_success
		`, parentID, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// FindPendingJobs returns ids of not yet started jobs of kind whose payload
// contains args.
func (s *Store) FindPendingJobs(ctx context.Context, kind string, args json.RawMessage) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM scheduled_jobs
		WHERE kind=$1 AND payload @> $2::jsonb AND status IN ('scheduled','awaiting','enqueued')
		ORDER BY run_at
	`, kind, []byte(args))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
