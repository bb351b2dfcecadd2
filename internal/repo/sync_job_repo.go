package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

type SyncJobRepo struct {
	db *sql.DB
}

func NewSyncJobRepo(db *sql.DB) *SyncJobRepo {
	return &SyncJobRepo{db: db}
}

func (r *SyncJobRepo) Create(ctx context.Context, job *model.SyncJob) error {
	reportJSON := []byte("{}")
	if job.Report != nil {
		var err error
		reportJSON, err = json.Marshal(job.Report)
		if err != nil {
			return err
		}
	}
	const query = `
		INSERT INTO sync_jobs (id, connection_id, package_id, version_id, triggered_by, status, report_json, started_at, finished_at, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.ConnectionID,
		job.PackageID,
		job.VersionID,
		job.TriggeredBy,
		job.Status,
		string(reportJSON),
		job.StartedAt,
		job.FinishedAt,
		job.Ctime,
		job.Mtime,
	)
	return err
}

func (r *SyncJobRepo) Get(ctx context.Context, jobID string) (*model.SyncJob, error) {
	const query = `
		SELECT id, connection_id, package_id, version_id, triggered_by, status, report_json, started_at, finished_at, ctime, mtime
		FROM sync_jobs
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, jobID)
	return scanSyncJob(row)
}

// GetActiveByConnection returns the connection's non-terminal job, if any.
// Used to hand a conflicting caller the identifier of the run already in
// flight.
func (r *SyncJobRepo) GetActiveByConnection(ctx context.Context, connectionID string) (*model.SyncJob, error) {
	const query = `
		SELECT id, connection_id, package_id, version_id, triggered_by, status, report_json, started_at, finished_at, ctime, mtime
		FROM sync_jobs
		WHERE connection_id = $1 AND status IN ($2, $3)
		ORDER BY ctime DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, connectionID, model.SyncJobStatusQueued, model.SyncJobStatusSyncing)
	return scanSyncJob(row)
}

func (r *SyncJobRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]model.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, connection_id, package_id, version_id, triggered_by, status, report_json, started_at, finished_at, ctime, mtime
		FROM sync_jobs
		WHERE connection_id = $1
		ORDER BY ctime DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SyncJob
	for rows.Next() {
		job, err := scanSyncJobRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *job)
	}
	return results, rows.Err()
}

func (r *SyncJobRepo) UpdateStatusIf(ctx context.Context, jobID, fromStatus, toStatus string, mtime int64) (bool, error) {
	const query = `
		UPDATE sync_jobs
		SET status = $1, mtime = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, toStatus, mtime, jobID, fromStatus)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SyncJobRepo) Finish(ctx context.Context, job *model.SyncJob) error {
	reportJSON := []byte("{}")
	if job.Report != nil {
		var err error
		reportJSON, err = json.Marshal(job.Report)
		if err != nil {
			return err
		}
	}
	const query = `
		UPDATE sync_jobs
		SET status = $1, report_json = $2, version_id = $3, started_at = $4, finished_at = $5, mtime = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query,
		job.Status,
		string(reportJSON),
		job.VersionID,
		job.StartedAt,
		job.FinishedAt,
		job.Mtime,
		job.ID,
	)
	return err
}

// FailStale flips jobs stuck in a non-terminal status past the cutoff to
// failed, and their connections back to idle. This is the crash-repair path:
// a process that died mid-sync leaves exactly this fingerprint.
func (r *SyncJobRepo) FailStale(ctx context.Context, cutoff, now int64) (int64, error) {
	const jobsQuery = `
		UPDATE sync_jobs
		SET status = $1, finished_at = $2, mtime = $2
		WHERE status IN ($3, $4) AND mtime < $5
	`
	res, err := r.db.ExecContext(ctx, jobsQuery,
		model.SyncJobStatusFailed, now,
		model.SyncJobStatusQueued, model.SyncJobStatusSyncing, cutoff,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	const connsQuery = `
		UPDATE repo_connections
		SET status = $1, mtime = $2
		WHERE status = $3 AND mtime < $4
	`
	if _, err := r.db.ExecContext(ctx, connsQuery,
		model.SyncStatusIdle, now, model.SyncStatusSyncing, cutoff,
	); err != nil {
		return affected, err
	}
	return affected, nil
}

func (r *SyncJobRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM sync_jobs WHERE ctime < $1 AND status IN ($2, $3)`
	res, err := r.db.ExecContext(ctx, query, cutoff, model.SyncJobStatusSucceeded, model.SyncJobStatusFailed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSyncJob(row *sql.Row) (*model.SyncJob, error) {
	var job model.SyncJob
	var reportJSON string
	if err := row.Scan(
		&job.ID,
		&job.ConnectionID,
		&job.PackageID,
		&job.VersionID,
		&job.TriggeredBy,
		&job.Status,
		&reportJSON,
		&job.StartedAt,
		&job.FinishedAt,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	decodeReport(&job, reportJSON)
	return &job, nil
}

func scanSyncJobRow(rows *sql.Rows) (*model.SyncJob, error) {
	var job model.SyncJob
	var reportJSON string
	if err := rows.Scan(
		&job.ID,
		&job.ConnectionID,
		&job.PackageID,
		&job.VersionID,
		&job.TriggeredBy,
		&job.Status,
		&reportJSON,
		&job.StartedAt,
		&job.FinishedAt,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		return nil, err
	}
	decodeReport(&job, reportJSON)
	return &job, nil
}

func decodeReport(job *model.SyncJob, reportJSON string) {
	if reportJSON == "" || reportJSON == "{}" {
		return
	}
	var report model.SyncReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err == nil {
		job.Report = &report
	}
}
