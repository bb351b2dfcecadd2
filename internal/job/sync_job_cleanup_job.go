package job

import (
	"context"
	"time"

	"github.com/ctxhub/ctxhub/internal/repo"
)

// SyncJobCleanupJob deletes terminal sync job rows past their retention
// window. Active jobs are never touched.
type SyncJobCleanupJob struct {
	jobs   *repo.SyncJobRepo
	maxAge time.Duration
}

func NewSyncJobCleanupJob(jobs *repo.SyncJobRepo, maxAge time.Duration) *SyncJobCleanupJob {
	return &SyncJobCleanupJob{jobs: jobs, maxAge: maxAge}
}

func (j *SyncJobCleanupJob) Name() string {
	return "sync_job_cleanup"
}

func (j *SyncJobCleanupJob) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	_, err := j.jobs.DeleteBefore(ctx, cutoff)
	return err
}
