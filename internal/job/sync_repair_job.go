package job

import (
	"context"
	"time"

	"github.com/ctxhub/ctxhub/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// SyncRepairJob fails sync jobs that have been queued or syncing for too
// long and resets their connections to idle. This is the crash-recovery
// path for the per-connection sync lock: a process that died mid-sync left
// the stored status at syncing, which would otherwise block every future
// trigger.
type SyncRepairJob struct {
	jobs         *repo.SyncJobRepo
	staleMinutes int
}

func NewSyncRepairJob(jobs *repo.SyncJobRepo, staleMinutes int) *SyncRepairJob {
	return &SyncRepairJob{jobs: jobs, staleMinutes: staleMinutes}
}

func (j *SyncRepairJob) Name() string {
	return "sync_repair"
}

func (j *SyncRepairJob) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}
	staleMinutes := j.staleMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	now := time.Now().Unix()
	cutoff := now - int64(staleMinutes)*60
	repaired, err := j.jobs.FailStale(ctx, cutoff, now)
	if err != nil {
		return err
	}
	if repaired > 0 {
		logutil.GetLogger(ctx).Warn("repaired stale sync jobs", zap.Int64("count", repaired))
	}
	return nil
}
