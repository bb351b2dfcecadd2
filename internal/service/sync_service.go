package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/config"
	"github.com/ctxhub/ctxhub/internal/filestore"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
	"github.com/ctxhub/ctxhub/internal/pkg/secret"
	"github.com/ctxhub/ctxhub/internal/remoterepo"
	"github.com/ctxhub/ctxhub/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type connectionStore interface {
	Create(ctx context.Context, conn *model.RepoConnection) error
	GetByID(ctx context.Context, id string) (*model.RepoConnection, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.RepoConnection, error)
	UpdateStatusIf(ctx context.Context, id, fromStatus, toStatus string, mtime int64) (bool, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type syncJobStore interface {
	Create(ctx context.Context, job *model.SyncJob) error
	Get(ctx context.Context, jobID string) (*model.SyncJob, error)
	GetActiveByConnection(ctx context.Context, connectionID string) (*model.SyncJob, error)
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]model.SyncJob, error)
	UpdateStatusIf(ctx context.Context, jobID, fromStatus, toStatus string, mtime int64) (bool, error)
	Finish(ctx context.Context, job *model.SyncJob) error
}

type draftProvider interface {
	EnsureDraftVersion(ctx context.Context, packageID string) (*model.PackageVersion, error)
}

type ingestor interface {
	Ingest(ctx context.Context, userID, versionID string, batch []model.IngestFile) (*model.IngestReport, error)
	RecountStats(ctx context.Context, versionID string) error
}

type syncFileStore interface {
	ListMetaByVersion(ctx context.Context, versionID string) ([]repo.FileMeta, error)
	Delete(ctx context.Context, id string) error
}

type syncChunkStore interface {
	ReplaceForFile(ctx context.Context, fileID string, chunks []model.Chunk) error
}

type providerFunc func(name string, args remoterepo.ProviderArgs) (remoterepo.Provider, error)

type SyncService struct {
	connections connectionStore
	jobs        syncJobStore
	packages    packageStore
	drafts      draftProvider
	ingest      ingestor
	files       syncFileStore
	chunks      syncChunkStore
	store       filestore.Store
	audit       audit.Logger

	newProvider providerFunc
	httpClient  *http.Client
	maxRetries  int
}

func NewSyncService(connections connectionStore, jobs syncJobStore, packages packageStore,
	drafts draftProvider, ingest ingestor, files syncFileStore, chunks syncChunkStore,
	store filestore.Store, auditor audit.Logger, cfg config.SyncConfig) *SyncService {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &SyncService{
		connections: connections,
		jobs:        jobs,
		packages:    packages,
		drafts:      drafts,
		ingest:      ingest,
		files:       files,
		chunks:      chunks,
		store:       store,
		audit:       auditor,
		newProvider: remoterepo.NewProvider,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.FetchTimeout) * time.Second},
		maxRetries:  retries,
	}
}

// CreateConnection registers an external repository for a package the caller
// owns. The returned secret authenticates inbound webhook triggers; only its
// hash is stored, so this is the single time it is visible.
func (s *SyncService) CreateConnection(ctx context.Context, ownerID string, conn *model.RepoConnection) (*model.RepoConnection, string, error) {
	pkg, err := s.packages.GetByID(ctx, conn.PackageID)
	if err != nil {
		return nil, "", err
	}
	if pkg.OwnerID != ownerID {
		return nil, "", appErr.ErrForbidden
	}
	if conn.Provider == "" || conn.RepoOwner == "" || conn.RepoName == "" {
		return nil, "", fmt.Errorf("%w: provider, repo_owner and repo_name are required", appErr.ErrInvalid)
	}
	if conn.Branch == "" {
		conn.Branch = "main"
	}
	webhookSecret := newSecret()
	secretHash, err := secret.Hash(webhookSecret)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().Unix()
	conn.ID = newID()
	conn.OwnerID = ownerID
	conn.WebhookSecretHash = secretHash
	conn.Status = model.SyncStatusIdle
	conn.Ctime = now
	conn.Mtime = now
	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, "", err
	}
	return conn, webhookSecret, nil
}

func (s *SyncService) GetConnection(ctx context.Context, userID, id string) (*model.RepoConnection, error) {
	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	return conn, nil
}

func (s *SyncService) ListConnections(ctx context.Context, ownerID string) ([]model.RepoConnection, error) {
	return s.connections.ListByOwner(ctx, ownerID)
}

func (s *SyncService) DeleteConnection(ctx context.Context, ownerID, id string) error {
	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conn.OwnerID != ownerID {
		return appErr.ErrForbidden
	}
	if conn.Status == model.SyncStatusSyncing {
		return fmt.Errorf("%w: sync in progress", appErr.ErrConflict)
	}
	return s.connections.Delete(ctx, ownerID, id)
}

// VerifyWebhook checks an inbound trigger's secret against the stored hash.
func (s *SyncService) VerifyWebhook(ctx context.Context, connectionID, candidate string) (*model.RepoConnection, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if err := secret.Compare(conn.WebhookSecretHash, candidate); err != nil {
		return nil, appErr.ErrUnauthorized
	}
	return conn, nil
}

func (s *SyncService) GetJob(ctx context.Context, userID, jobID string) (*model.SyncJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	conn, err := s.connections.GetByID(ctx, job.ConnectionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && conn.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	return job, nil
}

func (s *SyncService) ListJobs(ctx context.Context, userID, connectionID string, limit int) ([]model.SyncJob, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	return s.jobs.ListByConnection(ctx, connectionID, limit)
}

// Trigger starts a sync for a connection. Mutual exclusion per connection is
// a compare-and-set on the stored status, so an overlapping trigger fails
// with a conflict carrying the in-flight job's ID even across restarts. The
// sync itself runs detached; callers poll the returned job.
func (s *SyncService) Trigger(ctx context.Context, userID, connectionID, triggeredBy string) (*model.SyncJob, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && conn.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}

	now := time.Now().Unix()
	claimed, err := s.connections.UpdateStatusIf(ctx, connectionID, model.SyncStatusIdle, model.SyncStatusSyncing, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if active, err := s.jobs.GetActiveByConnection(ctx, connectionID); err == nil {
			return active, fmt.Errorf("%w: sync already in progress, job %s", appErr.ErrConflict, active.ID)
		}
		return nil, fmt.Errorf("%w: sync already in progress", appErr.ErrConflict)
	}

	job := &model.SyncJob{
		ID:           newID(),
		ConnectionID: connectionID,
		PackageID:    conn.PackageID,
		TriggeredBy:  triggeredBy,
		Status:       model.SyncJobStatusQueued,
		StartedAt:    now,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		_, _ = s.connections.UpdateStatusIf(ctx, connectionID, model.SyncStatusSyncing, model.SyncStatusIdle, time.Now().Unix())
		return nil, err
	}

	go s.run(context.WithoutCancel(ctx), conn, job)
	return job, nil
}

func (s *SyncService) run(ctx context.Context, conn *model.RepoConnection, job *model.SyncJob) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("connection_id", conn.ID),
		zap.String("job_id", job.ID))
	defer func() {
		if _, err := s.connections.UpdateStatusIf(ctx, conn.ID, model.SyncStatusSyncing, model.SyncStatusIdle, time.Now().Unix()); err != nil {
			logger.Error("reset connection status failed", zap.Error(err))
		}
	}()

	if ok, err := s.jobs.UpdateStatusIf(ctx, job.ID, model.SyncJobStatusQueued, model.SyncJobStatusSyncing, time.Now().Unix()); err != nil || !ok {
		logger.Error("claim sync job failed", zap.Error(err))
		return
	}

	report, versionID, err := s.execute(ctx, conn)
	job.VersionID = versionID
	job.Report = report
	job.FinishedAt = time.Now().Unix()
	job.Mtime = job.FinishedAt
	if err != nil {
		job.Status = model.SyncJobStatusFailed
		if report == nil {
			job.Report = &model.SyncReport{}
		}
		job.Report.Errors = append(job.Report.Errors, err.Error())
		logger.Error("sync failed", zap.Error(err))
	} else {
		job.Status = model.SyncJobStatusSucceeded
		logger.Info("sync finished",
			zap.Int("added", report.Added),
			zap.Int("updated", report.Updated),
			zap.Int("removed", report.Removed),
			zap.Int("skipped", report.Skipped))
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		logger.Error("persist sync job result failed", zap.Error(err))
	}
	s.audit.Emit(ctx, audit.EventSync, map[string]interface{}{
		"connection_id": conn.ID,
		"job_id":        job.ID,
		"status":        job.Status,
	})
}

// execute pulls the remote file list, diffs it against the draft version by
// path and content hash, ingests the changed subset and drops files no
// longer present remotely. Failures on individual files are recorded and do
// not abort the run; only listing the repository is fatal.
func (s *SyncService) execute(ctx context.Context, conn *model.RepoConnection) (*model.SyncReport, string, error) {
	provider, err := s.newProvider(conn.Provider, remoterepo.ProviderArgs{
		Config: remoterepo.ProviderConfig{
			Owner:  conn.RepoOwner,
			Repo:   conn.RepoName,
			Branch: conn.Branch,
			Token:  conn.Token,
		},
		Client: s.httpClient,
	})
	if err != nil {
		return nil, "", err
	}

	var remoteFiles []remoterepo.RemoteFile
	err = s.withRetry(ctx, func() error {
		var listErr error
		remoteFiles, listErr = provider.ListFiles(ctx)
		return listErr
	})
	if err != nil {
		return nil, "", fmt.Errorf("list remote files: %w", err)
	}

	version, err := s.drafts.EnsureDraftVersion(ctx, conn.PackageID)
	if err != nil {
		return nil, "", err
	}
	localMetas, err := s.files.ListMetaByVersion(ctx, version.ID)
	if err != nil {
		return nil, version.ID, err
	}
	localByPath := make(map[string]repo.FileMeta, len(localMetas))
	for _, meta := range localMetas {
		localByPath[meta.Path] = meta
	}

	report := &model.SyncReport{}
	var changed []model.IngestFile
	existedLocally := make(map[string]bool, len(remoteFiles))
	remotePaths := make(map[string]bool, len(remoteFiles))
	for _, remote := range remoteFiles {
		remotePaths[remote.Path] = true
		var content []byte
		err := s.withRetry(ctx, func() error {
			var fetchErr error
			content, fetchErr = provider.FetchContent(ctx, remote.Path)
			return fetchErr
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", remote.Path, err))
			continue
		}
		local, exists := localByPath[remote.Path]
		if exists && local.ContentHash == hashContent(content) {
			report.Skipped++
			continue
		}
		existedLocally[remote.Path] = exists
		changed = append(changed, model.IngestFile{
			Path:     remote.Path,
			Content:  content,
			MimeType: mimeForPath(remote.Path),
		})
	}

	if len(changed) > 0 {
		ingestReport, err := s.ingest.Ingest(ctx, "", version.ID, changed)
		if err != nil {
			return report, version.ID, err
		}
		for _, path := range ingestReport.Succeeded {
			if existedLocally[path] {
				report.Updated++
			} else {
				report.Added++
			}
		}
		report.Skipped += len(ingestReport.Skipped)
		for _, failure := range ingestReport.Failed {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", failure.Path, failure.Reason))
		}
	}

	for _, meta := range localMetas {
		if remotePaths[meta.Path] {
			continue
		}
		if err := s.removeDraftFile(ctx, version.ID, meta); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: remove: %v", meta.Path, err))
			continue
		}
		report.Removed++
	}
	// Ingest recounted before the removals ran, so settle the stats again.
	if report.Removed > 0 {
		if err := s.ingest.RecountStats(ctx, version.ID); err != nil {
			logutil.GetLogger(ctx).Warn("recount version stats failed",
				zap.String("version_id", version.ID), zap.Error(err))
		}
	}
	return report, version.ID, nil
}

// removeDraftFile drops a file and its chunks from the draft snapshot.
// Finalized versions are never touched.
func (s *SyncService) removeDraftFile(ctx context.Context, versionID string, meta repo.FileMeta) error {
	if err := s.chunks.ReplaceForFile(ctx, meta.ID, nil); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, meta.ID); err != nil {
		return err
	}
	key := filestore.BuildKey(versionID, meta.Path)
	if err := s.store.Delete(ctx, key); err != nil {
		logutil.GetLogger(ctx).Warn("delete stored file failed",
			zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *SyncService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := 500 * time.Millisecond
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if appErr.IsNotFound(err) {
			return err
		}
	}
	return err
}

func mimeForPath(p string) string {
	lower := strings.ToLower(p)
	if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") {
		return "text/markdown"
	}
	return "text/plain"
}
