package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
	"github.com/ctxhub/ctxhub/internal/repo"
)

type fakePackageStore struct {
	mu   sync.Mutex
	pkgs map[string]*model.Package
}

func newFakePackageStore() *fakePackageStore {
	return &fakePackageStore{pkgs: map[string]*model.Package{}}
}

func (f *fakePackageStore) Create(ctx context.Context, pkg *model.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.pkgs {
		if existing.Slug == pkg.Slug {
			return appErr.ErrConflict
		}
	}
	clone := *pkg
	f.pkgs[pkg.ID] = &clone
	return nil
}

func (f *fakePackageStore) GetByID(ctx context.Context, id string) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.pkgs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *pkg
	return &clone, nil
}

func (f *fakePackageStore) GetBySlug(ctx context.Context, slug string) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pkg := range f.pkgs {
		if pkg.Slug == slug {
			clone := *pkg
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakePackageStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Package
	for _, pkg := range f.pkgs {
		if pkg.OwnerID == ownerID {
			out = append(out, *pkg)
		}
	}
	return out, nil
}

func (f *fakePackageStore) Update(ctx context.Context, pkg *model.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pkgs[pkg.ID]; !ok {
		return appErr.ErrNotFound
	}
	clone := *pkg
	f.pkgs[pkg.ID] = &clone
	return nil
}

type fakeVersionStore struct {
	mu       sync.Mutex
	versions map[string]*model.PackageVersion
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{versions: map[string]*model.PackageVersion{}}
}

func (f *fakeVersionStore) Create(ctx context.Context, version *model.PackageVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.versions {
		if existing.PackageID == version.PackageID && existing.Version == version.Version {
			return appErr.ErrConflict
		}
	}
	clone := *version
	f.versions[version.ID] = &clone
	return nil
}

func (f *fakeVersionStore) GetByID(ctx context.Context, id string) (*model.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	version, ok := f.versions[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *version
	return &clone, nil
}

func (f *fakeVersionStore) GetByPackageAndVersion(ctx context.Context, packageID, version string) (*model.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.versions {
		if item.PackageID == packageID && item.Version == version {
			clone := *item
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeVersionStore) ListByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageVersion
	for _, item := range f.versions {
		if item.PackageID == packageID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeVersionStore) ListFinalizedByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageVersion
	for _, item := range f.versions {
		if item.PackageID == packageID &&
			(item.State == model.VersionStateLocked || item.State == model.VersionStatePublished) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeVersionStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.versions, id)
	return nil
}

func (f *fakeVersionStore) UpdateStats(ctx context.Context, id string, fileCount int, totalSizeBytes, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	version, ok := f.versions[id]
	if !ok {
		return appErr.ErrNotFound
	}
	version.FileCount = fileCount
	version.TotalSizeBytes = totalSizeBytes
	version.Mtime = mtime
	return nil
}

func (f *fakeVersionStore) UpdateStateIf(ctx context.Context, id, fromState string, update map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	version, ok := f.versions[id]
	if !ok || version.State != fromState {
		return false, nil
	}
	for key, value := range update {
		switch key {
		case "state":
			version.State = value.(string)
		case "file_count":
			version.FileCount = value.(int)
		case "total_size_bytes":
			version.TotalSizeBytes = value.(int64)
		case "changelog":
			version.Changelog = value.(string)
		case "locked_at":
			version.LockedAt = value.(int64)
		case "published_at":
			version.PublishedAt = value.(int64)
		case "published_by":
			version.PublishedBy = value.(string)
		case "mtime":
			version.Mtime = value.(int64)
		}
	}
	return true, nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	files map[string]*model.File // by id
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[string]*model.File{}}
}

func (f *fakeFileStore) Upsert(ctx context.Context, file *model.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *file
	f.files[file.ID] = &clone
	return nil
}

func (f *fakeFileStore) GetByPath(ctx context.Context, versionID, path string) (*model.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.VersionID == versionID && file.Path == path {
			clone := *file
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeFileStore) CountAndSize(ctx context.Context, versionID string) (int, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	var size int64
	for _, file := range f.files {
		if file.VersionID == versionID {
			count++
			size += file.SizeBytes
		}
	}
	return count, size, nil
}

func (f *fakeFileStore) ListMetaByVersion(ctx context.Context, versionID string) ([]repo.FileMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repo.FileMeta
	for _, file := range f.files {
		if file.VersionID == versionID {
			out = append(out, repo.FileMeta{
				ID:          file.ID,
				Path:        file.Path,
				ContentHash: file.ContentHash,
				SizeBytes:   file.SizeBytes,
			})
		}
	}
	return out, nil
}

func (f *fakeFileStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	return nil
}

func (f *fakeFileStore) DeleteByVersion(ctx context.Context, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, file := range f.files {
		if file.VersionID == versionID {
			delete(f.files, id)
		}
	}
	return nil
}

type fakeChunkStore struct {
	mu     sync.Mutex
	chunks map[string][]model.Chunk // by file id
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string][]model.Chunk{}}
}

func (f *fakeChunkStore) ReplaceForFile(ctx context.Context, fileID string, chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(chunks) == 0 {
		delete(f.chunks, fileID)
		return nil
	}
	f.chunks[fileID] = append([]model.Chunk(nil), chunks...)
	return nil
}

func (f *fakeChunkStore) ListByFile(ctx context.Context, fileID string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Chunk(nil), f.chunks[fileID]...), nil
}

func (f *fakeChunkStore) DeleteByVersion(ctx context.Context, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fileID, chunks := range f.chunks {
		if len(chunks) > 0 && chunks[0].VersionID == versionID {
			delete(f.chunks, fileID)
		}
	}
	return nil
}

type fakeVectorStore struct {
	mu      sync.Mutex
	vectors map[string]*model.ChunkEmbedding // by chunk id
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: map[string]*model.ChunkEmbedding{}}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, emb *model.ChunkEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *emb
	f.vectors[emb.ChunkID] = &clone
	return nil
}

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failTexts map[string]bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failTexts[text] {
		return nil, fmt.Errorf("%w: embed refused", appErr.ErrProvider)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-model"
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (m *memBlobStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

type fakeConnectionStore struct {
	mu    sync.Mutex
	conns map[string]*model.RepoConnection
}

func newFakeConnectionStore() *fakeConnectionStore {
	return &fakeConnectionStore{conns: map[string]*model.RepoConnection{}}
}

func (f *fakeConnectionStore) Create(ctx context.Context, conn *model.RepoConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *conn
	f.conns[conn.ID] = &clone
	return nil
}

func (f *fakeConnectionStore) GetByID(ctx context.Context, id string) (*model.RepoConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *conn
	return &clone, nil
}

func (f *fakeConnectionStore) ListByOwner(ctx context.Context, ownerID string) ([]model.RepoConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RepoConnection
	for _, conn := range f.conns {
		if conn.OwnerID == ownerID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (f *fakeConnectionStore) UpdateStatusIf(ctx context.Context, id, fromStatus, toStatus string, mtime int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok || conn.Status != fromStatus {
		return false, nil
	}
	conn.Status = toStatus
	conn.Mtime = mtime
	return true, nil
}

func (f *fakeConnectionStore) Delete(ctx context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
	return nil
}

type fakeSyncJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.SyncJob
}

func newFakeSyncJobStore() *fakeSyncJobStore {
	return &fakeSyncJobStore{jobs: map[string]*model.SyncJob{}}
}

func (f *fakeSyncJobStore) Create(ctx context.Context, job *model.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeSyncJobStore) Get(ctx context.Context, jobID string) (*model.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeSyncJobStore) GetActiveByConnection(ctx context.Context, connectionID string) (*model.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ConnectionID == connectionID &&
			(job.Status == model.SyncJobStatusQueued || job.Status == model.SyncJobStatusSyncing) {
			clone := *job
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeSyncJobStore) ListByConnection(ctx context.Context, connectionID string, limit int) ([]model.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SyncJob
	for _, job := range f.jobs {
		if job.ConnectionID == connectionID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeSyncJobStore) UpdateStatusIf(ctx context.Context, jobID, fromStatus, toStatus string, mtime int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status != fromStatus {
		return false, nil
	}
	job.Status = toStatus
	job.Mtime = mtime
	return true, nil
}

func (f *fakeSyncJobStore) Finish(ctx context.Context, job *model.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func seedPackage(packages *fakePackageStore, ownerID string) *model.Package {
	now := time.Now().Unix()
	pkg := &model.Package{
		ID:         newID(),
		Name:       "Test Package",
		Slug:       "test-package-" + newID()[:8],
		OwnerID:    ownerID,
		Visibility: model.VisibilityPrivate,
		Ctime:      now,
		Mtime:      now,
	}
	_ = packages.Create(context.Background(), pkg)
	return pkg
}

func seedVersion(versions *fakeVersionStore, packageID, semverStr, state string) *model.PackageVersion {
	now := time.Now().Unix()
	version := &model.PackageVersion{
		ID:        newID(),
		PackageID: packageID,
		Version:   semverStr,
		State:     state,
		Ctime:     now,
		Mtime:     now,
	}
	_ = versions.Create(context.Background(), version)
	return version
}
