package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/chunker"
	"github.com/ctxhub/ctxhub/internal/config"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

type ingestFixture struct {
	packages *fakePackageStore
	versions *fakeVersionStore
	files    *fakeFileStore
	chunks   *fakeChunkStore
	vectors  *fakeVectorStore
	embedder *fakeEmbedder
	blobs    *memBlobStore
	svc      *IngestService
}

func newIngestFixture(limits config.LimitsConfig) *ingestFixture {
	f := &ingestFixture{
		packages: newFakePackageStore(),
		versions: newFakeVersionStore(),
		files:    newFakeFileStore(),
		chunks:   newFakeChunkStore(),
		vectors:  newFakeVectorStore(),
		embedder: &fakeEmbedder{},
		blobs:    newMemBlobStore(),
	}
	if limits.IngestWorkers == 0 {
		limits.IngestWorkers = 2
	}
	f.svc = NewIngestService(f.packages, f.versions, f.files, f.chunks, f.vectors,
		f.embedder, chunker.New(nil), f.blobs, audit.NewNopLogger(), limits,
		config.AIConfig{ChunkTokens: 8, OverlapTokens: 2})
	return f
}

func (f *ingestFixture) seedDraft(t *testing.T) (*model.Package, *model.PackageVersion) {
	t.Helper()
	pkg := seedPackage(f.packages, "owner-1")
	version := seedVersion(f.versions, pkg.ID, "1.0.0", model.VersionStateDraft)
	return pkg, version
}

func TestIngestHappyPath(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	batch := []model.IngestFile{
		{Path: "docs/intro.md", Content: []byte("# Intro\n\nsome words here"), MimeType: "text/markdown"},
		{Path: "notes.txt", Content: []byte("plain text body"), MimeType: "text/plain"},
	}
	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, batch)
	require.NoError(t, err)
	require.Equal(t, []string{"docs/intro.md", "notes.txt"}, report.Succeeded)
	require.Empty(t, report.Failed)
	require.Empty(t, report.Skipped)

	updated, err := f.versions.GetByID(context.Background(), version.ID)
	require.NoError(t, err)
	require.Equal(t, 2, updated.FileCount)
	require.Equal(t, int64(len(batch[0].Content)+len(batch[1].Content)), updated.TotalSizeBytes)

	file, err := f.files.GetByPath(context.Background(), version.ID, "docs/intro.md")
	require.NoError(t, err)
	require.Equal(t, "Intro", f.chunks.chunks[file.ID][0].Heading)
	for _, chunk := range f.chunks.chunks[file.ID] {
		require.Contains(t, f.vectors.vectors, chunk.ID)
		require.Equal(t, "fake-model", f.vectors.vectors[chunk.ID].ModelName)
	}
}

func TestIngestIdempotent(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	batch := []model.IngestFile{
		{Path: "a.md", Content: []byte("alpha beta gamma"), MimeType: "text/markdown"},
	}
	first, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, batch)
	require.NoError(t, err)
	require.Len(t, first.Succeeded, 1)
	callsAfterFirst := f.embedder.calls

	second, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, batch)
	require.NoError(t, err)
	require.Empty(t, second.Succeeded)
	require.Equal(t, []string{"a.md"}, second.Skipped)
	require.Equal(t, callsAfterFirst, f.embedder.calls, "unchanged content must not re-embed")
}

func TestIngestChangedContentReplacesChunks(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	_, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte(strings.Repeat("old ", 20)), MimeType: "text/markdown"},
	})
	require.NoError(t, err)
	file, err := f.files.GetByPath(context.Background(), version.ID, "a.md")
	require.NoError(t, err)
	oldChunks := f.chunks.chunks[file.ID]

	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("new body"), MimeType: "text/markdown"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.md"}, report.Succeeded)

	updated, err := f.files.GetByPath(context.Background(), version.ID, "a.md")
	require.NoError(t, err)
	require.Equal(t, file.ID, updated.ID, "path keeps its file identity across updates")
	require.NotEqual(t, oldChunks, f.chunks.chunks[file.ID])
}

func TestIngestRejectsNonDraft(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	pkg, _ := f.seedDraft(t)
	locked := seedVersion(f.versions, pkg.ID, "2.0.0", model.VersionStateLocked)

	_, err := f.svc.Ingest(context.Background(), "owner-1", locked.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("body")},
	})
	require.ErrorIs(t, err, appErr.ErrInvalidState)
}

func TestIngestRejectsForeignOwner(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	_, err := f.svc.Ingest(context.Background(), "intruder", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("body")},
	})
	require.ErrorIs(t, err, appErr.ErrForbidden)
}

func TestIngestOversizedFileFailsAlone(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{MaxFileBytes: 10})
	_, version := f.seedDraft(t)

	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "big.md", Content: []byte(strings.Repeat("x", 64))},
		{Path: "small.md", Content: []byte("tiny")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"small.md"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "big.md", report.Failed[0].Path)
	require.ErrorIs(t, report.Failed[0].Err, appErr.ErrQuotaExceeded)
}

func TestIngestPackageQuota(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{MaxPackageBytes: 20, IngestWorkers: 1})
	_, version := f.seedDraft(t)

	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte(strings.Repeat("a", 15))},
		{Path: "b.md", Content: []byte(strings.Repeat("b", 15))},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.md"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "b.md", report.Failed[0].Path)
	require.ErrorIs(t, report.Failed[0].Err, appErr.ErrQuotaExceeded)
}

func TestIngestRejectsWhenQuotaExhausted(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{MaxPackageBytes: 10})
	_, version := f.seedDraft(t)

	_, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("0123456789")},
	})
	require.NoError(t, err)

	_, err = f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "b.md", Content: []byte("x")},
	})
	require.ErrorIs(t, err, appErr.ErrQuotaExceeded)
}

func TestIngestEmbedFailureDoesNotPoisonBatch(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)
	f.embedder.failTexts = map[string]bool{"poison pill": true}

	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "bad.md", Content: []byte("poison pill")},
		{Path: "good.md", Content: []byte("healthy content")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"good.md"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "bad.md", report.Failed[0].Path)
}

func TestIngestRetrySucceedsAfterEmbedFailure(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)
	f.embedder.failTexts = map[string]bool{"poison pill": true}

	batch := []model.IngestFile{
		{Path: "bad.md", Content: []byte("poison pill"), MimeType: "text/markdown"},
	}
	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, batch)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	_, err = f.files.GetByPath(context.Background(), version.ID, "bad.md")
	require.ErrorIs(t, err, appErr.ErrNotFound,
		"a failed file must not claim its content hash")

	f.embedder.failTexts = nil
	retry, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, batch)
	require.NoError(t, err)
	require.Equal(t, []string{"bad.md"}, retry.Succeeded)
	require.Empty(t, retry.Skipped)

	file, err := f.files.GetByPath(context.Background(), version.ID, "bad.md")
	require.NoError(t, err)
	require.NotEmpty(t, f.chunks.chunks[file.ID])
	for _, chunk := range f.chunks.chunks[file.ID] {
		require.Contains(t, f.vectors.vectors, chunk.ID)
	}
}

func TestIngestFailedUpdateKeepsPreviousIndex(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	_, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("original body")},
	})
	require.NoError(t, err)
	before, err := f.files.GetByPath(context.Background(), version.ID, "a.md")
	require.NoError(t, err)
	oldChunks := f.chunks.chunks[before.ID]

	f.embedder.failTexts = map[string]bool{"poison pill": true}
	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("poison pill")},
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)

	after, err := f.files.GetByPath(context.Background(), version.ID, "a.md")
	require.NoError(t, err)
	require.Equal(t, before.ContentHash, after.ContentHash, "failed update must leave the old hash")
	require.Equal(t, oldChunks, f.chunks.chunks[before.ID])

	f.embedder.failTexts = nil
	retry, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "a.md", Content: []byte("poison pill")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.md"}, retry.Succeeded)
}

func TestIngestRejectsBadPaths(t *testing.T) {
	f := newIngestFixture(config.LimitsConfig{})
	_, version := f.seedDraft(t)

	report, err := f.svc.Ingest(context.Background(), "owner-1", version.ID, []model.IngestFile{
		{Path: "../escape.md", Content: []byte("body")},
		{Path: "dup.md", Content: []byte("one")},
		{Path: "dup.md", Content: []byte("two")},
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 2)
	require.Equal(t, []string{"dup.md"}, report.Succeeded)
}
