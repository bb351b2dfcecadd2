package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ctxhub/ctxhub/internal/ai"
	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/chunker"
	"github.com/ctxhub/ctxhub/internal/config"
	"github.com/ctxhub/ctxhub/internal/filestore"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ingestVersionStore interface {
	GetByID(ctx context.Context, id string) (*model.PackageVersion, error)
	UpdateStats(ctx context.Context, id string, fileCount int, totalSizeBytes, mtime int64) error
}

type ingestFileStore interface {
	Upsert(ctx context.Context, file *model.File) error
	GetByPath(ctx context.Context, versionID, path string) (*model.File, error)
	CountAndSize(ctx context.Context, versionID string) (int, int64, error)
}

type ingestChunkStore interface {
	ReplaceForFile(ctx context.Context, fileID string, chunks []model.Chunk) error
}

type ingestVectorStore interface {
	Upsert(ctx context.Context, emb *model.ChunkEmbedding) error
}

type embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type IngestService struct {
	packages packageStore
	versions ingestVersionStore
	files    ingestFileStore
	chunks   ingestChunkStore
	vectors  ingestVectorStore
	embedder embedder
	chunker  *chunker.Chunker
	store    filestore.Store
	audit    audit.Logger

	maxFileBytes    int64
	maxPackageBytes int64
	workers         int
	chunkTokens     int
	overlapTokens   int
}

func NewIngestService(packages packageStore, versions ingestVersionStore, files ingestFileStore,
	chunks ingestChunkStore, vectors ingestVectorStore, embed embedder, ck *chunker.Chunker,
	store filestore.Store, auditor audit.Logger, limits config.LimitsConfig, aiCfg config.AIConfig) *IngestService {
	workers := limits.IngestWorkers
	if workers <= 0 {
		workers = 1
	}
	return &IngestService{
		packages:        packages,
		versions:        versions,
		files:           files,
		chunks:          chunks,
		vectors:         vectors,
		embedder:        embed,
		chunker:         ck,
		store:           store,
		audit:           auditor,
		maxFileBytes:    limits.MaxFileBytes,
		maxPackageBytes: limits.MaxPackageBytes,
		workers:         workers,
		chunkTokens:     aiCfg.ChunkTokens,
		overlapTokens:   aiCfg.OverlapTokens,
	}
}

// ingestState tracks the shared outcome of one batch. usedBytes holds the
// version's stored size plus every reservation made so far, so the aggregate
// quota check stays accurate under the worker pool.
type ingestState struct {
	mu        sync.Mutex
	usedBytes int64
	report    model.IngestReport
}

func (st *ingestState) reserve(size, limit int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if limit > 0 && st.usedBytes+size > limit {
		return false
	}
	st.usedBytes += size
	return true
}

func (st *ingestState) release(size int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.usedBytes -= size
}

func (st *ingestState) succeed(filePath string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.report.Succeeded = append(st.report.Succeeded, filePath)
}

func (st *ingestState) skip(filePath string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.report.Skipped = append(st.report.Skipped, filePath)
}

func (st *ingestState) fail(filePath string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.report.Failed = append(st.report.Failed, model.IngestFailure{Path: filePath, Reason: err.Error(), Err: err})
}

func cleanPath(p string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(p, "/"))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: invalid path %q", appErr.ErrInvalid, p)
	}
	return cleaned, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Ingest runs the full pipeline for a batch of files against a draft
// version. Files are processed independently on a bounded worker pool; one
// file's failure never aborts its siblings. Re-running on unchanged content
// reports every file skipped and leaves the index untouched.
func (s *IngestService) Ingest(ctx context.Context, userID, versionID string, batch []model.IngestFile) (*model.IngestReport, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetByID(ctx, version.PackageID)
	if err != nil {
		return nil, err
	}
	if userID != "" && pkg.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	if version.State != model.VersionStateDraft {
		return nil, fmt.Errorf("%w: cannot ingest into %s version", appErr.ErrInvalidState, version.State)
	}

	_, storedBytes, err := s.files.CountAndSize(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if s.maxPackageBytes > 0 && storedBytes >= s.maxPackageBytes {
		return nil, fmt.Errorf("%w: package size limit %d bytes reached", appErr.ErrQuotaExceeded, s.maxPackageBytes)
	}
	state := &ingestState{usedBytes: storedBytes}

	seen := make(map[string]bool, len(batch))
	todo := make([]model.IngestFile, 0, len(batch))
	for _, item := range batch {
		cleaned, err := cleanPath(item.Path)
		if err != nil {
			state.fail(item.Path, err)
			continue
		}
		if seen[cleaned] {
			state.fail(cleaned, fmt.Errorf("%w: duplicate path in batch", appErr.ErrInvalid))
			continue
		}
		seen[cleaned] = true
		item.Path = cleaned
		if item.Filename == "" {
			item.Filename = path.Base(cleaned)
		}
		todo = append(todo, item)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, item := range todo {
		item := item
		group.Go(func() error {
			s.ingestOne(groupCtx, versionID, item, state)
			return nil
		})
	}
	_ = group.Wait()

	// Recount from the files table so stats never drift from what was
	// actually written.
	if err := s.RecountStats(ctx, versionID); err != nil {
		logutil.GetLogger(ctx).Warn("update version stats failed",
			zap.String("version_id", versionID), zap.Error(err))
	}

	sort.Strings(state.report.Succeeded)
	sort.Strings(state.report.Skipped)
	sort.Slice(state.report.Failed, func(i, j int) bool {
		return state.report.Failed[i].Path < state.report.Failed[j].Path
	})
	s.audit.Emit(ctx, audit.EventIngest, map[string]interface{}{
		"version_id": versionID,
		"succeeded":  len(state.report.Succeeded),
		"failed":     len(state.report.Failed),
		"skipped":    len(state.report.Skipped),
	})
	return &state.report, nil
}

// RecountStats recomputes a version's file count and total size from the
// files table.
func (s *IngestService) RecountStats(ctx context.Context, versionID string) error {
	count, size, err := s.files.CountAndSize(ctx, versionID)
	if err != nil {
		return err
	}
	return s.versions.UpdateStats(ctx, versionID, count, size, time.Now().Unix())
}

func (s *IngestService) ingestOne(ctx context.Context, versionID string, item model.IngestFile, state *ingestState) {
	size := int64(len(item.Content))
	if s.maxFileBytes > 0 && size > s.maxFileBytes {
		state.fail(item.Path, fmt.Errorf("%w: file exceeds %d byte limit", appErr.ErrQuotaExceeded, s.maxFileBytes))
		return
	}

	contentHash := hashContent(item.Content)
	existing, err := s.files.GetByPath(ctx, versionID, item.Path)
	if err != nil && !appErr.IsNotFound(err) {
		state.fail(item.Path, err)
		return
	}
	if existing != nil && existing.ContentHash == contentHash {
		state.skip(item.Path)
		return
	}

	reserved := size
	if existing != nil {
		reserved = size - existing.SizeBytes
	}
	if !state.reserve(reserved, s.maxPackageBytes) {
		state.fail(item.Path, fmt.Errorf("%w: package exceeds %d byte limit", appErr.ErrQuotaExceeded, s.maxPackageBytes))
		return
	}

	if err := s.processFile(ctx, versionID, item, existing, contentHash, size); err != nil {
		state.release(reserved)
		logutil.GetLogger(ctx).Error("ingest file failed",
			zap.String("version_id", versionID),
			zap.String("path", item.Path), zap.Error(err))
		state.fail(item.Path, err)
		return
	}
	state.succeed(item.Path)
}

func (s *IngestService) processFile(ctx context.Context, versionID string, item model.IngestFile,
	existing *model.File, contentHash string, size int64) error {
	key := filestore.BuildKey(versionID, item.Path)
	if err := s.store.Save(ctx, key, item.Content); err != nil {
		return fmt.Errorf("save content: %w", err)
	}

	fileID := newID()
	if existing != nil {
		fileID = existing.ID
	}

	heading := ""
	if chunker.IsMarkdown(item.MimeType) {
		heading = chunker.ExtractHeading(string(item.Content))
	}
	segments, err := s.chunker.Chunk(string(item.Content), s.chunkTokens, s.overlapTokens)
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}
	chunks := make([]model.Chunk, 0, len(segments))
	for _, seg := range segments {
		chunks = append(chunks, model.Chunk{
			ID:          newID(),
			FileID:      fileID,
			VersionID:   versionID,
			Seq:         seg.Seq,
			StartToken:  seg.StartToken,
			EndToken:    seg.EndToken,
			Content:     seg.Content,
			Heading:     heading,
			ContentHash: hashContent([]byte(seg.Content)),
			TokenCount:  seg.TokenCount,
		})
	}

	// Embed everything before touching the database. A provider failure
	// here leaves the previous file row, chunks and vectors intact, so a
	// later retry with identical content is not short-circuited by the
	// content-hash check.
	embeddings := make([]*model.ChunkEmbedding, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk.Content, ai.TaskTypeDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", chunk.Seq, err)
		}
		embeddings = append(embeddings, &model.ChunkEmbedding{
			ChunkID:     chunk.ID,
			VersionID:   versionID,
			Embedding:   vector,
			ModelName:   s.embedder.ModelName(),
			ContentHash: chunk.ContentHash,
			Ctime:       time.Now().Unix(),
		})
	}

	if err := s.chunks.ReplaceForFile(ctx, fileID, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	for _, emb := range embeddings {
		if err := s.vectors.Upsert(ctx, emb); err != nil {
			return fmt.Errorf("index chunk: %w", err)
		}
	}

	// The file row carries the hash that gates the skip check, so it is
	// written only after the chunks and vectors are in place.
	now := time.Now().Unix()
	file := &model.File{
		ID:          fileID,
		VersionID:   versionID,
		Filename:    item.Filename,
		Path:        item.Path,
		Content:     string(item.Content),
		ContentHash: contentHash,
		SizeBytes:   size,
		MimeType:    item.MimeType,
		StoreKey:    key,
		Ctime:       now,
		Mtime:       now,
	}
	if existing != nil {
		file.Ctime = existing.Ctime
	}
	if err := s.files.Upsert(ctx, file); err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}
