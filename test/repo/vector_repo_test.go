package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/timeutil"
	"github.com/ctxhub/ctxhub/internal/repo"
	"github.com/ctxhub/ctxhub/test/testutil"
)

func axisVector(sign float32) []float32 {
	vec := make([]float32, 1536)
	vec[0] = sign
	return vec
}

func TestVectorRepoQueryScoreRange(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	versions := repo.NewVersionRepo(db)
	files := repo.NewFileRepo(db)
	chunks := repo.NewChunkRepo(db)
	vectors := repo.NewVectorRepo(db)
	now := timeutil.NowUnix()

	version := &model.PackageVersion{
		ID:        testutil.RandomID(t),
		PackageID: testutil.RandomID(t),
		Version:   "1.0.0",
		State:     model.VersionStatePublished,
		Ctime:     now,
		Mtime:     now,
	}
	require.NoError(t, versions.Create(context.Background(), version))

	file := &model.File{
		ID:          testutil.RandomID(t),
		VersionID:   version.ID,
		Filename:    "a.md",
		Path:        "a.md",
		Content:     "body",
		ContentHash: "hash-a",
		SizeBytes:   4,
		MimeType:    "text/markdown",
		StoreKey:    "key-a",
		Ctime:       now,
		Mtime:       now,
	}
	require.NoError(t, files.Upsert(context.Background(), file))

	aligned := model.Chunk{
		ID: testutil.RandomID(t), FileID: file.ID, VersionID: version.ID,
		Seq: 0, Content: "aligned", ContentHash: "c-aligned", TokenCount: 1,
	}
	opposed := model.Chunk{
		ID: testutil.RandomID(t), FileID: file.ID, VersionID: version.ID,
		Seq: 1, Content: "opposed", ContentHash: "c-opposed", TokenCount: 1,
	}
	require.NoError(t, chunks.ReplaceForFile(context.Background(), file.ID, []model.Chunk{aligned, opposed}))

	require.NoError(t, vectors.Upsert(context.Background(), &model.ChunkEmbedding{
		ChunkID: aligned.ID, VersionID: version.ID, Embedding: axisVector(1),
		ModelName: "m", ContentHash: aligned.ContentHash, Ctime: now,
	}))
	require.NoError(t, vectors.Upsert(context.Background(), &model.ChunkEmbedding{
		ChunkID: opposed.ID, VersionID: version.ID, Embedding: axisVector(-1),
		ModelName: "m", ContentHash: opposed.ContentHash, Ctime: now,
	}))

	results, err := vectors.Query(context.Background(), []string{version.ID}, axisVector(1), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, aligned.ID, results[0].ChunkID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)

	// the opposed vector sits at cosine distance 2; similarity clamps at zero
	require.Equal(t, opposed.ID, results[1].ChunkID)
	require.InDelta(t, 0.0, results[1].Score, 1e-6)

	for _, item := range results {
		require.GreaterOrEqual(t, item.Score, float32(0))
		require.LessOrEqual(t, item.Score, float32(1))
	}
}
