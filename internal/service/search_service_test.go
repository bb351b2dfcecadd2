package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

type fakeSearchableVersions struct {
	ids []string
}

func (f *fakeSearchableVersions) ListSearchableIDs(ctx context.Context, userID, packageID string) ([]string, error) {
	return f.ids, nil
}

type recordingVectorQuerier struct {
	lastVersionIDs []string
	lastK          int
	results        []model.SearchResult
}

func (r *recordingVectorQuerier) Query(ctx context.Context, versionIDs []string, queryVector []float32, k int) ([]model.SearchResult, error) {
	r.lastVersionIDs = versionIDs
	r.lastK = k
	return r.results, nil
}

func TestSearchEmbedsQueryAndScopesIndex(t *testing.T) {
	versions := &fakeSearchableVersions{ids: []string{"v1", "v2"}}
	querier := &recordingVectorQuerier{results: []model.SearchResult{
		{ChunkID: "c1", Score: 0.9},
	}}
	embedder := &fakeEmbedder{}
	svc := NewSearchService(versions, querier, embedder, audit.NewNopLogger())

	results, err := svc.Search(context.Background(), "user-1", "how to install", "", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []string{"v1", "v2"}, querier.lastVersionIDs)
	require.Equal(t, 5, querier.lastK)
	require.Equal(t, 1, embedder.calls)
}

func TestSearchEmptyScopeSkipsEmbedding(t *testing.T) {
	versions := &fakeSearchableVersions{}
	querier := &recordingVectorQuerier{}
	embedder := &fakeEmbedder{}
	svc := NewSearchService(versions, querier, embedder, audit.NewNopLogger())

	results, err := svc.Search(context.Background(), "user-1", "anything", "", 5)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Zero(t, embedder.calls, "nothing searchable means no provider call")
}

func TestSearchValidatesAndClampsInput(t *testing.T) {
	versions := &fakeSearchableVersions{ids: []string{"v1"}}
	querier := &recordingVectorQuerier{}
	svc := NewSearchService(versions, querier, &fakeEmbedder{}, audit.NewNopLogger())

	_, err := svc.Search(context.Background(), "user-1", "   ", "", 5)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.Search(context.Background(), "user-1", "query", "", 0)
	require.NoError(t, err)
	require.Equal(t, defaultSearchLimit, querier.lastK)

	_, err = svc.Search(context.Background(), "user-1", "query", "", 10000)
	require.NoError(t, err)
	require.Equal(t, maxSearchLimit, querier.lastK)
}
