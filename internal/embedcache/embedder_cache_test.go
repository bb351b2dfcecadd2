package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctxhub/ctxhub/internal/ai"
	"github.com/ctxhub/ctxhub/internal/model"
)

type countingEmbedder struct {
	calls  int
	vector []float32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return c.vector, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test-model"
}

type memCacheRepo struct {
	items map[string][]float32
	saves int
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{items: map[string][]float32{}}
}

func (m *memCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	values, ok := m.items[modelName+"|"+taskType+"|"+contentHash]
	return values, ok, nil
}

func (m *memCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.saves++
	m.items[item.ModelName+"|"+item.TaskType+"|"+item.ContentHash] = item.Embedding
	return nil
}

func TestLruCacheSkipsRepeatCalls(t *testing.T) {
	inner := &countingEmbedder{vector: []float32{1, 2}}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "same text", ai.TaskTypeDocument)
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "same text", ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	// same content under another task type is a distinct entry
	_, err = cached.Embed(context.Background(), "same text", ai.TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLruCacheReturnsCopy(t *testing.T) {
	inner := &countingEmbedder{vector: []float32{1, 2}}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "text", ai.TaskTypeDocument)
	require.NoError(t, err)
	first[0] = 99
	second, err := cached.Embed(context.Background(), "text", ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, float32(1), second[0])
}

func TestDBCacheHitSkipsProvider(t *testing.T) {
	inner := &countingEmbedder{vector: []float32{1, 2}}
	store := newMemCacheRepo()
	cached := WrapDBCacheToEmbedder(inner, store)

	_, err := cached.Embed(context.Background(), "persisted", ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, 1, store.saves)

	_, err = cached.Embed(context.Background(), "persisted", ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls, "second call must be served from the cache")
	require.Equal(t, 1, store.saves)
}
