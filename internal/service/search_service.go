package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctxhub/ctxhub/internal/ai"
	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type searchableVersionStore interface {
	ListSearchableIDs(ctx context.Context, userID, packageID string) ([]string, error)
}

type vectorQuerier interface {
	Query(ctx context.Context, versionIDs []string, queryVector []float32, k int) ([]model.SearchResult, error)
}

type SearchService struct {
	versions searchableVersionStore
	vectors  vectorQuerier
	embedder embedder
	audit    audit.Logger
}

func NewSearchService(versions searchableVersionStore, vectors vectorQuerier, embed embedder, auditor audit.Logger) *SearchService {
	return &SearchService{
		versions: versions,
		vectors:  vectors,
		embedder: embed,
		audit:    auditor,
	}
}

// Search embeds the query and ranks chunks by cosine similarity. The
// visibility scope is resolved before the index is queried, so content the
// caller cannot read is never scored or counted toward the limit. packageID
// optionally narrows the scope to one package.
func (s *SearchService) Search(ctx context.Context, userID, query, packageID string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", appErr.ErrInvalid)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	versionIDs, err := s.versions.ListSearchableIDs(ctx, userID, packageID)
	if err != nil {
		return nil, err
	}
	if len(versionIDs) == 0 {
		return []model.SearchResult{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	results, err := s.vectors.Query(ctx, versionIDs, vector, limit)
	if err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, audit.EventSearch, map[string]interface{}{
		"user_id": userID,
		"results": len(results),
	})
	return results, nil
}
