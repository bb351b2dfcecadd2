package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ctxhub/ctxhub/internal/model"
)

// VectorRepo is the vector index: (chunk, embedding) rows per version with
// cosine top-K queries. It is visibility-agnostic; callers pass the version
// set their policy allows.
type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

func (r *VectorRepo) Upsert(ctx context.Context, emb *model.ChunkEmbedding) error {
	const query = `
		INSERT INTO chunk_embeddings (chunk_id, version_id, embedding, model_name, content_hash, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model_name = EXCLUDED.model_name,
			content_hash = EXCLUDED.content_hash,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.ChunkID,
		emb.VersionID,
		pgvector.NewVector(emb.Embedding),
		emb.ModelName,
		emb.ContentHash,
		emb.Ctime,
	)
	return err
}

// Query returns the top-K chunks across versionIDs ranked by cosine
// similarity, ties broken by chunk sequence so identical scores order
// deterministically. Cosine distance spans [0,2], so the similarity is
// clamped at zero to keep scores in [0,1]. K larger than the population
// returns everything.
func (r *VectorRepo) Query(ctx context.Context, versionIDs []string, queryVector []float32, k int) ([]model.SearchResult, error) {
	if len(versionIDs) == 0 || k <= 0 {
		return nil, nil
	}
	const query = `
		SELECT c.id, c.version_id, v.package_id, c.file_id, f.path, c.heading, c.content,
			GREATEST(1 - (e.embedding <=> $1), 0) AS score
		FROM chunk_embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		JOIN package_versions v ON v.id = c.version_id
		WHERE e.version_id = ANY($2)
		ORDER BY e.embedding <=> $1 ASC, c.seq ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), pq.Array(versionIDs), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		var item model.SearchResult
		if err := rows.Scan(
			&item.ChunkID,
			&item.VersionID,
			&item.PackageID,
			&item.FileID,
			&item.Path,
			&item.Heading,
			&item.Content,
			&item.Score,
		); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}
