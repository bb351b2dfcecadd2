package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/dbutil"
)

var chunkFields = []string{
	"id", "file_id", "version_id", "seq", "start_token", "end_token",
	"content", "heading", "content_hash", "token_count",
}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForFile swaps a file's chunk set wholesale. Chunks are derived rows;
// whenever a file's content hash changes in draft they are regenerated, so a
// partial overwrite is never meaningful.
func (r *ChunkRepo) ReplaceForFile(ctx context.Context, fileID string, chunks []model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = $1)`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = $1`, fileID); err != nil {
		return err
	}
	const insert = `
		INSERT INTO chunks (id, file_id, version_id, seq, start_token, end_token, content, heading, content_hash, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, insert,
			chunk.ID,
			chunk.FileID,
			chunk.VersionID,
			chunk.Seq,
			chunk.StartToken,
			chunk.EndToken,
			chunk.Content,
			chunk.Heading,
			chunk.ContentHash,
			chunk.TokenCount,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) ListByFile(ctx context.Context, fileID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"file_id":  fileID,
		"_orderby": "seq asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.FileID,
			&chunk.VersionID,
			&chunk.Seq,
			&chunk.StartToken,
			&chunk.EndToken,
			&chunk.Content,
			&chunk.Heading,
			&chunk.ContentHash,
			&chunk.TokenCount,
		); err != nil {
			return nil, err
		}
		results = append(results, chunk)
	}
	return results, rows.Err()
}

func (r *ChunkRepo) DeleteByVersion(ctx context.Context, versionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE version_id = $1`, versionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE version_id = $1`, versionID); err != nil {
		return err
	}
	return tx.Commit()
}
