package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/dbutil"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

var fileFields = []string{
	"id", "version_id", "filename", "path", "content", "content_hash",
	"size_bytes", "mime_type", "store_key", "ctime", "mtime",
}

// FileMeta is the path+hash projection the sync differ and changelog
// generator work from.
type FileMeta struct {
	ID          string
	Path        string
	ContentHash string
	SizeBytes   int64
}

type FileRepo struct {
	db *sql.DB
}

func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Upsert(ctx context.Context, file *model.File) error {
	const query = `
		INSERT INTO files (id, version_id, filename, path, content, content_hash, size_bytes, mime_type, store_key, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (version_id, path) DO UPDATE SET
			filename = EXCLUDED.filename,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			size_bytes = EXCLUDED.size_bytes,
			mime_type = EXCLUDED.mime_type,
			store_key = EXCLUDED.store_key,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.VersionID,
		file.Filename,
		file.Path,
		file.Content,
		file.ContentHash,
		file.SizeBytes,
		file.MimeType,
		file.StoreKey,
		file.Ctime,
		file.Mtime,
	)
	return err
}

func (r *FileRepo) GetByPath(ctx context.Context, versionID, path string) (*model.File, error) {
	where := map[string]interface{}{
		"version_id": versionID,
		"path":       path,
	}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	file, err := scanFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (r *FileRepo) ListMetaByVersion(ctx context.Context, versionID string) ([]FileMeta, error) {
	where := map[string]interface{}{
		"version_id": versionID,
		"_orderby":   "path asc",
	}
	sqlStr, args, err := builder.BuildSelect("files", where, []string{"id", "path", "content_hash", "size_bytes"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []FileMeta
	for rows.Next() {
		var meta FileMeta
		if err := rows.Scan(&meta.ID, &meta.Path, &meta.ContentHash, &meta.SizeBytes); err != nil {
			return nil, err
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// CountAndSize recounts a version's files from the table itself, never from
// the stored counters.
func (r *FileRepo) CountAndSize(ctx context.Context, versionID string) (int, int64, error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files WHERE version_id = $1`
	row := r.db.QueryRowContext(ctx, query, versionID)
	var count int
	var size int64
	if err := row.Scan(&count, &size); err != nil {
		return 0, 0, err
	}
	return count, size, nil
}

func (r *FileRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("files", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *FileRepo) DeleteByVersion(ctx context.Context, versionID string) error {
	sqlStr, args, err := builder.BuildDelete("files", map[string]interface{}{"version_id": versionID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanFile(row rowScanner) (*model.File, error) {
	var file model.File
	if err := row.Scan(
		&file.ID,
		&file.VersionID,
		&file.Filename,
		&file.Path,
		&file.Content,
		&file.ContentHash,
		&file.SizeBytes,
		&file.MimeType,
		&file.StoreKey,
		&file.Ctime,
		&file.Mtime,
	); err != nil {
		return nil, err
	}
	return &file, nil
}
