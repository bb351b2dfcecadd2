package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/dbutil"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

var connectionFields = []string{
	"id", "owner_id", "package_id", "provider", "repo_owner", "repo_name",
	"branch", "token", "webhook_secret_hash", "status", "ctime", "mtime",
}

type ConnectionRepo struct {
	db *sql.DB
}

func NewConnectionRepo(db *sql.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

func (r *ConnectionRepo) Create(ctx context.Context, conn *model.RepoConnection) error {
	data := map[string]interface{}{
		"id":                  conn.ID,
		"owner_id":            conn.OwnerID,
		"package_id":          conn.PackageID,
		"provider":            conn.Provider,
		"repo_owner":          conn.RepoOwner,
		"repo_name":           conn.RepoName,
		"branch":              conn.Branch,
		"token":               conn.Token,
		"webhook_secret_hash": conn.WebhookSecretHash,
		"status":              conn.Status,
		"ctime":               conn.Ctime,
		"mtime":               conn.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("repo_connections", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ConnectionRepo) GetByID(ctx context.Context, id string) (*model.RepoConnection, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("repo_connections", where, connectionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return conn, nil
}

func (r *ConnectionRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.RepoConnection, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("repo_connections", where, connectionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.RepoConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *conn)
	}
	return results, rows.Err()
}

// UpdateStatusIf is the mutual-exclusion primitive for syncs: the transition
// happens only when the stored status still equals fromStatus. Being a plain
// conditional UPDATE it holds across process restarts, unlike an in-memory
// mutex.
func (r *ConnectionRepo) UpdateStatusIf(ctx context.Context, id, fromStatus, toStatus string, mtime int64) (bool, error) {
	const query = `
		UPDATE repo_connections
		SET status = $1, mtime = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, toStatus, mtime, id, fromStatus)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ConnectionRepo) Delete(ctx context.Context, ownerID, id string) error {
	sqlStr, args, err := builder.BuildDelete("repo_connections", map[string]interface{}{
		"id":       id,
		"owner_id": ownerID,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanConnection(row rowScanner) (*model.RepoConnection, error) {
	var conn model.RepoConnection
	if err := row.Scan(
		&conn.ID,
		&conn.OwnerID,
		&conn.PackageID,
		&conn.Provider,
		&conn.RepoOwner,
		&conn.RepoName,
		&conn.Branch,
		&conn.Token,
		&conn.WebhookSecretHash,
		&conn.Status,
		&conn.Ctime,
		&conn.Mtime,
	); err != nil {
		return nil, err
	}
	return &conn, nil
}
