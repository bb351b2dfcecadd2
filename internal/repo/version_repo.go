package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/dbutil"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

var versionFields = []string{
	"id", "package_id", "version", "state", "file_count", "total_size_bytes",
	"changelog", "locked_at", "published_at", "published_by", "ctime", "mtime",
}

type VersionRepo struct {
	db *sql.DB
}

func NewVersionRepo(db *sql.DB) *VersionRepo {
	return &VersionRepo{db: db}
}

func (r *VersionRepo) Create(ctx context.Context, version *model.PackageVersion) error {
	data := map[string]interface{}{
		"id":               version.ID,
		"package_id":       version.PackageID,
		"version":          version.Version,
		"state":            version.State,
		"file_count":       version.FileCount,
		"total_size_bytes": version.TotalSizeBytes,
		"changelog":        version.Changelog,
		"locked_at":        version.LockedAt,
		"published_at":     version.PublishedAt,
		"published_by":     version.PublishedBy,
		"ctime":            version.Ctime,
		"mtime":            version.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("package_versions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *VersionRepo) GetByID(ctx context.Context, id string) (*model.PackageVersion, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *VersionRepo) GetByPackageAndVersion(ctx context.Context, packageID, version string) (*model.PackageVersion, error) {
	return r.getOne(ctx, map[string]interface{}{"package_id": packageID, "version": version})
}

func (r *VersionRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.PackageVersion, error) {
	sqlStr, args, err := builder.BuildSelect("package_versions", where, versionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	version, err := scanVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return version, nil
}

func (r *VersionRepo) ListByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error) {
	where := map[string]interface{}{
		"package_id": packageID,
		"_orderby":   "ctime desc",
	}
	return r.list(ctx, where)
}

// ListFinalizedByPackage returns the package's locked and published versions.
// The lifecycle service picks the changelog baseline from these by semver.
func (r *VersionRepo) ListFinalizedByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error) {
	where := map[string]interface{}{
		"package_id": packageID,
		"state in":   []string{model.VersionStateLocked, model.VersionStatePublished},
	}
	return r.list(ctx, where)
}

func (r *VersionRepo) list(ctx context.Context, where map[string]interface{}) ([]model.PackageVersion, error) {
	sqlStr, args, err := builder.BuildSelect("package_versions", where, versionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.PackageVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *version)
	}
	return results, rows.Err()
}

// ListSearchableIDs resolves the version set a caller may search before the
// vector index is ever consulted: every version of the caller's own packages,
// plus published versions of public packages owned by others. An optional
// packageID narrows the scope.
func (r *VersionRepo) ListSearchableIDs(ctx context.Context, userID, packageID string) ([]string, error) {
	query := `
		SELECT v.id
		FROM package_versions v
		JOIN packages p ON p.id = v.package_id
		WHERE p.archived = 0
		  AND (p.owner_id = $1 OR (v.state = $2 AND p.visibility = $3))
	`
	args := []interface{}{userID, model.VersionStatePublished, model.VisibilityPublic}
	if packageID != "" {
		query += ` AND v.package_id = $4`
		args = append(args, packageID)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStateIf transitions state only when the stored state matches
// fromState; reports whether the transition happened. This is the guard that
// keeps the lifecycle machine one-directional under concurrent callers.
func (r *VersionRepo) UpdateStateIf(ctx context.Context, id, fromState string, update map[string]interface{}) (bool, error) {
	where := map[string]interface{}{
		"id":    id,
		"state": fromState,
	}
	sqlStr, args, err := builder.BuildUpdate("package_versions", where, update)
	if err != nil {
		return false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *VersionRepo) UpdateStats(ctx context.Context, id string, fileCount int, totalSizeBytes, mtime int64) error {
	where := map[string]interface{}{"id": id}
	update := map[string]interface{}{
		"file_count":       fileCount,
		"total_size_bytes": totalSizeBytes,
		"mtime":            mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("package_versions", where, update)
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

func (r *VersionRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("package_versions", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*model.PackageVersion, error) {
	var version model.PackageVersion
	if err := row.Scan(
		&version.ID,
		&version.PackageID,
		&version.Version,
		&version.State,
		&version.FileCount,
		&version.TotalSizeBytes,
		&version.Changelog,
		&version.LockedAt,
		&version.PublishedAt,
		&version.PublishedBy,
		&version.Ctime,
		&version.Mtime,
	); err != nil {
		return nil, err
	}
	return &version, nil
}
