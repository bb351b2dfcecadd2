package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/dbutil"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

var packageFields = []string{"id", "name", "slug", "owner_id", "visibility", "archived", "ctime", "mtime"}

type PackageRepo struct {
	db *sql.DB
}

func NewPackageRepo(db *sql.DB) *PackageRepo {
	return &PackageRepo{db: db}
}

func (r *PackageRepo) Create(ctx context.Context, pkg *model.Package) error {
	data := map[string]interface{}{
		"id":         pkg.ID,
		"name":       pkg.Name,
		"slug":       pkg.Slug,
		"owner_id":   pkg.OwnerID,
		"visibility": pkg.Visibility,
		"archived":   pkg.Archived,
		"ctime":      pkg.Ctime,
		"mtime":      pkg.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("packages", []map[string]interface{}{data})
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

func (r *PackageRepo) GetByID(ctx context.Context, id string) (*model.Package, error) {
	where := map[string]interface{}{"id": id}
	return r.getOne(ctx, where)
}

func (r *PackageRepo) GetBySlug(ctx context.Context, slug string) (*model.Package, error) {
	where := map[string]interface{}{"slug": slug}
	return r.getOne(ctx, where)
}

func (r *PackageRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Package, error) {
	sqlStr, args, err := builder.BuildSelect("packages", where, packageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var pkg model.Package
	if err := row.Scan(&pkg.ID, &pkg.Name, &pkg.Slug, &pkg.OwnerID, &pkg.Visibility, &pkg.Archived, &pkg.Ctime, &pkg.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Package, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
		"_orderby": "mtime desc",
	}
	sqlStr, args, err := builder.BuildSelect("packages", where, packageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Package
	for rows.Next() {
		var pkg model.Package
		if err := rows.Scan(&pkg.ID, &pkg.Name, &pkg.Slug, &pkg.OwnerID, &pkg.Visibility, &pkg.Archived, &pkg.Ctime, &pkg.Mtime); err != nil {
			return nil, err
		}
		results = append(results, pkg)
	}
	return results, rows.Err()
}

func (r *PackageRepo) Update(ctx context.Context, pkg *model.Package) error {
	where := map[string]interface{}{"id": pkg.ID}
	update := map[string]interface{}{
		"name":       pkg.Name,
		"visibility": pkg.Visibility,
		"archived":   pkg.Archived,
		"mtime":      pkg.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("packages", where, update)
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
