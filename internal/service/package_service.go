package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ctxhub/ctxhub/internal/filestore"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
	"github.com/ctxhub/ctxhub/internal/pkg/semver"
	"github.com/ctxhub/ctxhub/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

type packageStore interface {
	Create(ctx context.Context, pkg *model.Package) error
	GetByID(ctx context.Context, id string) (*model.Package, error)
	GetBySlug(ctx context.Context, slug string) (*model.Package, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Package, error)
	Update(ctx context.Context, pkg *model.Package) error
}

type versionStore interface {
	Create(ctx context.Context, version *model.PackageVersion) error
	GetByID(ctx context.Context, id string) (*model.PackageVersion, error)
	GetByPackageAndVersion(ctx context.Context, packageID, version string) (*model.PackageVersion, error)
	ListByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error)
	ListFinalizedByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error)
	Delete(ctx context.Context, id string) error
}

type versionContentStore interface {
	GetByPath(ctx context.Context, versionID, path string) (*model.File, error)
	ListMetaByVersion(ctx context.Context, versionID string) ([]repo.FileMeta, error)
	DeleteByVersion(ctx context.Context, versionID string) error
}

type chunkContentStore interface {
	ListByFile(ctx context.Context, fileID string) ([]model.Chunk, error)
	DeleteByVersion(ctx context.Context, versionID string) error
}

type PackageService struct {
	packages packageStore
	versions versionStore
	files    versionContentStore
	chunks   chunkContentStore
	store    filestore.Store
}

func NewPackageService(packages packageStore, versions versionStore, files versionContentStore, chunks chunkContentStore, store filestore.Store) *PackageService {
	return &PackageService{
		packages: packages,
		versions: versions,
		files:    files,
		chunks:   chunks,
		store:    store,
	}
}

func validVisibility(visibility string) bool {
	switch visibility {
	case model.VisibilityPublic, model.VisibilityPrivate, model.VisibilityInternal:
		return true
	}
	return false
}

// canRead reports whether userID may read pkg. Private packages are
// owner-only, internal packages require any authenticated user, public
// packages are open.
func canRead(pkg *model.Package, userID string) bool {
	if pkg.OwnerID == userID {
		return true
	}
	switch pkg.Visibility {
	case model.VisibilityPublic:
		return true
	case model.VisibilityInternal:
		return userID != ""
	}
	return false
}

func (s *PackageService) Create(ctx context.Context, ownerID, name, slug, visibility string) (*model.Package, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty package name", appErr.ErrInvalid)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: invalid slug %q", appErr.ErrInvalid, slug)
	}
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !validVisibility(visibility) {
		return nil, fmt.Errorf("%w: invalid visibility %q", appErr.ErrInvalid, visibility)
	}
	now := time.Now().Unix()
	pkg := &model.Package{
		ID:         newID(),
		Name:       name,
		Slug:       slug,
		OwnerID:    ownerID,
		Visibility: visibility,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *PackageService) Get(ctx context.Context, userID, id string) (*model.Package, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(pkg, userID) {
		return nil, appErr.ErrForbidden
	}
	return pkg, nil
}

func (s *PackageService) GetBySlug(ctx context.Context, userID, slug string) (*model.Package, error) {
	pkg, err := s.packages.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !canRead(pkg, userID) {
		return nil, appErr.ErrForbidden
	}
	return pkg, nil
}

func (s *PackageService) List(ctx context.Context, ownerID string) ([]model.Package, error) {
	return s.packages.ListByOwner(ctx, ownerID)
}

func (s *PackageService) Update(ctx context.Context, userID, id string, name, visibility *string, archived *bool) (*model.Package, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pkg.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	if name != nil {
		if *name == "" {
			return nil, fmt.Errorf("%w: empty package name", appErr.ErrInvalid)
		}
		pkg.Name = *name
	}
	if visibility != nil {
		if !validVisibility(*visibility) {
			return nil, fmt.Errorf("%w: invalid visibility %q", appErr.ErrInvalid, *visibility)
		}
		pkg.Visibility = *visibility
	}
	if archived != nil {
		if *archived {
			pkg.Archived = 1
		} else {
			pkg.Archived = 0
		}
	}
	pkg.Mtime = time.Now().Unix()
	if err := s.packages.Update(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *PackageService) CreateVersion(ctx context.Context, userID, packageID, version string) (*model.PackageVersion, error) {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("%w: version %q is not MAJOR.MINOR.PATCH", appErr.ErrInvalid, version)
	}
	now := time.Now().Unix()
	item := &model.PackageVersion{
		ID:        newID(),
		PackageID: packageID,
		Version:   version,
		State:     model.VersionStateDraft,
		Ctime:     now,
		Mtime:     now,
	}
	if err := s.versions.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *PackageService) GetVersion(ctx context.Context, userID, versionID string) (*model.PackageVersion, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetByID(ctx, version.PackageID)
	if err != nil {
		return nil, err
	}
	if !canRead(pkg, userID) {
		return nil, appErr.ErrForbidden
	}
	if pkg.OwnerID != userID && version.State == model.VersionStateDraft {
		return nil, appErr.ErrNotFound
	}
	return version, nil
}

// ListVersions returns every version for the owner and only finalized
// versions for other readers.
func (s *PackageService) ListVersions(ctx context.Context, userID, packageID string) ([]model.PackageVersion, error) {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !canRead(pkg, userID) {
		return nil, appErr.ErrForbidden
	}
	if pkg.OwnerID == userID {
		return s.versions.ListByPackage(ctx, packageID)
	}
	return s.versions.ListFinalizedByPackage(ctx, packageID)
}

// DeleteVersion removes a draft version with all of its files, chunks and
// embeddings. Finalized versions are immutable and cannot be deleted.
func (s *PackageService) DeleteVersion(ctx context.Context, userID, versionID string) error {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return err
	}
	pkg, err := s.packages.GetByID(ctx, version.PackageID)
	if err != nil {
		return err
	}
	if pkg.OwnerID != userID {
		return appErr.ErrForbidden
	}
	if version.State != model.VersionStateDraft {
		return fmt.Errorf("%w: cannot delete %s version", appErr.ErrInvalidState, version.State)
	}
	metas, err := s.files.ListMetaByVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if err := s.chunks.DeleteByVersion(ctx, versionID); err != nil {
		return err
	}
	if err := s.files.DeleteByVersion(ctx, versionID); err != nil {
		return err
	}
	for _, meta := range metas {
		key := filestore.BuildKey(versionID, meta.Path)
		if err := s.store.Delete(ctx, key); err != nil {
			logutil.GetLogger(ctx).Warn("delete stored file failed",
				zap.String("key", key), zap.Error(err))
		}
	}
	return s.versions.Delete(ctx, versionID)
}

func (s *PackageService) ListFiles(ctx context.Context, userID, versionID string) ([]repo.FileMeta, error) {
	if _, err := s.GetVersion(ctx, userID, versionID); err != nil {
		return nil, err
	}
	return s.files.ListMetaByVersion(ctx, versionID)
}

func (s *PackageService) GetFile(ctx context.Context, userID, versionID, path string) (*model.File, error) {
	if _, err := s.GetVersion(ctx, userID, versionID); err != nil {
		return nil, err
	}
	return s.files.GetByPath(ctx, versionID, path)
}

// ListFileChunks exposes how a file was segmented for indexing, mostly for
// inspecting retrieval behavior.
func (s *PackageService) ListFileChunks(ctx context.Context, userID, versionID, path string) ([]model.Chunk, error) {
	if _, err := s.GetVersion(ctx, userID, versionID); err != nil {
		return nil, err
	}
	file, err := s.files.GetByPath(ctx, versionID, path)
	if err != nil {
		return nil, err
	}
	return s.chunks.ListByFile(ctx, file.ID)
}

// EnsureDraftVersion returns the package's current draft version, creating
// one by bumping the patch of the latest version when none exists.
func (s *PackageService) EnsureDraftVersion(ctx context.Context, packageID string) (*model.PackageVersion, error) {
	versions, err := s.versions.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].State == model.VersionStateDraft {
			return &versions[i], nil
		}
	}
	next := "0.1.0"
	if len(versions) > 0 {
		latest := versions[0].Version
		for _, v := range versions[1:] {
			if semver.Compare(v.Version, latest) > 0 {
				latest = v.Version
			}
		}
		next, err = semver.BumpPatch(latest)
		if err != nil {
			return nil, err
		}
	}
	now := time.Now().Unix()
	item := &model.PackageVersion{
		ID:        newID(),
		PackageID: packageID,
		Version:   next,
		State:     model.VersionStateDraft,
		Ctime:     now,
		Mtime:     now,
	}
	if err := s.versions.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
