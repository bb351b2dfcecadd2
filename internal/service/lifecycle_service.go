package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/model"
	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
	"github.com/ctxhub/ctxhub/internal/pkg/semver"
	"github.com/ctxhub/ctxhub/internal/repo"
)

type lifecycleVersionStore interface {
	GetByID(ctx context.Context, id string) (*model.PackageVersion, error)
	ListFinalizedByPackage(ctx context.Context, packageID string) ([]model.PackageVersion, error)
	UpdateStateIf(ctx context.Context, id, fromState string, update map[string]interface{}) (bool, error)
	UpdateStats(ctx context.Context, id string, fileCount int, totalSizeBytes, mtime int64) error
}

type lifecycleFileStore interface {
	CountAndSize(ctx context.Context, versionID string) (int, int64, error)
	ListMetaByVersion(ctx context.Context, versionID string) ([]repo.FileMeta, error)
}

type LifecycleService struct {
	packages packageStore
	versions lifecycleVersionStore
	files    lifecycleFileStore
	audit    audit.Logger
}

func NewLifecycleService(packages packageStore, versions lifecycleVersionStore, files lifecycleFileStore, auditor audit.Logger) *LifecycleService {
	return &LifecycleService{
		packages: packages,
		versions: versions,
		files:    files,
		audit:    auditor,
	}
}

func (s *LifecycleService) ownedVersion(ctx context.Context, userID, versionID string) (*model.PackageVersion, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetByID(ctx, version.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg.OwnerID != userID {
		return nil, appErr.ErrForbidden
	}
	return version, nil
}

// Lock finalizes a draft version: stats are recounted from the files table,
// a changelog is generated against the previous finalized version, and the
// state flips to locked. The state flip is a conditional update so two
// concurrent lock calls cannot both succeed.
func (s *LifecycleService) Lock(ctx context.Context, userID, versionID string) (*model.PackageVersion, error) {
	version, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}
	if version.State != model.VersionStateDraft {
		return nil, fmt.Errorf("%w: cannot lock %s version", appErr.ErrInvalidState, version.State)
	}

	count, size, err := s.files.CountAndSize(ctx, versionID)
	if err != nil {
		return nil, err
	}
	changelog, err := s.buildChangelog(ctx, version)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	ok, err := s.versions.UpdateStateIf(ctx, versionID, model.VersionStateDraft, map[string]interface{}{
		"state":            model.VersionStateLocked,
		"file_count":       count,
		"total_size_bytes": size,
		"changelog":        changelog,
		"locked_at":        now,
		"mtime":            now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: version left draft state concurrently", appErr.ErrInvalidState)
	}
	s.audit.Emit(ctx, audit.EventLock, map[string]interface{}{
		"version_id": versionID,
		"file_count": count,
	})
	return s.versions.GetByID(ctx, versionID)
}

// Publish makes a locked version visible to non-owners per the package's
// visibility.
func (s *LifecycleService) Publish(ctx context.Context, userID, versionID string) (*model.PackageVersion, error) {
	version, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}
	if version.State != model.VersionStateLocked {
		return nil, fmt.Errorf("%w: cannot publish %s version", appErr.ErrInvalidState, version.State)
	}
	now := time.Now().Unix()
	ok, err := s.versions.UpdateStateIf(ctx, versionID, model.VersionStateLocked, map[string]interface{}{
		"state":        model.VersionStatePublished,
		"published_at": now,
		"published_by": userID,
		"mtime":        now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: version left locked state concurrently", appErr.ErrInvalidState)
	}
	s.audit.Emit(ctx, audit.EventPublish, map[string]interface{}{
		"version_id": versionID,
	})
	return s.versions.GetByID(ctx, versionID)
}

// RecalculateStats is an idempotent repair operation, valid in any state.
func (s *LifecycleService) RecalculateStats(ctx context.Context, userID, versionID string) (*model.PackageVersion, error) {
	version, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}
	count, size, err := s.files.CountAndSize(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.versions.UpdateStats(ctx, versionID, count, size, time.Now().Unix()); err != nil {
		return nil, err
	}
	version.FileCount = count
	version.TotalSizeBytes = size
	return version, nil
}

// buildChangelog diffs the version's file set against the immediately
// preceding finalized version of the same package. The first finalized
// version lists everything as added.
func (s *LifecycleService) buildChangelog(ctx context.Context, version *model.PackageVersion) (string, error) {
	current, err := s.files.ListMetaByVersion(ctx, version.ID)
	if err != nil {
		return "", err
	}
	previous, err := s.previousFinalized(ctx, version)
	if err != nil {
		return "", err
	}
	var previousMetas []repo.FileMeta
	if previous != nil {
		previousMetas, err = s.files.ListMetaByVersion(ctx, previous.ID)
		if err != nil {
			return "", err
		}
	}
	return renderChangelog(diffFileSets(previousMetas, current)), nil
}

func (s *LifecycleService) previousFinalized(ctx context.Context, version *model.PackageVersion) (*model.PackageVersion, error) {
	finalized, err := s.versions.ListFinalizedByPackage(ctx, version.PackageID)
	if err != nil {
		return nil, err
	}
	var best *model.PackageVersion
	for i := range finalized {
		candidate := &finalized[i]
		if candidate.ID == version.ID {
			continue
		}
		if semver.Compare(candidate.Version, version.Version) >= 0 {
			continue
		}
		if best == nil || semver.Compare(candidate.Version, best.Version) > 0 {
			best = candidate
		}
	}
	return best, nil
}

type fileDiff struct {
	Added    []string
	Removed  []string
	Modified []string
}

func diffFileSets(previous, current []repo.FileMeta) fileDiff {
	prevByPath := make(map[string]string, len(previous))
	for _, meta := range previous {
		prevByPath[meta.Path] = meta.ContentHash
	}
	var diff fileDiff
	currentPaths := make(map[string]bool, len(current))
	for _, meta := range current {
		currentPaths[meta.Path] = true
		prevHash, found := prevByPath[meta.Path]
		switch {
		case !found:
			diff.Added = append(diff.Added, meta.Path)
		case prevHash != meta.ContentHash:
			diff.Modified = append(diff.Modified, meta.Path)
		}
	}
	for _, meta := range previous {
		if !currentPaths[meta.Path] {
			diff.Removed = append(diff.Removed, meta.Path)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	return diff
}

func renderChangelog(diff fileDiff) string {
	if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Modified) == 0 {
		return "No changes."
	}
	var b strings.Builder
	writeSection := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d):\n", title, len(paths))
		for _, p := range paths {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	writeSection("Added", diff.Added)
	writeSection("Modified", diff.Modified)
	writeSection("Removed", diff.Removed)
	return strings.TrimRight(b.String(), "\n")
}
