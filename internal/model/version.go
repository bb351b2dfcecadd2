package model

const (
	VersionStateDraft     = "draft"
	VersionStateLocked    = "locked"
	VersionStatePublished = "published"
)

type PackageVersion struct {
	ID             string `json:"id"`
	PackageID      string `json:"package_id"`
	Version        string `json:"version"`
	State          string `json:"state"`
	FileCount      int    `json:"file_count"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	Changelog      string `json:"changelog"`
	LockedAt       int64  `json:"locked_at"`
	PublishedAt    int64  `json:"published_at"`
	PublishedBy    string `json:"published_by"`
	Ctime          int64  `json:"ctime"`
	Mtime          int64  `json:"mtime"`
}
