package model

type SearchResult struct {
	ChunkID   string  `json:"chunk_id"`
	VersionID string  `json:"version_id"`
	PackageID string  `json:"package_id"`
	FileID    string  `json:"file_id"`
	Path      string  `json:"path"`
	Heading   string  `json:"heading,omitempty"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
}
