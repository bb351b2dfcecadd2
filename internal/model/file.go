package model

type File struct {
	ID          string `json:"id"`
	VersionID   string `json:"version_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type"`
	StoreKey    string `json:"store_key"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
