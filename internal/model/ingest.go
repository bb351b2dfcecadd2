package model

type IngestFile struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// IngestFailure reports one file that did not make it into the version. Err
// keeps the typed cause for in-process callers; the wire carries Reason.
type IngestFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

type IngestReport struct {
	Succeeded []string        `json:"succeeded"`
	Failed    []IngestFailure `json:"failed"`
	Skipped   []string        `json:"skipped"`
}
