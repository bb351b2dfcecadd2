package model

const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"

	SyncJobStatusQueued    = "queued"
	SyncJobStatusSyncing   = "syncing"
	SyncJobStatusSucceeded = "succeeded"
	SyncJobStatusFailed    = "failed"
)

type RepoConnection struct {
	ID                string `json:"id"`
	OwnerID           string `json:"owner_id"`
	PackageID         string `json:"package_id"`
	Provider          string `json:"provider"`
	RepoOwner         string `json:"repo_owner"`
	RepoName          string `json:"repo_name"`
	Branch            string `json:"branch"`
	Token             string `json:"-"`
	WebhookSecretHash string `json:"-"`
	Status            string `json:"status"`
	Ctime             int64  `json:"ctime"`
	Mtime             int64  `json:"mtime"`
}

type SyncReport struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Removed int      `json:"removed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

type SyncJob struct {
	ID           string      `json:"id"`
	ConnectionID string      `json:"connection_id"`
	PackageID    string      `json:"package_id"`
	VersionID    string      `json:"version_id"`
	TriggeredBy  string      `json:"triggered_by"`
	Status       string      `json:"status"`
	Report       *SyncReport `json:"report,omitempty"`
	StartedAt    int64       `json:"started_at"`
	FinishedAt   int64       `json:"finished_at"`
	Ctime        int64       `json:"ctime"`
	Mtime        int64       `json:"mtime"`
}
