package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrInvalidState
	ErrConflict
	ErrQuotaExceeded
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrIngestFailed
	ErrSyncFailed
	ErrProviderUnavailable
)
