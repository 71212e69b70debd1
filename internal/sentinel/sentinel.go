package sentinel

import "errors"

// Sentinel errors shared across packages. Dependencies return these wrapped
// so callers can classify failures with errors.Is.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorage            = errors.New("storage error")
	ErrRemoteUnavailable  = errors.New("remote unavailable")
	ErrSyncItemFailed     = errors.New("sync item failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRejected           = errors.New("rejected by remote")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)
