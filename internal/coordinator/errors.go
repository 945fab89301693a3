package coordinator

import "errors"

var (
	// ErrNotReady is returned when the first refresh fails. The caller should
	// treat the unit as not ready and retry setup later.
	ErrNotReady = errors.New("coordinator: first refresh failed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("coordinator: already started")

	// ErrNoSyncer is returned by New when no Syncer is supplied.
	ErrNoSyncer = errors.New("coordinator: syncer is required")
)
