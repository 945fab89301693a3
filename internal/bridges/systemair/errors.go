package systemair

import "errors"

var (
	// ErrMissingOption is returned by NewBridge when a required option is nil.
	ErrMissingOption = errors.New("systemair bridge: missing required option")

	// ErrInvalidCommand is returned for command payloads that cannot be parsed.
	ErrInvalidCommand = errors.New("systemair bridge: invalid command")
)
