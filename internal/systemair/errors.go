package systemair

import (
	"errors"
	"fmt"
)

// Domain errors for the systemair package.
//
//	if errors.Is(err, systemair.ErrTransport) {
//	    // the unit could not be reached or answered badly
//	}
var (
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("systemair: transport failure")

	// ErrNotYetSynced is returned when a property is read before any
	// value has been fed from the unit or set locally.
	ErrNotYetSynced = errors.New("systemair: value not yet synced")

	// ErrUnknownProperty is returned when a property name is not in the register table.
	ErrUnknownProperty = errors.New("systemair: unknown property")

	// ErrNotReady is returned by Setup when the unit does not answer the probe.
	ErrNotReady = errors.New("systemair: unit not ready")

	// ErrClosed is returned when a request is made on a closed transport.
	ErrClosed = errors.New("systemair: transport closed")

	// ErrInvalidTable is returned when register definitions are inconsistent.
	ErrInvalidTable = errors.New("systemair: invalid register table")
)

// TransportError describes a failed exchange with the unit: a network
// error, a non-2xx status, or a body that could not be decoded.
type TransportError struct {
	Op         string // "probe", "read" or "write"
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("systemair: %s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("systemair: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
