package systemair

import "context"

// Transport moves register values between the bridge and the unit.
//
// HTTPTransport talks to a real IAM module; tests substitute fakes.
type Transport interface {
	// Probe reports whether the unit answers. It never returns an error:
	// any failure, including a timeout, is reported as false.
	Probe(ctx context.Context) bool

	// ReadRegisters requests ids and returns whatever the unit reported.
	// Network failures, non-2xx responses and undecodable bodies are
	// returned as *TransportError.
	ReadRegisters(ctx context.Context, ids []RegisterID) (RawValues, error)

	// WriteRegisters sends values. The bool is the unit's verdict: true
	// only when it acknowledged the write. An error means the exchange
	// itself failed.
	WriteRegisters(ctx context.Context, values RawValues) (bool, error)

	// Close releases the transport. It is idempotent and safe to call
	// before the transport was ever used.
	Close() error
}

// Logger is the logging interface used by this package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
