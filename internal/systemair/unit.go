package systemair

import (
	"context"
	"fmt"
	"time"
)

// UnitOptions configures a Unit.
type UnitOptions struct {
	// Host of the IAM module. Default: DefaultHost
	Host string

	// Timeout for each HTTP request. Default: DefaultTimeout
	Timeout time.Duration

	// Table overrides the register table. Default: DefaultTable()
	Table *Table

	// Transport overrides the HTTP transport, mainly for tests.
	Transport Transport

	Logger Logger
}

// Unit is a client for one SystemAir IAM module. It composes the register
// table, local state, transport and synchronizer.
//
// Thread Safety: All methods are safe for concurrent use.
type Unit struct {
	host      string
	state     *State
	transport Transport
	sync      *Synchronizer
	logger    Logger
}

// NewUnit creates a client. No network traffic happens until Probe or SyncOnce.
func NewUnit(opts UnitOptions) *Unit {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Transport == nil {
		opts.Transport = NewHTTPTransport(HTTPOptions{
			Host:    opts.Host,
			Timeout: opts.Timeout,
			Logger:  opts.Logger,
		})
	}

	state := NewState(opts.Table)
	return &Unit{
		host:      opts.Host,
		state:     state,
		transport: opts.Transport,
		sync:      NewSynchronizer(state, opts.Transport, opts.Logger),
		logger:    opts.Logger,
	}
}

// Host returns the configured unit address.
func (u *Unit) Host() string { return u.host }

// State exposes the underlying register state.
func (u *Unit) State() *State { return u.state }

// Probe reports whether the unit answers HTTP.
func (u *Unit) Probe(ctx context.Context) bool { return u.transport.Probe(ctx) }

// SyncOnce runs one write-then-read cycle.
func (u *Unit) SyncOnce(ctx context.Context) (Result, error) { return u.sync.SyncOnce(ctx) }

// Close releases the transport. Safe to call more than once.
func (u *Unit) Close() error { return u.transport.Close() }

// Get returns a property's whole-unit value.
func (u *Unit) Get(property string) (int, error) { return u.state.Get(property) }

// Set records a property change to be written on the next cycle.
func (u *Unit) Set(property string, value int) error { return u.state.Set(property, value) }

// Snapshot returns a copy of the current state.
func (u *Unit) Snapshot() Snapshot { return u.state.Snapshot() }

// Dirty reports whether changes are pending.
func (u *Unit) Dirty() bool { return u.state.Dirty() }

// Setpoint returns the supply air setpoint in whole degrees Celsius.
func (u *Unit) Setpoint() (int, error) { return u.state.Get(PropertySetpoint) }

// SetSetpoint changes the supply air setpoint, in whole degrees Celsius.
func (u *Unit) SetSetpoint(celsius int) error { return u.state.Set(PropertySetpoint, celsius) }

// Setup probes the unit. When it does not answer, the unit is closed and
// ErrNotReady is returned; the caller should retry later with a new Unit.
func Setup(ctx context.Context, u *Unit) error {
	if u.Probe(ctx) {
		return nil
	}
	if err := u.Close(); err != nil {
		u.logger.Warn("closing unreachable unit", "host", u.host, "error", err)
	}
	return fmt.Errorf("%w: %s did not answer", ErrNotReady, u.host)
}
