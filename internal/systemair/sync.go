package systemair

import (
	"context"
	"sync"
	"time"
)

// Result describes one completed sync cycle.
type Result struct {
	// Wrote is true when pending local changes were sent.
	Wrote bool `json:"wrote"`

	// WriteAccepted is true when the unit acknowledged the write.
	WriteAccepted bool `json:"write_accepted"`

	// Values holds what the unit returned for the read.
	Values RawValues `json:"values,omitempty"`

	// Missing lists requested registers the unit left out of its reply.
	Missing []RegisterID `json:"missing,omitempty"`

	// Dirty is the dirty flag after the cycle.
	Dirty bool `json:"dirty"`

	Duration time.Duration `json:"duration"`
}

// Synchronizer runs write-then-read cycles between a State and a Transport.
// At most one cycle runs at a time; concurrent callers queue.
type Synchronizer struct {
	state     *State
	transport Transport
	logger    Logger

	mu sync.Mutex
}

// NewSynchronizer binds state to transport.
func NewSynchronizer(state *State, transport Transport, logger Logger) *Synchronizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Synchronizer{state: state, transport: transport, logger: logger}
}

// SyncOnce flushes pending writes, then reads every register in the table.
//
// When the state is dirty the whole table is written. A transport error
// ends the cycle immediately with the state still dirty and no read. A
// write the unit rejects leaves the state dirty but the read still runs,
// so a rejected value is replaced by what the unit actually holds. Read
// errors are returned as-is.
//
// A Set that lands while the cycle runs is never undone: the state stays
// dirty and the read does not overwrite that register.
func (s *Synchronizer) SyncOnce(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var res Result

	// gen marks what this cycle has seen; anything Set later survives it.
	gen := s.state.Generation()

	if s.state.Dirty() {
		res.Wrote = true
		var batch RawValues
		batch, gen = s.state.SnapshotDirtyRaw()
		ok, err := s.transport.WriteRegisters(ctx, batch)
		if err != nil {
			res.Dirty = true
			res.Duration = time.Since(start)
			return res, err
		}
		res.WriteAccepted = ok
		if ok {
			if !s.state.ClearDirtyIf(gen) {
				s.logger.Debug("register changed during write, keeping it dirty")
			}
		} else {
			s.logger.Warn("unit rejected register write, will retry next cycle")
		}
	}

	ids := s.state.Table().IDs()
	values, err := s.transport.ReadRegisters(ctx, ids)
	if err != nil {
		res.Dirty = s.state.Dirty()
		res.Duration = time.Since(start)
		return res, err
	}

	s.state.FeedSince(values, gen)

	for _, id := range ids {
		if _, ok := values[id]; !ok {
			res.Missing = append(res.Missing, id)
		}
	}
	if len(res.Missing) > 0 {
		s.logger.Warn("unit omitted registers from read", "missing", res.Missing)
	}

	res.Values = values
	res.Dirty = s.state.Dirty()
	res.Duration = time.Since(start)
	return res, nil
}
