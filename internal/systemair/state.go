package systemair

import (
	"fmt"
	"sync"
)

// State is the local mirror of the unit's registers.
//
// Raw values start absent. Feed merges what the unit reported; Set records
// a local change and marks the state dirty until a write is acknowledged.
// A single dirty flag covers all registers.
//
// Every Set bumps a generation counter. A sync cycle remembers the
// generation it started from so that a Set racing the cycle keeps both
// its value and the dirty flag for the next cycle.
//
// Thread Safety: All methods are safe for concurrent use.
type State struct {
	table *Table

	mu    sync.RWMutex
	raw   RawValues
	dirty bool

	gen    uint64
	setGen map[RegisterID]uint64
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Raw        RawValues      `json:"registers"`
	Properties map[string]int `json:"properties"`
	Dirty      bool           `json:"dirty"`
}

// NewState returns an empty, clean state for table.
func NewState(table *Table) *State {
	return &State{
		table:  table,
		raw:    make(RawValues, table.Len()),
		setGen: make(map[RegisterID]uint64, table.Len()),
	}
}

// Table returns the register table backing this state.
func (s *State) Table() *Table { return s.table }

// Feed merges values read from the unit. Registers present in values
// overwrite the local copy; absent ones are left alone and identifiers the
// table does not know are ignored. The dirty flag is not touched.
func (s *State) Feed(values RawValues) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedLocked(values, s.gen)
}

// FeedSince is Feed for a read that started at generation gen. Registers
// Set after gen keep their local value.
func (s *State) FeedSince(values RawValues, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedLocked(values, gen)
}

func (s *State) feedLocked(values RawValues, gen uint64) {
	for id, v := range values {
		if _, ok := s.table.Register(id); !ok {
			continue
		}
		if s.setGen[id] > gen {
			continue
		}
		s.raw[id] = v
	}
}

// Generation returns the number of successful Set calls so far.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Get returns the semantic value of property.
func (s *State) Get(property string) (int, error) {
	r, ok := s.table.Lookup(property)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}

	s.mu.RLock()
	raw, known := s.raw[r.ID]
	s.mu.RUnlock()

	if !known {
		return 0, fmt.Errorf("%w: %s", ErrNotYetSynced, property)
	}
	return s.table.RawToSemantic(r.ID, raw), nil
}

// Set stores a semantic value for property and marks the state dirty.
func (s *State) Set(property string, value int) error {
	r, ok := s.table.Lookup(property)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}

	raw := s.table.SemanticToRaw(r.ID, value)

	s.mu.Lock()
	s.gen++
	s.raw[r.ID] = raw
	s.setGen[r.ID] = s.gen
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Raw returns the stored raw value for id.
func (s *State) Raw(id RegisterID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.raw[id]
	return v, ok
}

// Dirty reports whether local changes are waiting to be written.
func (s *State) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// ClearDirtyIf marks local changes as written when no Set happened since
// generation gen, and reports whether it did.
func (s *State) ClearDirtyIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.dirty = false
	return true
}

// SnapshotDirtyRaw returns the raw value of every register with a known
// value, and the generation the batch reflects. The whole table is
// written, not only the registers that changed. Registers never fed or
// set are left out rather than sent as zero.
func (s *State) SnapshotDirtyRaw() (RawValues, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(RawValues, len(s.raw))
	for _, id := range s.table.IDs() {
		if v, ok := s.raw[id]; ok {
			out[id] = v
		}
	}
	return out, s.gen
}

// Snapshot returns a copy of raw and semantic values plus the dirty flag.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Raw:        make(RawValues, len(s.raw)),
		Properties: make(map[string]int, len(s.raw)),
		Dirty:      s.dirty,
	}
	for id, v := range s.raw {
		snap.Raw[id] = v
		r, _ := s.table.Register(id)
		snap.Properties[r.Property] = s.table.RawToSemantic(id, v)
	}
	return snap
}
