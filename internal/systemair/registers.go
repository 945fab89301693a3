package systemair

import (
	"fmt"
	"sort"
)

// RegisterID is the unit's decimal register identifier, e.g. "2000".
type RegisterID string

// RawValues maps register identifiers to the integers the unit reports.
type RawValues map[RegisterID]int

// Register binds a raw register to a named property.
// Semantic value = raw / Scale (truncated); raw = semantic * Scale.
type Register struct {
	ID       RegisterID
	Property string
	Scale    int
}

// Well-known registers.
const (
	RegisterSetpoint RegisterID = "2000"
	PropertySetpoint            = "setpoint"
)

// Table is an immutable bijection between register identifiers and
// property names, with a scale factor per register.
type Table struct {
	byID       map[RegisterID]Register
	byProperty map[string]Register
	ids        []RegisterID
}

// NewTable builds a table from entries. Identifiers and property names
// must be unique and every scale must be positive.
func NewTable(entries ...Register) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no registers", ErrInvalidTable)
	}

	t := &Table{
		byID:       make(map[RegisterID]Register, len(entries)),
		byProperty: make(map[string]Register, len(entries)),
		ids:        make([]RegisterID, 0, len(entries)),
	}

	for _, r := range entries {
		switch {
		case r.ID == "":
			return nil, fmt.Errorf("%w: empty register id", ErrInvalidTable)
		case r.Property == "":
			return nil, fmt.Errorf("%w: register %s has no property", ErrInvalidTable, r.ID)
		case r.Scale <= 0:
			return nil, fmt.Errorf("%w: register %s scale %d must be positive", ErrInvalidTable, r.ID, r.Scale)
		}
		if _, dup := t.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate register %s", ErrInvalidTable, r.ID)
		}
		if _, dup := t.byProperty[r.Property]; dup {
			return nil, fmt.Errorf("%w: duplicate property %q", ErrInvalidTable, r.Property)
		}
		t.byID[r.ID] = r
		t.byProperty[r.Property] = r
		t.ids = append(t.ids, r.ID)
	}

	sort.Slice(t.ids, func(i, j int) bool { return t.ids[i] < t.ids[j] })
	return t, nil
}

// DefaultTable returns the registers supported by the IAM module today:
// the temperature setpoint, reported in tenths of a degree.
func DefaultTable() *Table {
	t, err := NewTable(Register{ID: RegisterSetpoint, Property: PropertySetpoint, Scale: 10})
	if err != nil {
		panic(err)
	}
	return t
}

// Register returns the definition for id.
func (t *Table) Register(id RegisterID) (Register, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Lookup returns the definition for a property name.
func (t *Table) Lookup(property string) (Register, bool) {
	r, ok := t.byProperty[property]
	return r, ok
}

// IDs returns every register identifier in ascending order.
func (t *Table) IDs() []RegisterID {
	out := make([]RegisterID, len(t.ids))
	copy(out, t.ids)
	return out
}

// Entries returns every definition ordered by identifier.
func (t *Table) Entries() []Register {
	out := make([]Register, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.byID[id])
	}
	return out
}

// Len returns the number of registers.
func (t *Table) Len() int { return len(t.ids) }

// RawToSemantic converts a raw register value to its property value.
// Division truncates toward zero: 215 becomes 21. Panics if id is not in
// the table.
func (t *Table) RawToSemantic(id RegisterID, raw int) int {
	return raw / t.mustRegister(id).Scale
}

// SemanticToRaw converts a property value to its raw register value.
// Panics if id is not in the table.
func (t *Table) SemanticToRaw(id RegisterID, value int) int {
	return value * t.mustRegister(id).Scale
}

func (t *Table) mustRegister(id RegisterID) Register {
	r, ok := t.byID[id]
	if !ok {
		panic(fmt.Sprintf("systemair: register %q is not in the table", id))
	}
	return r
}
