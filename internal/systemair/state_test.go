package systemair

import (
	"errors"
	"sync"
	"testing"
)

func TestState_GetBeforeSync(t *testing.T) {
	s := NewState(DefaultTable())

	_, err := s.Get(PropertySetpoint)
	if !errors.Is(err, ErrNotYetSynced) {
		t.Errorf("Get() error = %v, want ErrNotYetSynced", err)
	}
	if s.Dirty() {
		t.Error("new state must not be dirty")
	}
}

func TestState_FeedTruncates(t *testing.T) {
	s := NewState(DefaultTable())

	s.Feed(RawValues{"2000": 215})

	got, err := s.Get(PropertySetpoint)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 21 {
		t.Errorf("Get() = %d, want 21", got)
	}
	if s.Dirty() {
		t.Error("Feed must not set dirty")
	}
}

func TestState_FeedMergesPresentKeysOnly(t *testing.T) {
	table, err := NewTable(
		Register{ID: "2000", Property: "setpoint", Scale: 10},
		Register{ID: "1130", Property: "fan_level", Scale: 1},
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	s := NewState(table)

	s.Feed(RawValues{"2000": 200, "1130": 3})
	s.Feed(RawValues{"2000": 230, "7777": 5})

	if v, _ := s.Raw("1130"); v != 3 {
		t.Errorf("absent register changed: Raw(1130) = %d, want 3", v)
	}
	if v, _ := s.Raw("2000"); v != 230 {
		t.Errorf("Raw(2000) = %d, want 230", v)
	}
	if _, ok := s.Raw("7777"); ok {
		t.Error("unknown register must be ignored")
	}
}

func TestState_FeedZeroIsAValue(t *testing.T) {
	s := NewState(DefaultTable())
	s.Feed(RawValues{"2000": 0})

	got, err := s.Get(PropertySetpoint)
	if err != nil || got != 0 {
		t.Errorf("Get() = %d, %v; want 0, nil", got, err)
	}
}

func TestState_FeedDoesNotClearDirty(t *testing.T) {
	s := NewState(DefaultTable())
	if err := s.Set(PropertySetpoint, 22); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s.Feed(RawValues{"2000": 210})

	if !s.Dirty() {
		t.Error("Feed cleared dirty")
	}
}

func TestState_SetMarksDirty(t *testing.T) {
	s := NewState(DefaultTable())

	if err := s.Set(PropertySetpoint, 21); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !s.Dirty() {
		t.Error("Set must mark dirty")
	}
	if v, _ := s.Raw(RegisterSetpoint); v != 210 {
		t.Errorf("Raw(2000) = %d, want 210", v)
	}
	if got, _ := s.Get(PropertySetpoint); got != 21 {
		t.Errorf("Get() = %d, want 21", got)
	}

	if !s.ClearDirtyIf(s.Generation()) || s.Dirty() {
		t.Error("ClearDirtyIf did not clear")
	}
}

func TestState_ClearDirtyIf(t *testing.T) {
	s := NewState(DefaultTable())
	_ = s.Set(PropertySetpoint, 21)
	_, gen := s.SnapshotDirtyRaw()

	_ = s.Set(PropertySetpoint, 22)
	if s.ClearDirtyIf(gen) {
		t.Error("ClearDirtyIf must refuse after a newer Set")
	}
	if !s.Dirty() {
		t.Error("state must stay dirty")
	}

	if !s.ClearDirtyIf(s.Generation()) || s.Dirty() {
		t.Error("ClearDirtyIf with the current generation should clear")
	}
}

func TestState_FeedSinceKeepsNewerSets(t *testing.T) {
	table, _ := NewTable(
		Register{ID: "2000", Property: "setpoint", Scale: 10},
		Register{ID: "1130", Property: "fan_level", Scale: 1},
	)
	s := NewState(table)
	_ = s.Set("fan_level", 1)
	gen := s.Generation()
	_ = s.Set("setpoint", 24)

	s.FeedSince(RawValues{"2000": 210, "1130": 3}, gen)

	if v, _ := s.Raw("2000"); v != 240 {
		t.Errorf("Raw(2000) = %d, want 240 (set after gen)", v)
	}
	if v, _ := s.Raw("1130"); v != 3 {
		t.Errorf("Raw(1130) = %d, want 3 (set before gen)", v)
	}

	// Plain Feed always takes the unit's value.
	s.Feed(RawValues{"2000": 210})
	if v, _ := s.Raw("2000"); v != 210 {
		t.Errorf("Raw(2000) after Feed = %d, want 210", v)
	}
}

func TestState_UnknownProperty(t *testing.T) {
	s := NewState(DefaultTable())

	if _, err := s.Get("humidity"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("Get() error = %v, want ErrUnknownProperty", err)
	}
	if err := s.Set("humidity", 40); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("Set() error = %v, want ErrUnknownProperty", err)
	}
	if s.Dirty() {
		t.Error("failed Set must not mark dirty")
	}
}

func TestState_SnapshotDirtyRaw(t *testing.T) {
	table, err := NewTable(
		Register{ID: "2000", Property: "setpoint", Scale: 10},
		Register{ID: "1130", Property: "fan_level", Scale: 1},
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	s := NewState(table)
	s.Feed(RawValues{"1130": 2})
	_ = s.Set("setpoint", 21)

	got, _ := s.SnapshotDirtyRaw()

	// Every known register is included, not only the one that changed.
	if len(got) != 2 || got["2000"] != 210 || got["1130"] != 2 {
		t.Errorf("SnapshotDirtyRaw() = %v, want map[1130:2 2000:210]", got)
	}
}

func TestState_SnapshotDirtyRawSkipsUnknownValues(t *testing.T) {
	table, _ := NewTable(
		Register{ID: "2000", Property: "setpoint", Scale: 10},
		Register{ID: "1130", Property: "fan_level", Scale: 1},
	)
	s := NewState(table)
	_ = s.Set("setpoint", 19)

	got, _ := s.SnapshotDirtyRaw()
	if _, ok := got["1130"]; ok {
		t.Errorf("SnapshotDirtyRaw() = %v, unset register must be omitted", got)
	}
}

func TestState_Snapshot(t *testing.T) {
	s := NewState(DefaultTable())
	s.Feed(RawValues{"2000": 225})

	snap := s.Snapshot()
	if snap.Properties[PropertySetpoint] != 22 {
		t.Errorf("Properties[setpoint] = %d, want 22", snap.Properties[PropertySetpoint])
	}
	if snap.Raw["2000"] != 225 {
		t.Errorf("Raw[2000] = %d, want 225", snap.Raw["2000"])
	}

	snap.Raw["2000"] = 1
	if v, _ := s.Raw("2000"); v != 225 {
		t.Error("Snapshot must return a copy")
	}
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := NewState(DefaultTable())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(v int) {
			defer wg.Done()
			_ = s.Set(PropertySetpoint, v)
		}(i)
		go func(v int) {
			defer wg.Done()
			s.Feed(RawValues{"2000": v * 10})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_, _ = s.SnapshotDirtyRaw()
		}()
	}
	wg.Wait()

	if !s.Dirty() {
		t.Error("expected dirty after concurrent sets")
	}
}
