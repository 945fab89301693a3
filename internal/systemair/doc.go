// Package systemair is a client for SystemAir ventilation units fitted with
// the IAM (SAVE CONNECT) internet access module.
//
// The module exposes Modbus registers over a small HTTP API. This package
// keeps a local mirror of the registers it knows about, converts them to
// engineering units, and synchronises changes in cycles:
//
//  1. If a property was changed locally, write every known register.
//  2. Read every known register and merge the reply into local state.
//
// # Registers
//
// The register table is a fixed bijection between register identifiers and
// property names. Only the supply air setpoint (register 2000, tenths of a
// degree) is defined today; adding a register means adding a table entry.
//
// # Usage
//
//	unit := systemair.NewUnit(systemair.UnitOptions{Host: "192.168.1.40"})
//	defer unit.Close()
//
//	if err := systemair.Setup(ctx, unit); err != nil {
//	    return err // errors.Is(err, systemair.ErrNotReady): retry later
//	}
//	if _, err := unit.SyncOnce(ctx); err != nil {
//	    return err
//	}
//	sp, _ := unit.Setpoint()
//	_ = unit.SetSetpoint(sp + 1) // written on the next cycle
//
// Cycles are serialised internally; setters may be called from any goroutine.
package systemair
