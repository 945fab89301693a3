// Package coordinator schedules sync cycles for a unit and tracks whether
// the unit is currently reachable.
//
// A Coordinator must complete one successful FirstRefresh before it is
// ready; only then may Start begin periodic polling. After that a failing
// cycle only flips availability, polling carries on and the next success
// restores it. Cycles never overlap: they run on a single goroutine and the
// next one is scheduled a full interval after the previous one finished.
//
// Listeners registered with Subscribe receive a Report after every cycle.
package coordinator
