// Package history keeps a local audit log of sync cycles.
//
// The log is informational only. Unit state is never restored from it;
// every restart starts from a fresh read of the unit.
package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// Entry is one recorded sync cycle.
type Entry struct {
	ID            int64               `json:"id"`
	CycleID       string              `json:"cycle_id"`
	UnitID        string              `json:"unit_id"`
	Trigger       string              `json:"trigger"`
	Success       bool                `json:"success"`
	Wrote         bool                `json:"wrote"`
	WriteAccepted bool                `json:"write_accepted"`
	Dirty         bool                `json:"dirty"`
	Registers     systemair.RawValues `json:"registers,omitempty"`
	Error         string              `json:"error,omitempty"`
	DurationMS    int64               `json:"duration_ms"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Repository stores and retrieves sync cycle history.
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	// RecordCycle appends an entry. CreatedAt defaults to now.
	RecordCycle(ctx context.Context, e Entry) error

	// GetHistory returns recent entries for unitID, newest first.
	// limit is clamped to [1, 200]; zero or negative means 50.
	GetHistory(ctx context.Context, unitID string, limit int) ([]Entry, error)

	// PruneHistory deletes entries older than olderThan and returns the count.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
