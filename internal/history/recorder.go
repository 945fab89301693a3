package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
)

// recordTimeout bounds a single insert.
const recordTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Recorder writes one Entry per coordinator cycle.
type Recorder struct {
	repo   Repository
	unitID string
	logger Logger
}

// NewRecorder creates a recorder for unitID. logger may be nil.
func NewRecorder(repo Repository, unitID string, logger Logger) *Recorder {
	return &Recorder{repo: repo, unitID: unitID, logger: logger}
}

// OnCycle implements coordinator.Listener.
func (r *Recorder) OnCycle(rep coordinator.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.RecordCycle(ctx, EntryFromReport(r.unitID, rep)); err != nil && r.logger != nil {
		r.logger.Warn("recording sync history failed", "unit", r.unitID, "error", err)
	}
}

// EntryFromReport converts a cycle report to a history entry.
func EntryFromReport(unitID string, rep coordinator.Report) Entry {
	e := Entry{
		CycleID:       rep.CycleID.String(),
		UnitID:        unitID,
		Trigger:       string(rep.Trigger),
		Success:       rep.Err == nil,
		Wrote:         rep.Result.Wrote,
		WriteAccepted: rep.Result.WriteAccepted,
		Dirty:         rep.Result.Dirty,
		Registers:     rep.Result.Values,
		DurationMS:    rep.Result.Duration.Milliseconds(),
		CreatedAt:     rep.At,
	}
	if rep.Err != nil {
		e.Error = rep.Err.Error()
	}
	return e
}

var _ coordinator.Listener = (*Recorder)(nil)
