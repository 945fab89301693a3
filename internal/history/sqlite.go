package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampFormat is fixed-width so created_at sorts lexically.
	timestampFormat = "2006-01-02T15:04:05.000000Z"
)

// ErrUnitRequired is returned when an entry or query has no unit id.
var ErrUnitRequired = errors.New("history: unit id is required")

// SQLiteRepository implements Repository on the sync_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordCycle inserts e.
func (r *SQLiteRepository) RecordCycle(ctx context.Context, e Entry) error {
	if e.UnitID == "" {
		return ErrUnitRequired
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var registers sql.NullString
	if len(e.Registers) > 0 {
		data, err := json.Marshal(e.Registers)
		if err != nil {
			return fmt.Errorf("marshalling registers: %w", err)
		}
		registers = sql.NullString{String: string(data), Valid: true}
	}

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_history
		 (cycle_id, unit_id, cycle_trigger, success, wrote, write_accepted, dirty, registers, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID,
		e.UnitID,
		e.Trigger,
		boolToInt(e.Success),
		boolToInt(e.Wrote),
		boolToInt(e.WriteAccepted),
		boolToInt(e.Dirty),
		registers,
		errText,
		e.DurationMS,
		e.CreatedAt.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sync history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for unitID, newest first.
func (r *SQLiteRepository) GetHistory(ctx context.Context, unitID string, limit int) ([]Entry, error) {
	if unitID == "" {
		return nil, ErrUnitRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cycle_id, unit_id, cycle_trigger, success, wrote, write_accepted, dirty,
		        registers, error, duration_ms, created_at
		 FROM sync_history
		 WHERE unit_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		unitID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sync history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                               Entry
			success, wrote, accepted, dirty int
			registers, errText              sql.NullString
			createdAt                       string
		)
		if err := rows.Scan(&e.ID, &e.CycleID, &e.UnitID, &e.Trigger, &success, &wrote, &accepted, &dirty,
			&registers, &errText, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning sync history: %w", err)
		}

		e.Success = success != 0
		e.Wrote = wrote != 0
		e.WriteAccepted = accepted != 0
		e.Dirty = dirty != 0
		e.Error = errText.String

		if registers.Valid {
			e.Registers = make(systemair.RawValues)
			if err := json.Unmarshal([]byte(registers.String), &e.Registers); err != nil {
				return nil, fmt.Errorf("unmarshalling registers: %w", err)
			}
		}

		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than now-olderThan.
func (r *SQLiteRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM sync_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting sync history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	if ts, err := time.Parse(timestampFormat, value); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Repository = (*SQLiteRepository)(nil)
