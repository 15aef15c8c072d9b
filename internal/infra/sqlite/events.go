package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tutu-network/hotplug/internal/domain"
)

// ─── Transition Journal ─────────────────────────────────────────────────────

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	RunID  string
	Action domain.Action // NoOp matches every action
	Failed bool          // only transitions that returned an error
	Since  time.Time
	Limit  int // defaults to 100
}

// InsertEvent appends one transition to the journal.
func (d *DB) InsertEvent(ctx context.Context, e domain.HotplugEvent) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO hotplug_events (id, run_id, at, action, cpu, nr_run, online, error, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.At.UnixNano(), e.Action.String(),
		e.CPU, e.NrRun, e.Online, nullStr(e.Error), int64(e.Duration),
	)
	return err
}

// ListEvents returns matching transitions, newest first.
func (d *DB) ListEvents(ctx context.Context, f EventFilter) ([]domain.HotplugEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Action != domain.NoOp {
		where = append(where, "action = ?")
		args = append(args, f.Action.String())
	}
	if f.Failed {
		where = append(where, "error IS NOT NULL")
	}
	if !f.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}

	query := `SELECT id, run_id, at, action, cpu, nr_run, online, error, duration_ns FROM hotplug_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at DESC, rowid DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.HotplugEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of journaled transitions per action.
func (d *DB) CountEvents(ctx context.Context) (map[domain.Action]int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM hotplug_events GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Action]int)
	for rows.Next() {
		var (
			action domain.Action
			name   string
			n      int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		if err := action.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		counts[action] += n
	}
	return counts, rows.Err()
}

// PruneEvents deletes transitions older than before and returns how many
// were removed.
func (d *DB) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM hotplug_events WHERE at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEvent(s scanner) (domain.HotplugEvent, error) {
	var (
		e        domain.HotplugEvent
		at       int64
		action   string
		errText  sql.NullString
		duration int64
	)
	err := s.Scan(&e.ID, &e.RunID, &at, &action, &e.CPU, &e.NrRun, &e.Online, &errText, &duration)
	if err != nil {
		return e, err
	}
	e.At = time.Unix(0, at)
	e.Duration = time.Duration(duration)
	if errText.Valid {
		e.Error = errText.String
	}
	if err := e.Action.UnmarshalText([]byte(action)); err != nil {
		return e, err
	}
	return e, nil
}
