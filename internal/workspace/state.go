package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wepp/internal/archive"
	"wepp/internal/peaks"
)

// Position is the segment being annotated.
type Position struct {
	Recording int
	Segment   int
}

// State is everything needed to resume a session.
type State struct {
	Dataset    string
	Recordings []string
	NextID     int64
	Position   Position
	Archive    archive.Snapshot
	UpdatedAt  time.Time
}

// Save replaces the stored session with state.
func (s *Store) Save(ctx context.Context, state State) error {
	if ctx == nil {
		ctx = context.Background()
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	modified := make(map[archive.Cell]bool, len(state.Archive.Modified))
	for _, cell := range state.Archive.Modified {
		modified[cell] = true
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM picks",
			"DELETE FROM cells",
			"DELETE FROM recordings",
			"DELETE FROM session_state",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_state (
                id, dataset, uploaded, next_id, counter, completed,
                current_recording, current_segment, updated_at
            ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
			state.Dataset,
			state.Archive.Watermark.Uploaded,
			state.NextID,
			state.Archive.Counter,
			boolToInt(state.Archive.Completed),
			state.Position.Recording,
			state.Position.Segment,
			updated.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert session state: %w", err)
		}

		for idx, name := range state.Recordings {
			if _, err := tx.ExecContext(ctx, "INSERT INTO recordings (idx, name) VALUES (?, ?)", idx, name); err != nil {
				return fmt.Errorf("insert recording %s: %w", name, err)
			}
		}

		for _, saved := range state.Archive.Cells {
			cell := saved.Cell
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO cells (recording, segment, modified) VALUES (?, ?, ?)",
				cell.Recording, cell.Segment, boolToInt(modified[cell]),
			); err != nil {
				return fmt.Errorf("insert cell %d/%d: %w", cell.Recording, cell.Segment, err)
			}
			for pos, rec := range saved.Records {
				payload, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("encode pick %d: %w", rec.RecordID, err)
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO picks (recording, segment, position, record_id, channel, polarity, payload)
                     VALUES (?, ?, ?, ?, ?, ?, ?)`,
					cell.Recording, cell.Segment, pos, rec.RecordID, rec.Channel, rec.Polarity.Wire(), string(payload),
				); err != nil {
					return fmt.Errorf("insert pick %d: %w", rec.RecordID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored session. The second result is false when nothing
// has been saved yet.
func (s *Store) Load(ctx context.Context) (State, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		state      State
		completed  int
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dataset, uploaded, next_id, counter, completed,
                current_recording, current_segment, updated_at
         FROM session_state WHERE id = 1`,
	).Scan(
		&state.Dataset,
		&state.Archive.Watermark.Uploaded,
		&state.NextID,
		&state.Archive.Counter,
		&completed,
		&state.Position.Recording,
		&state.Position.Segment,
		&updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load session state: %w", err)
	}
	state.Archive.Completed = completed != 0
	state.Archive.Watermark.Pending = state.Archive.Watermark.Uploaded
	if ts, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		state.UpdatedAt = ts
	}

	if state.Recordings, err = s.loadRecordings(ctx); err != nil {
		return State{}, false, err
	}
	if err := s.loadCells(ctx, &state.Archive); err != nil {
		return State{}, false, err
	}
	return state, true, nil
}

func (s *Store) loadRecordings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM recordings ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) loadCells(ctx context.Context, snap *archive.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT recording, segment, modified FROM cells ORDER BY recording, segment")
	if err != nil {
		return fmt.Errorf("query cells: %w", err)
	}
	index := make(map[archive.Cell]int)
	for rows.Next() {
		var (
			cell     archive.Cell
			modified int
		)
		if err := rows.Scan(&cell.Recording, &cell.Segment, &modified); err != nil {
			rows.Close()
			return fmt.Errorf("scan cell: %w", err)
		}
		index[cell] = len(snap.Cells)
		snap.Cells = append(snap.Cells, archive.SavedCell{Cell: cell, Records: []peaks.Record{}})
		if modified != 0 {
			snap.Modified = append(snap.Modified, cell)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate cells: %w", err)
	}
	rows.Close()

	picks, err := s.db.QueryContext(ctx,
		"SELECT recording, segment, payload FROM picks ORDER BY recording, segment, position")
	if err != nil {
		return fmt.Errorf("query picks: %w", err)
	}
	defer picks.Close()
	for picks.Next() {
		var (
			cell    archive.Cell
			payload string
		)
		if err := picks.Scan(&cell.Recording, &cell.Segment, &payload); err != nil {
			return fmt.Errorf("scan pick: %w", err)
		}
		var rec peaks.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return fmt.Errorf("decode pick in %d/%d: %w", cell.Recording, cell.Segment, err)
		}
		i, ok := index[cell]
		if !ok {
			continue
		}
		snap.Cells[i].Records = append(snap.Cells[i].Records, rec)
	}
	return picks.Err()
}

// Reset removes the stored session.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM picks",
			"DELETE FROM cells",
			"DELETE FROM recordings",
			"DELETE FROM session_state",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset workspace: %w", err)
			}
		}
		return nil
	})
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
