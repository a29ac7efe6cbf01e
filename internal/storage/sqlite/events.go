package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage"
)

// AppendEvents writes a batch of activity records inside one transaction.
// Each event is chained to the latest prior event for its (actor, project)
// by a point-in-time lookup, so events appended earlier in the same batch
// are visible as predecessors. Validation failures skip the event and are
// counted; they never roll back inserts already applied in the batch.
func (s *Store) AppendEvents(ctx context.Context, graphID string, events []core.Event) (storage.AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.AppendResult{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var result storage.AppendResult
	for _, ev := range events {
		if ev.ActorID == "" || ev.Category == "" || ev.Description == "" {
			result.Rejected++
			continue
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = s.now()
		}
		if ev.ProjectID == "" {
			ev.ProjectID = graphID
		}

		// Create-if-absent; an existing actor row is never overwritten.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO actors (id, first_seen) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			ev.ActorID, formatTime(ev.Timestamp),
		); err != nil {
			return storage.AppendResult{}, fmt.Errorf("ensure actor: %w", err)
		}

		var prevID sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM events WHERE actor_id = ? AND project_id = ?
			 ORDER BY timestamp DESC, rowid DESC LIMIT 1`,
			ev.ActorID, ev.ProjectID,
		).Scan(&prevID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return storage.AppendResult{}, fmt.Errorf("find chain tail: %w", err)
		}
		ev.PrevID = prevID.String

		filesJSON, _ := json.Marshal(ev.Files)
		tagsJSON, _ := json.Marshal(ev.Tags)
		payloadJSON, _ := json.Marshal(ev.Payload)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, actor_id, org_id, project_id, category, description,
			    timestamp, impact, files_json, tags_json, shared, payload_json, prev_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.ActorID, nullable(ev.OrgID), ev.ProjectID, string(ev.Category), ev.Description,
			formatTime(ev.Timestamp), nullable(ev.Impact), string(filesJSON), string(tagsJSON),
			boolToInt(ev.Shared), string(payloadJSON), nullable(ev.PrevID),
		); err != nil {
			return storage.AppendResult{}, fmt.Errorf("insert event: %w", err)
		}
		result.Receipts = append(result.Receipts, core.EventReceipt{ID: ev.ID, Timestamp: ev.Timestamp})
	}

	if err := tx.Commit(); err != nil {
		return storage.AppendResult{}, fmt.Errorf("commit append: %w", err)
	}
	return result, nil
}

// EventChain returns the events for (actor, project) in chain order,
// oldest first. With a limit, the newest events win.
func (s *Store) EventChain(ctx context.Context, actorID, projectID string, limit int) ([]core.Event, error) {
	query := `SELECT id, actor_id, org_id, project_id, category, description, timestamp,
	       impact, files_json, tags_json, shared, payload_json, prev_id
	 FROM events WHERE actor_id = ? AND project_id = ?
	 ORDER BY timestamp DESC, rowid DESC`
	args := []any{actorID, projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// Reverse into chain order, oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanEvent(row scanner) (core.Event, error) {
	var ev core.Event
	var orgID, impact, filesJSON, tagsJSON, payloadJSON, prevID sql.NullString
	var category, timestamp string
	var shared int
	err := row.Scan(&ev.ID, &ev.ActorID, &orgID, &ev.ProjectID, &category, &ev.Description,
		&timestamp, &impact, &filesJSON, &tagsJSON, &shared, &payloadJSON, &prevID)
	if err != nil {
		return core.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.OrgID = orgID.String
	ev.Category = core.EventCategory(category)
	ev.Timestamp = parseTime(timestamp)
	ev.Impact = impact.String
	if filesJSON.Valid {
		_ = json.Unmarshal([]byte(filesJSON.String), &ev.Files)
	}
	if tagsJSON.Valid {
		_ = json.Unmarshal([]byte(tagsJSON.String), &ev.Tags)
	}
	if payloadJSON.Valid {
		_ = json.Unmarshal([]byte(payloadJSON.String), &ev.Payload)
	}
	ev.Shared = shared != 0
	ev.PrevID = prevID.String
	return ev, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
