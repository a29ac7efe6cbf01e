package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mistakeknot/concord/internal/core"
)

func (s *Store) CreateEpic(ctx context.Context, epic core.Epic) (core.Epic, error) {
	if epic.ID == "" {
		epic.ID = uuid.NewString()
	}
	now := s.now()
	if epic.CreatedAt.IsZero() {
		epic.CreatedAt = now
	}
	epic.UpdatedAt = now
	if epic.Status == "" {
		epic.Status = core.LifecycleActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epics (id, graph_id, title, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		epic.ID, epic.GraphID, epic.Title, string(epic.Status),
		formatTime(epic.CreatedAt), formatTime(epic.UpdatedAt),
	)
	if err != nil {
		return core.Epic{}, fmt.Errorf("create epic: %w", err)
	}
	return epic, nil
}

func (s *Store) GetEpic(ctx context.Context, graphID, id string) (core.Epic, error) {
	epic, err := scanEpic(s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, title, status, status_updated_at, status_updated_by, created_at, updated_at
		 FROM epics WHERE id = ? AND graph_id = ?`, id, graphID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Epic{}, &core.NotFoundError{Code: core.CodeEpicNotFound, Message: fmt.Sprintf("epic %s not found", id)}
	}
	return epic, err
}

// UpdateEpicStatus commits the transition and returns the previous status.
// The read and guarded write share one immediate transaction, so the
// previous status reported is exactly the one replaced.
func (s *Store) UpdateEpicStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Epic, core.LifecycleStatus, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Epic{}, "", fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM epics WHERE id = ? AND graph_id = ?`, id, graphID,
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Epic{}, "", &core.NotFoundError{Code: core.CodeEpicNotFound, Message: fmt.Sprintf("epic %s not found", id)}
	}
	if err != nil {
		return core.Epic{}, "", fmt.Errorf("read epic status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE epics SET status = ?, status_updated_at = ?, status_updated_by = ?, updated_at = ?
		 WHERE id = ? AND graph_id = ? AND status = ?`,
		string(status), formatTime(now), changedBy, formatTime(now), id, graphID, previous,
	); err != nil {
		return core.Epic{}, "", fmt.Errorf("update epic status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Epic{}, "", fmt.Errorf("commit status update: %w", err)
	}

	epic, err := s.GetEpic(ctx, graphID, id)
	if err != nil {
		return core.Epic{}, "", err
	}
	return epic, core.LifecycleStatus(previous), nil
}

func (s *Store) CreateSprint(ctx context.Context, sprint core.Sprint) (core.Sprint, error) {
	if sprint.ID == "" {
		sprint.ID = uuid.NewString()
	}
	now := s.now()
	if sprint.CreatedAt.IsZero() {
		sprint.CreatedAt = now
	}
	sprint.UpdatedAt = now
	if sprint.Status == "" {
		sprint.Status = core.LifecycleActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sprints (id, graph_id, name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sprint.ID, sprint.GraphID, sprint.Name, string(sprint.Status),
		formatTime(sprint.CreatedAt), formatTime(sprint.UpdatedAt),
	)
	if err != nil {
		return core.Sprint{}, fmt.Errorf("create sprint: %w", err)
	}
	return sprint, nil
}

func (s *Store) GetSprint(ctx context.Context, graphID, id string) (core.Sprint, error) {
	sprint, err := scanSprint(s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, name, status, status_updated_at, status_updated_by, created_at, updated_at
		 FROM sprints WHERE id = ? AND graph_id = ?`, id, graphID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sprint{}, &core.NotFoundError{Code: core.CodeSprintNotFound, Message: fmt.Sprintf("sprint %s not found", id)}
	}
	return sprint, err
}

func (s *Store) UpdateSprintStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Sprint, core.LifecycleStatus, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Sprint{}, "", fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM sprints WHERE id = ? AND graph_id = ?`, id, graphID,
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sprint{}, "", &core.NotFoundError{Code: core.CodeSprintNotFound, Message: fmt.Sprintf("sprint %s not found", id)}
	}
	if err != nil {
		return core.Sprint{}, "", fmt.Errorf("read sprint status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sprints SET status = ?, status_updated_at = ?, status_updated_by = ?, updated_at = ?
		 WHERE id = ? AND graph_id = ? AND status = ?`,
		string(status), formatTime(now), changedBy, formatTime(now), id, graphID, previous,
	); err != nil {
		return core.Sprint{}, "", fmt.Errorf("update sprint status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Sprint{}, "", fmt.Errorf("commit status update: %w", err)
	}

	sprint, err := s.GetSprint(ctx, graphID, id)
	if err != nil {
		return core.Sprint{}, "", err
	}
	return sprint, core.LifecycleStatus(previous), nil
}

func scanEpic(row scanner) (core.Epic, error) {
	var e core.Epic
	var statusUpdatedAt, statusUpdatedBy sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.GraphID, &e.Title, &status, &statusUpdatedAt, &statusUpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Epic{}, err
		}
		return core.Epic{}, fmt.Errorf("scan epic: %w", err)
	}
	e.Status = core.LifecycleStatus(status)
	e.StatusUpdatedAt = parseTimePtr(statusUpdatedAt)
	e.StatusUpdatedBy = statusUpdatedBy.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func scanSprint(row scanner) (core.Sprint, error) {
	var sp core.Sprint
	var statusUpdatedAt, statusUpdatedBy sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&sp.ID, &sp.GraphID, &sp.Name, &status, &statusUpdatedAt, &statusUpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Sprint{}, err
		}
		return core.Sprint{}, fmt.Errorf("scan sprint: %w", err)
	}
	sp.Status = core.LifecycleStatus(status)
	sp.StatusUpdatedAt = parseTimePtr(statusUpdatedAt)
	sp.StatusUpdatedBy = statusUpdatedBy.String
	sp.CreatedAt = parseTime(createdAt)
	sp.UpdatedAt = parseTime(updatedAt)
	return sp, nil
}
