package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mistakeknot/concord/internal/core"
)

func (s *Store) CreateTask(ctx context.Context, task core.Task) (core.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = core.TaskStatusAvailable
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, status, priority, org_id, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, string(task.Status), task.Priority, task.OrgID,
		task.ProjectID, formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return core.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (core.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT id, title, status, priority, org_id, project_id, claimed_by, claimed_at,
		        assigned_to, assigned_by, assigned_at, created_at, updated_at
		 FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, core.TaskNotFound(id)
	}
	return task, err
}

// ClaimTask is the pull-model ownership acquisition. The preconditions
// (task available, no ownership edge, agent present under the org) live in
// the WHERE clause of one UPDATE; the affected-row count is the entire
// synchronization story. Zero rows triggers the diagnostic read, which is
// best-effort and can itself lose a race, hence the CLAIM_FAILED fallback.
func (s *Store) ClaimTask(ctx context.Context, taskID, agentID, orgID string) (core.Task, core.Agent, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Task{}, core.Agent{}, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'in_progress', claimed_by = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ?
		   AND status = 'available'
		   AND claimed_by IS NULL
		   AND assigned_to IS NULL
		   AND EXISTS (SELECT 1 FROM agents WHERE id = ? AND (? = '' OR org_id = ?))`,
		agentID, formatTime(now), formatTime(now), taskID, agentID, orgID, orgID,
	)
	if err != nil {
		return core.Task{}, core.Agent{}, fmt.Errorf("claim write: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Task{}, core.Agent{}, fmt.Errorf("claim rows: %w", err)
	}
	if n == 0 {
		tx.Rollback()
		return core.Task{}, core.Agent{}, s.classifyClaim(ctx, taskID, agentID, orgID, true)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET status = 'busy', updated_at = ? WHERE id = ?`,
		formatTime(now), agentID,
	); err != nil {
		return core.Task{}, core.Agent{}, fmt.Errorf("claim agent status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Task{}, core.Agent{}, fmt.Errorf("commit claim: %w", err)
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return core.Task{}, core.Agent{}, err
	}
	agent, err := s.GetAgent(ctx, orgID, agentID)
	if err != nil {
		return core.Task{}, core.Agent{}, err
	}
	return task, agent, nil
}

// AssignTask is the push-model counterpart: an orchestrator hands the task
// to an agent. Assignable statuses are available and pending.
func (s *Store) AssignTask(ctx context.Context, taskID, agentID, orchestratorID, orgID string, priority *int) (core.Task, error) {
	now := s.now()
	query := `UPDATE tasks SET status = 'assigned', assigned_to = ?, assigned_by = ?, assigned_at = ?, updated_at = ?`
	args := []any{agentID, orchestratorID, formatTime(now), formatTime(now)}
	if priority != nil {
		query += ", priority = ?"
		args = append(args, *priority)
	}
	query += ` WHERE id = ?
	   AND status IN ('available', 'pending')
	   AND claimed_by IS NULL
	   AND assigned_to IS NULL
	   AND EXISTS (SELECT 1 FROM agents WHERE id = ? AND (? = '' OR org_id = ?))`
	args = append(args, taskID, agentID, orgID, orgID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.Task{}, fmt.Errorf("assign write: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Task{}, fmt.Errorf("assign rows: %w", err)
	}
	if n == 0 {
		return core.Task{}, s.classifyClaim(ctx, taskID, agentID, orgID, false)
	}
	return s.GetTask(ctx, taskID)
}

// classifyClaim runs the diagnostic read after a failed conditional write
// and feeds the snapshot to the pure classifier. The read is not atomic
// with the write; an inconclusive snapshot maps to the generic failure.
func (s *Store) classifyClaim(ctx context.Context, taskID, agentID, orgID string, claim bool) error {
	st := core.OwnershipState{}

	var status string
	var claimedBy, assignedTo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, claimed_by, assigned_to FROM tasks WHERE id = ?`, taskID,
	).Scan(&status, &claimedBy, &assignedTo)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// task missing; fall through with TaskExists false
	case err != nil:
		return fmt.Errorf("diagnose task: %w", err)
	default:
		st.TaskExists = true
		st.TaskStatus = core.TaskStatus(status)
		st.ClaimedBy = claimedBy.String
		st.AssignedTo = assignedTo.String
	}

	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM agents WHERE id = ? AND (? = '' OR org_id = ?)`, agentID, orgID, orgID,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("diagnose agent: %w", err)
	default:
		st.AgentExists = true
	}

	if st.ClaimedBy != "" {
		st.ClaimedName = s.agentName(ctx, st.ClaimedBy)
	}
	if st.AssignedTo != "" {
		st.AssignedName = s.agentName(ctx, st.AssignedTo)
	}

	if claim {
		return core.ClassifyClaimConflict(st)
	}
	return core.ClassifyAssignConflict(st)
}

func (s *Store) agentName(ctx context.Context, id string) string {
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM agents WHERE id = ?`, id).Scan(&name); err != nil {
		return ""
	}
	return name
}

func scanTask(row scanner) (core.Task, error) {
	var t core.Task
	var projectID, claimedBy, claimedAt, assignedTo, assignedBy, assignedAt sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Title, &status, &t.Priority, &t.OrgID, &projectID,
		&claimedBy, &claimedAt, &assignedTo, &assignedBy, &assignedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Task{}, err
		}
		return core.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = core.TaskStatus(status)
	t.ProjectID = projectID.String
	t.ClaimedBy = claimedBy.String
	t.ClaimedAt = parseTimePtr(claimedAt)
	t.AssignedTo = assignedTo.String
	t.AssignedBy = assignedBy.String
	t.AssignedAt = parseTimePtr(assignedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}
