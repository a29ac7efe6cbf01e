package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mistakeknot/concord/internal/core"
)

func (s *Store) RegisterAgent(ctx context.Context, agent core.Agent) (core.Agent, error) {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := s.now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if agent.Status == "" {
		agent.Status = core.AgentStatusActive
	}

	capsJSON, _ := json.Marshal(agent.Capabilities)
	metaJSON, _ := json.Marshal(agent.Metadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, capabilities_json, status, org_id, metadata_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, string(capsJSON), string(agent.Status), agent.OrgID,
		string(metaJSON), formatTime(agent.CreatedAt), formatTime(agent.UpdatedAt),
	)
	if err != nil {
		return core.Agent{}, fmt.Errorf("register agent: %w", err)
	}
	return agent, nil
}

func (s *Store) GetAgent(ctx context.Context, orgID, id string) (core.Agent, error) {
	query := `SELECT id, name, capabilities_json, status, org_id, metadata_json, created_at, updated_at
	 FROM agents WHERE id = ?`
	args := []any{id}
	if orgID != "" {
		query += " AND org_id = ?"
		args = append(args, orgID)
	}
	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Agent{}, core.AgentNotFound(id)
	}
	return agent, err
}

func (s *Store) ListAgents(ctx context.Context, orgID string, limit int) ([]core.Agent, error) {
	query := `SELECT id, name, capabilities_json, status, org_id, metadata_json, created_at, updated_at FROM agents`
	var args []any
	if orgID != "" {
		query += " WHERE org_id = ?"
		args = append(args, orgID)
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []core.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// Heartbeat bumps updated_at and revives offline agents to idle. The write
// is conditional on the agent existing under the caller's org.
func (s *Store) Heartbeat(ctx context.Context, orgID, id string) (core.Agent, error) {
	query := `UPDATE agents SET updated_at = ?,
	   status = CASE WHEN status = 'offline' THEN 'idle' ELSE status END
	 WHERE id = ?`
	args := []any{formatTime(s.now()), id}
	if orgID != "" {
		query += " AND org_id = ?"
		args = append(args, orgID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.Agent{}, fmt.Errorf("heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Agent{}, core.AgentNotFound(id)
	}
	return s.GetAgent(ctx, orgID, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (core.Agent, error) {
	var a core.Agent
	var capsJSON, metaJSON sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.Name, &capsJSON, &status, &a.OrgID, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Agent{}, err
		}
		return core.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	if capsJSON.Valid {
		_ = json.Unmarshal([]byte(capsJSON.String), &a.Capabilities)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &a.Metadata)
	}
	a.Status = core.AgentStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, nil
}
