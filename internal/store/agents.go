package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CreateAgent inserts a new agent row.
func (s *Store) CreateAgent(ctx context.Context, schema string, a *Agent) error {
	tbl, err := table(schema, "agents")
	if err != nil {
		return err
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.IsActive = true
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, agent_name, agent_type, agent_summary, language_model_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, tbl),
		a.ID, a.AgentName, a.AgentType, a.AgentSummary, a.LanguageModelID, a.IsActive, now,
	)
	if err != nil {
		return fmt.Errorf("create agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves a single active agent by ID.
func (s *Store) GetAgent(ctx context.Context, schema, id string) (*Agent, error) {
	tbl, err := table(schema, "agents")
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, agent_name, agent_type, agent_summary, language_model_id, is_active, created_at, updated_at
		FROM %s WHERE id = $1 AND is_active`, tbl), id)

	var a Agent
	err = row.Scan(&a.ID, &a.AgentName, &a.AgentType, &a.AgentSummary,
		&a.LanguageModelID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// ListAgents returns all active agents in the tenant schema.
func (s *Store) ListAgents(ctx context.Context, schema string) ([]*Agent, error) {
	tbl, err := table(schema, "agents")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, agent_name, agent_type, agent_summary, language_model_id, is_active, created_at, updated_at
		FROM %s WHERE is_active ORDER BY created_at`, tbl))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.AgentName, &a.AgentType, &a.AgentSummary,
			&a.LanguageModelID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// UpdateAgent updates the mutable fields of an agent.
func (s *Store) UpdateAgent(ctx context.Context, schema string, a *Agent) error {
	tbl, err := table(schema, "agents")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET agent_name = $2, agent_summary = $3, language_model_id = $4, updated_at = now()
		WHERE id = $1 AND is_active`, tbl),
		a.ID, a.AgentName, a.AgentSummary, a.LanguageModelID,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// DeactivateAgent soft-deletes an agent; its settings cascade out of use
// with it but are never deleted individually.
func (s *Store) DeactivateAgent(ctx context.Context, schema, id string) error {
	tbl, err := table(schema, "agents")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET is_active = false, updated_at = now() WHERE id = $1 AND is_active`, tbl), id)
	if err != nil {
		return fmt.Errorf("deactivate agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}
