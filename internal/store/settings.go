package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateAgentSetting seeds one setting key for an agent. Upsert semantics
// make default-settings creation idempotent.
func (s *Store) CreateAgentSetting(ctx context.Context, schema, agentID, key, value string) error {
	tbl, err := table(schema, "agent_settings")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (agent_id, setting_key, setting_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, setting_key) DO NOTHING`, tbl),
		agentID, key, value,
	)
	if err != nil {
		return fmt.Errorf("create setting %s/%s: %w", agentID, key, err)
	}
	return nil
}

// UpdateAgentSetting changes an existing setting value by key.
func (s *Store) UpdateAgentSetting(ctx context.Context, schema, agentID, key, value string) error {
	tbl, err := table(schema, "agent_settings")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET setting_value = $3 WHERE agent_id = $1 AND setting_key = $2`, tbl),
		agentID, key, value,
	)
	if err != nil {
		return fmt.Errorf("update setting %s/%s: %w", agentID, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("setting %s/%s: %w", agentID, key, ErrNotFound)
	}
	return nil
}

// GetAgentSettings returns all setting rows for an agent. Order is not
// significant; callers index by key.
func (s *Store) GetAgentSettings(ctx context.Context, schema, agentID string) ([]AgentSetting, error) {
	tbl, err := table(schema, "agent_settings")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT agent_id, setting_key, setting_value FROM %s WHERE agent_id = $1`, tbl), agentID)
	if err != nil {
		return nil, fmt.Errorf("get settings %s: %w", agentID, err)
	}
	defer rows.Close()

	var settings []AgentSetting
	for rows.Next() {
		var st AgentSetting
		if err := rows.Scan(&st.AgentID, &st.SettingKey, &st.SettingValue); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// GetLanguageModelSettings returns all setting rows for a language model.
func (s *Store) GetLanguageModelSettings(ctx context.Context, schema, languageModelID string) ([]LanguageModelSetting, error) {
	tbl, err := table(schema, "language_model_settings")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT language_model_id, setting_key, setting_value FROM %s WHERE language_model_id = $1`, tbl), languageModelID)
	if err != nil {
		return nil, fmt.Errorf("get lm settings %s: %w", languageModelID, err)
	}
	defer rows.Close()

	var settings []LanguageModelSetting
	for rows.Next() {
		var st LanguageModelSetting
		if err := rows.Scan(&st.LanguageModelID, &st.SettingKey, &st.SettingValue); err != nil {
			return nil, fmt.Errorf("scan lm setting: %w", err)
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// UpsertLanguageModelSetting writes one language model setting row.
func (s *Store) UpsertLanguageModelSetting(ctx context.Context, schema, languageModelID, key, value string) error {
	tbl, err := table(schema, "language_model_settings")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (language_model_id, setting_key, setting_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (language_model_id, setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value`, tbl),
		languageModelID, key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert lm setting %s/%s: %w", languageModelID, key, err)
	}
	return nil
}

// GetAgentSetting fetches a single setting value by key.
func (s *Store) GetAgentSetting(ctx context.Context, schema, agentID, key string) (string, error) {
	tbl, err := table(schema, "agent_settings")
	if err != nil {
		return "", err
	}
	var value string
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT setting_value FROM %s WHERE agent_id = $1 AND setting_key = $2`, tbl),
		agentID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("setting %s/%s: %w", agentID, key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s/%s: %w", agentID, key, err)
	}
	return value, nil
}
