package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateIntegration inserts an integration row.
func (s *Store) CreateIntegration(ctx context.Context, schema string, in *Integration) error {
	tbl, err := table(schema, "integrations")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, integration_type) VALUES ($1, $2)`, tbl),
		in.ID, in.IntegrationType,
	)
	if err != nil {
		return fmt.Errorf("create integration %s: %w", in.ID, err)
	}
	return nil
}

// GetIntegration retrieves an integration by ID.
func (s *Store) GetIntegration(ctx context.Context, schema, id string) (*Integration, error) {
	tbl, err := table(schema, "integrations")
	if err != nil {
		return nil, err
	}
	var in Integration
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, integration_type, created_at FROM %s WHERE id = $1`, tbl), id).
		Scan(&in.ID, &in.IntegrationType, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("integration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get integration %s: %w", id, err)
	}
	return &in, nil
}

// ListIntegrations returns all integrations in the tenant schema.
func (s *Store) ListIntegrations(ctx context.Context, schema string) ([]*Integration, error) {
	tbl, err := table(schema, "integrations")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT id, integration_type, created_at FROM %s ORDER BY created_at`, tbl))
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []*Integration
	for rows.Next() {
		var in Integration
		if err := rows.Scan(&in.ID, &in.IntegrationType, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}

// CreateLanguageModel inserts a language model row.
func (s *Store) CreateLanguageModel(ctx context.Context, schema string, lm *LanguageModel) error {
	tbl, err := table(schema, "language_models")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, integration_id, language_model_tag) VALUES ($1, $2, $3)`, tbl),
		lm.ID, lm.IntegrationID, lm.LanguageModelTag,
	)
	if err != nil {
		return fmt.Errorf("create language model %s: %w", lm.ID, err)
	}
	return nil
}

// GetLanguageModel retrieves a language model by ID.
func (s *Store) GetLanguageModel(ctx context.Context, schema, id string) (*LanguageModel, error) {
	tbl, err := table(schema, "language_models")
	if err != nil {
		return nil, err
	}
	var lm LanguageModel
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, integration_id, language_model_tag, created_at FROM %s WHERE id = $1`, tbl), id).
		Scan(&lm.ID, &lm.IntegrationID, &lm.LanguageModelTag, &lm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("language model %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get language model %s: %w", id, err)
	}
	return &lm, nil
}

// ListLanguageModels returns all language models in the tenant schema.
func (s *Store) ListLanguageModels(ctx context.Context, schema string) ([]*LanguageModel, error) {
	tbl, err := table(schema, "language_models")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT id, integration_id, language_model_tag, created_at FROM %s ORDER BY created_at`, tbl))
	if err != nil {
		return nil, fmt.Errorf("list language models: %w", err)
	}
	defer rows.Close()

	var out []*LanguageModel
	for rows.Next() {
		var lm LanguageModel
		if err := rows.Scan(&lm.ID, &lm.IntegrationID, &lm.LanguageModelTag, &lm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan language model: %w", err)
		}
		out = append(out, &lm)
	}
	return out, rows.Err()
}

// UpdateLanguageModel rewrites the integration binding and model tag.
func (s *Store) UpdateLanguageModel(ctx context.Context, schema string, lm *LanguageModel) error {
	tbl, err := table(schema, "language_models")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET integration_id = $2, language_model_tag = $3 WHERE id = $1`, tbl),
		lm.ID, lm.IntegrationID, lm.LanguageModelTag,
	)
	if err != nil {
		return fmt.Errorf("update language model %s: %w", lm.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("language model %s: %w", lm.ID, ErrNotFound)
	}
	return nil
}

// DeleteLanguageModel removes a language model row and its settings.
func (s *Store) DeleteLanguageModel(ctx context.Context, schema, id string) error {
	tbl, err := table(schema, "language_models")
	if err != nil {
		return err
	}
	settings, err := table(schema, "language_model_settings")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE language_model_id = $1`, settings), id); err != nil {
		return fmt.Errorf("delete language model settings %s: %w", id, err)
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete language model %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("language model %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteIntegration removes an integration row. Language models still
// referencing it make the delete fail with a foreign key error.
func (s *Store) DeleteIntegration(ctx context.Context, schema, id string) error {
	tbl, err := table(schema, "integrations")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete integration %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("integration %s: %w", id, ErrNotFound)
	}
	return nil
}
