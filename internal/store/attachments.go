package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateAttachment stores an uploaded or generated attachment.
func (s *Store) CreateAttachment(ctx context.Context, schema string, a *Attachment) error {
	tbl, err := table(schema, "attachments")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, file_name, raw_content, parsed_content)
		VALUES ($1, $2, $3, $4)`, tbl),
		a.ID, a.FileName, a.RawContent, a.ParsedContent,
	)
	if err != nil {
		return fmt.Errorf("create attachment %s: %w", a.ID, err)
	}
	return nil
}

// GetAttachment retrieves an attachment including its raw content.
func (s *Store) GetAttachment(ctx context.Context, schema, id string) (*Attachment, error) {
	tbl, err := table(schema, "attachments")
	if err != nil {
		return nil, err
	}
	var a Attachment
	err = s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, file_name, raw_content, parsed_content, created_at
		FROM %s WHERE id = $1`, tbl), id).
		Scan(&a.ID, &a.FileName, &a.RawContent, &a.ParsedContent, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", id, err)
	}
	return &a, nil
}

// DeleteAttachment removes an attachment row.
func (s *Store) DeleteAttachment(ctx context.Context, schema, id string) error {
	tbl, err := table(schema, "attachments")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	return nil
}
