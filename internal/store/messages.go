package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateMessage persists one conversation turn.
func (s *Store) CreateMessage(ctx context.Context, schema string, m *Message) error {
	tbl, err := table(schema, "messages")
	if err != nil {
		return err
	}
	var responseData []byte
	if m.ResponseData != nil {
		responseData, err = json.Marshal(m.ResponseData)
		if err != nil {
			return fmt.Errorf("marshal response_data: %w", err)
		}
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, message_role, message_content, response_data, agent_id, attachment_id, replies_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, tbl),
		m.ID, m.MessageRole, m.MessageContent, responseData, m.AgentID, m.AttachmentID, m.RepliesTo,
	)
	if err != nil {
		return fmt.Errorf("create message %s: %w", m.ID, err)
	}
	return nil
}

// GetMessage retrieves one message by ID.
func (s *Store) GetMessage(ctx context.Context, schema, id string) (*Message, error) {
	tbl, err := table(schema, "messages")
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, message_role, message_content, response_data, agent_id, attachment_id, replies_to, created_at
		FROM %s WHERE id = $1`, tbl), id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

// ListMessages returns an agent's messages ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, schema, agentID string) ([]*Message, error) {
	tbl, err := table(schema, "messages")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, message_role, message_content, response_data, agent_id, attachment_id, replies_to, created_at
		FROM %s WHERE agent_id = $1 ORDER BY created_at`, tbl), agentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMessage removes one message row along with any replies to it.
func (s *Store) DeleteMessage(ctx context.Context, schema, id string) error {
	tbl, err := table(schema, "messages")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 OR replies_to = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var responseData []byte
	if err := row.Scan(&m.ID, &m.MessageRole, &m.MessageContent, &responseData,
		&m.AgentID, &m.AttachmentID, &m.RepliesTo, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(responseData) > 0 {
		if err := json.Unmarshal(responseData, &m.ResponseData); err != nil {
			return nil, fmt.Errorf("unmarshal response_data: %w", err)
		}
	}
	return &m, nil
}
