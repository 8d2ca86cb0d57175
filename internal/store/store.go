// Package store persists the platform's domain entities in PostgreSQL.
// Every operation takes a tenant schema; isolation between tenants is a
// schema-qualified table name, nothing more.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidField reports a rejected field value before any work happens.
var ErrInvalidField = errors.New("invalid field")

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store with a pgx connection pool.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Store{db: pool, logger: logger}, nil
}

var schemaRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// table returns a schema-qualified table name. Schemas are validated against
// a strict identifier pattern since they end up in SQL text.
func table(schema, name string) (string, error) {
	if !schemaRe.MatchString(schema) {
		return "", fmt.Errorf("%w: tenant schema %q", ErrInvalidField, schema)
	}
	return fmt.Sprintf("%s.%s", schema, name), nil
}

var tenantTables = []string{
	`CREATE TABLE IF NOT EXISTS %s.integrations (
		id UUID PRIMARY KEY,
		integration_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %s.language_models (
		id UUID PRIMARY KEY,
		integration_id UUID NOT NULL REFERENCES %s.integrations(id),
		language_model_tag TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %s.language_model_settings (
		language_model_id UUID NOT NULL REFERENCES %s.language_models(id),
		setting_key TEXT NOT NULL,
		setting_value TEXT NOT NULL,
		PRIMARY KEY (language_model_id, setting_key)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.agents (
		id UUID PRIMARY KEY,
		agent_name TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		agent_summary TEXT NOT NULL DEFAULT '',
		language_model_id UUID NOT NULL REFERENCES %s.language_models(id),
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %s.agent_settings (
		agent_id UUID NOT NULL REFERENCES %s.agents(id),
		setting_key TEXT NOT NULL,
		setting_value TEXT NOT NULL,
		PRIMARY KEY (agent_id, setting_key)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.attachments (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		raw_content BYTEA NOT NULL,
		parsed_content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %s.messages (
		id UUID PRIMARY KEY,
		message_role TEXT NOT NULL,
		message_content TEXT NOT NULL,
		response_data JSONB,
		agent_id UUID NOT NULL REFERENCES %s.agents(id),
		attachment_id UUID REFERENCES %s.attachments(id),
		replies_to UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tenant schema and its tables if missing. Called
// once per tenant at bootstrap; safe to repeat.
func (s *Store) EnsureSchema(ctx context.Context, schema string) error {
	if !schemaRe.MatchString(schema) {
		return fmt.Errorf("%w: tenant schema %q", ErrInvalidField, schema)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	for _, ddl := range tenantTables {
		// Fill every %s with the schema; DDL templates repeat it for
		// self-referencing foreign keys.
		args := make([]any, 0, 3)
		for range 3 {
			args = append(args, schema)
		}
		stmt := fmt.Sprintf(ddl, args[:countVerbs(ddl)]...)
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", schema, err)
		}
	}
	s.logger.Info("tenant schema ready", zap.String("schema", schema))
	return nil
}

func countVerbs(ddl string) int {
	n := 0
	for i := 0; i+1 < len(ddl); i++ {
		if ddl[i] == '%' && ddl[i+1] == 's' {
			n++
		}
	}
	return n
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}
