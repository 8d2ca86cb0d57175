// Package checkpoint persists workflow thread snapshots in PostgreSQL.
// Checkpoints live in their own database so agent state history can be
// scaled and retained independently of the domain tables.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/graph"
)

const ddl = `CREATE TABLE IF NOT EXISTS workflow_checkpoints (
	thread_id TEXT PRIMARY KEY,
	next_node TEXT NOT NULL,
	step INT NOT NULL,
	state JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Saver stores one JSON snapshot per thread, overwritten on every node
// transition. It implements graph.Checkpointer.
type Saver struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New connects to the checkpoint database and creates the checkpoint table
// if missing.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Saver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect checkpoint db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping checkpoint db: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure checkpoint table: %w", err)
	}
	logger.Info("checkpoint store ready")
	return &Saver{db: pool, logger: logger}, nil
}

func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_checkpoints (thread_id, next_node, step, state, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (thread_id) DO UPDATE
		 SET next_node = EXCLUDED.next_node, step = EXCLUDED.step,
		     state = EXCLUDED.state, updated_at = now()`,
		ckpt.ThreadID, ckpt.Next, ckpt.Step, []byte(ckpt.State))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", ckpt.ThreadID, err)
	}
	return nil
}

func (s *Saver) Get(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	ckpt := &graph.Checkpoint{ThreadID: threadID}
	var state []byte
	err := s.db.QueryRow(ctx,
		`SELECT next_node, step, state, updated_at
		 FROM workflow_checkpoints WHERE thread_id = $1`, threadID).
		Scan(&ckpt.Next, &ckpt.Step, &state, &ckpt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	ckpt.State = state
	return ckpt, nil
}

// DeleteThread discards a thread's history so the next invocation starts
// from the entry node.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM workflow_checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoints %s: %w", threadID, err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Saver) Close() {
	s.db.Close()
}
