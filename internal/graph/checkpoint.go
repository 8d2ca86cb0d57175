package graph

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Checkpoint is one persisted snapshot of a thread: the serialized state and
// the node execution resumes from. Next set to End marks the thread complete.
type Checkpoint struct {
	ThreadID  string
	Next      string
	Step      int
	State     json.RawMessage
	UpdatedAt time.Time
}

// Checkpointer persists thread snapshots between node transitions.
type Checkpointer interface {
	Put(ctx context.Context, ckpt *Checkpoint) error
	// Get returns the latest checkpoint for a thread, or nil when the
	// thread has never run.
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// MemoryCheckpointer keeps checkpoints in process memory. Suitable for tests
// and for running without a checkpoint database.
type MemoryCheckpointer struct {
	mu    sync.RWMutex
	byKey map[string]*Checkpoint
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{byKey: make(map[string]*Checkpoint)}
}

func (m *MemoryCheckpointer) Put(_ context.Context, ckpt *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ckpt
	cp.State = append(json.RawMessage(nil), ckpt.State...)
	cp.UpdatedAt = time.Now()
	m.byKey[ckpt.ThreadID] = &cp
	return nil
}

func (m *MemoryCheckpointer) Get(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ckpt, ok := m.byKey[threadID]
	if !ok {
		return nil, nil
	}
	cp := *ckpt
	cp.State = append(json.RawMessage(nil), ckpt.State...)
	return &cp, nil
}

func (m *MemoryCheckpointer) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, threadID)
	return nil
}
