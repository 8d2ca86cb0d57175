package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/graph"
)

func startSaver(t *testing.T) *Saver {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("checkpoints_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	saver, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("new saver: %v", err)
	}
	t.Cleanup(saver.Close)
	return saver
}

func TestSaverRoundTrip(t *testing.T) {
	saver := startSaver(t)
	ctx := context.Background()

	got, err := saver.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("missing thread returned %+v, want nil", got)
	}

	ckpt := &graph.Checkpoint{
		ThreadID: "thread-1",
		Next:     "generate",
		Step:     3,
		State:    json.RawMessage(`{"messages":["hi"]}`),
	}
	if err := saver.Put(ctx, ckpt); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = saver.Get(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Next != "generate" || got.Step != 3 {
		t.Errorf("got next=%q step=%d, want next=%q step=3", got.Next, got.Step, "generate")
	}

	// Overwrite on the same thread must replace, not accumulate.
	ckpt.Next = graph.End
	ckpt.Step = 4
	if err := saver.Put(ctx, ckpt); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err = saver.Get(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if got.Next != graph.End || got.Step != 4 {
		t.Errorf("got next=%q step=%d, want next=%q step=4", got.Next, got.Step, graph.End)
	}

	if err := saver.DeleteThread(ctx, "thread-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = saver.Get(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Errorf("deleted thread returned %+v, want nil", got)
	}
}
