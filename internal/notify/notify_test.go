package notify

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func startNotifier(t *testing.T) *Notifier {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	n, err := New("redis://"+endpoint, "task_updates", zap.NewNop())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func TestSubscribeFiltersByAgent(t *testing.T) {
	n := startNotifier(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch := n.Subscribe(ctx, "agent-a")
	// Give the subscription time to land before publishing.
	time.Sleep(200 * time.Millisecond)

	updates := []*TaskProgress{
		{AgentID: "agent-b", Status: StatusCompleted, MessageContent: "other"},
		{AgentID: "agent-a", Status: StatusInProgress},
		{AgentID: "agent-a", Status: StatusCompleted, MessageContent: "done"},
	}
	for _, u := range updates {
		if err := n.PublishUpdate(ctx, u); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var got []*TaskProgress
	for len(got) < 2 {
		select {
		case tp := <-ch:
			got = append(got, tp)
		case <-ctx.Done():
			t.Fatalf("timed out, received %d updates", len(got))
		}
	}
	if got[0].Status != StatusInProgress || got[1].Status != StatusCompleted {
		t.Errorf("got statuses %q, %q; want in_progress then completed", got[0].Status, got[1].Status)
	}
	for _, tp := range got {
		if tp.AgentID != "agent-a" {
			t.Errorf("leaked update for agent %q", tp.AgentID)
		}
	}
	if got[1].MessageContent != "done" {
		t.Errorf("message content %q, want %q", got[1].MessageContent, "done")
	}
}
