package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type testState struct {
	Visited        []string `json:"visited"`
	Verdict        string   `json:"verdict"`
	RemainingSteps int      `json:"remaining_steps"`
}

func (s *testState) SetRemainingSteps(n int) { s.RemainingSteps = n }

func visit(name string) NodeFunc[testState] {
	return func(_ context.Context, s *testState) (*Command, error) {
		s.Visited = append(s.Visited, name)
		return nil, nil
	}
}

func TestLinearRun(t *testing.T) {
	b := NewBuilder[testState]("linear")
	b.AddNode("a", visit("a"))
	b.AddNode("b", visit("b"))
	b.AddEdge(Start, "a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)

	wf, err := b.Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := wf.Invoke(context.Background(), &testState{}, Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got, want := strings.Join(out.Visited, ","), "a,b"; got != want {
		t.Errorf("visited %q, want %q", got, want)
	}
}

func TestConditionalRouting(t *testing.T) {
	b := NewBuilder[testState]("cond")
	b.AddNode("grade", func(_ context.Context, s *testState) (*Command, error) {
		s.Visited = append(s.Visited, "grade")
		return nil, nil
	})
	b.AddNode("accept", visit("accept"))
	b.AddNode("retry", visit("retry"))
	b.AddEdge(Start, "grade")
	b.AddConditionalEdge("grade", func(_ context.Context, s *testState) string {
		if s.Verdict == "yes" {
			return "accept"
		}
		return "retry"
	})
	b.AddEdge("accept", End)
	b.AddEdge("retry", End)

	wf, err := b.Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	out, err := wf.Invoke(context.Background(), &testState{Verdict: "yes"}, Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got, want := out.Visited[len(out.Visited)-1], "accept"; got != want {
		t.Errorf("routed to %q, want %q", got, want)
	}

	out, err = wf.Invoke(context.Background(), &testState{Verdict: "almost yes"}, Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got, want := out.Visited[len(out.Visited)-1], "retry"; got != want {
		t.Errorf("routed to %q, want %q", got, want)
	}
}

func TestCommandOverridesEdges(t *testing.T) {
	b := NewBuilder[testState]("cmd")
	b.AddNode("a", func(_ context.Context, s *testState) (*Command, error) {
		s.Visited = append(s.Visited, "a")
		return &Command{Goto: "c"}, nil
	})
	b.AddNode("b", visit("b"))
	b.AddNode("c", visit("c"))
	b.AddEdge(Start, "a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)
	b.AddEdge("c", End)

	wf, err := b.Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := wf.Invoke(context.Background(), &testState{}, Config{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got, want := strings.Join(out.Visited, ","), "a,c"; got != want {
		t.Errorf("visited %q, want %q", got, want)
	}
}

func TestRecursionLimit(t *testing.T) {
	b := NewBuilder[testState]("loop")
	b.AddNode("spin", visit("spin"))
	b.AddEdge(Start, "spin")
	b.AddEdge("spin", "spin")

	wf, err := b.Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = wf.Invoke(context.Background(), &testState{}, Config{RecursionLimit: 5})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("got %v, want ErrRecursionLimit", err)
	}
}

func TestRemainingStepsInjection(t *testing.T) {
	var seen []int
	b := NewBuilder[testState]("steps")
	b.AddNode("n", func(_ context.Context, s *testState) (*Command, error) {
		seen = append(seen, s.RemainingSteps)
		if len(seen) == 3 {
			return &Command{Goto: End}, nil
		}
		return nil, nil
	})
	b.AddEdge(Start, "n")
	b.AddEdge("n", "n")

	wf, err := b.Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := wf.Invoke(context.Background(), &testState{}, Config{RecursionLimit: 10}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(seen) != 3 || seen[0] != 10 || seen[1] != 9 || seen[2] != 8 {
		t.Errorf("remaining steps %v, want [10 9 8]", seen)
	}
}

func TestCheckpointAfterEveryNode(t *testing.T) {
	cp := NewMemoryCheckpointer()
	b := NewBuilder[testState]("ckpt")
	b.AddNode("a", visit("a"))
	b.AddNode("b", visit("b"))
	b.AddEdge(Start, "a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)

	wf, err := b.Compile(cp)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := wf.Invoke(context.Background(), &testState{}, Config{ThreadID: "t1"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	ckpt, err := cp.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ckpt == nil {
		t.Fatal("no checkpoint written")
	}
	if ckpt.Next != End {
		t.Errorf("final next %q, want %q", ckpt.Next, End)
	}
	if ckpt.Step != 2 {
		t.Errorf("final step %d, want 2", ckpt.Step)
	}
}

func TestResumeSkipsCompletedNodes(t *testing.T) {
	cp := NewMemoryCheckpointer()

	build := func(failB bool) *Workflow[testState] {
		b := NewBuilder[testState]("resume")
		b.AddNode("a", visit("a"))
		b.AddNode("b", func(_ context.Context, s *testState) (*Command, error) {
			if failB {
				return nil, errors.New("transient")
			}
			s.Visited = append(s.Visited, "b")
			return nil, nil
		})
		b.AddEdge(Start, "a")
		b.AddEdge("a", "b")
		b.AddEdge("b", End)
		wf, err := b.Compile(cp)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		return wf
	}

	if _, err := build(true).Invoke(context.Background(), &testState{}, Config{ThreadID: "t2"}); err == nil {
		t.Fatal("first invoke should fail at b")
	}
	out, err := build(false).Invoke(context.Background(), &testState{}, Config{ThreadID: "t2"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got, want := strings.Join(out.Visited, ","), "a,b"; got != want {
		t.Errorf("visited %q, want %q (a must not re-run)", got, want)
	}
}

func TestResumeMergesNewInput(t *testing.T) {
	cp := NewMemoryCheckpointer()
	b := NewBuilder[testState]("merge")
	b.AddNode("a", visit("a"))
	b.AddNode("b", func(_ context.Context, s *testState) (*Command, error) {
		if s.Verdict == "" {
			return nil, errors.New("not yet")
		}
		s.Visited = append(s.Visited, "b")
		return nil, nil
	})
	b.AddEdge(Start, "a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)
	b.OnResume(func(restored, input *testState) {
		restored.Verdict = input.Verdict
	})

	wf, err := b.Compile(cp)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := wf.Invoke(context.Background(), &testState{}, Config{ThreadID: "t3"}); err == nil {
		t.Fatal("first invoke should fail at b")
	}
	out, err := wf.Invoke(context.Background(), &testState{Verdict: "go"}, Config{ThreadID: "t3"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got, want := strings.Join(out.Visited, ","), "a,b"; got != want {
		t.Errorf("visited %q, want %q", got, want)
	}
}

func TestSequentialTurnsCarryStateForward(t *testing.T) {
	cp := NewMemoryCheckpointer()
	b := NewBuilder[testState]("turns")
	b.AddNode("reply", func(_ context.Context, s *testState) (*Command, error) {
		last := s.Visited[len(s.Visited)-1]
		s.Visited = append(s.Visited, "reply-"+last)
		return nil, nil
	})
	b.AddEdge(Start, "reply")
	b.AddEdge("reply", End)
	b.OnResume(func(restored, input *testState) {
		restored.Visited = append(restored.Visited, input.Visited...)
	})

	wf, err := b.Compile(cp)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := wf.Invoke(context.Background(), &testState{Visited: []string{"turn1"}}, Config{ThreadID: "t4"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if got, want := strings.Join(out.Visited, ","), "turn1,reply-turn1"; got != want {
		t.Fatalf("first turn %q, want %q", got, want)
	}

	out, err = wf.Invoke(context.Background(), &testState{Visited: []string{"turn2"}}, Config{ThreadID: "t4"})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	want := "turn1,reply-turn1,turn2,reply-turn2"
	if got := strings.Join(out.Visited, ","); got != want {
		t.Errorf("second turn %q, want %q (history must survive a completed turn)", got, want)
	}
}

func TestCompileRejectsDanglingEdges(t *testing.T) {
	b := NewBuilder[testState]("bad")
	b.AddNode("a", visit("a"))
	b.AddEdge(Start, "a")
	b.AddEdge("a", "ghost")
	if _, err := b.Compile(nil); err == nil {
		t.Fatal("compile should reject edge to undeclared node")
	}
}
