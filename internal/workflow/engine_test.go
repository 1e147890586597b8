package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"parley/internal/eventbus"
)

func newTestEngine(t *testing.T) *Engine {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "wf.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := NewEngine(db, eventbus.New())
	if err != nil {
		t.Fatal(err)
	}
	engine.SetRetryDelay(time.Millisecond)
	return engine
}

func TestRunCompletesAndJournalsSteps(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var order []string
	engine.Register(Pipeline{
		Name: "greet",
		Steps: []Step{
			{Name: "first", Run: func(ctx context.Context, run *Run) (any, error) {
				order = append(order, "first")
				return map[string]string{"who": run.Param("name")}, nil
			}},
			{Name: "second", Run: func(ctx context.Context, run *Run) (any, error) {
				order = append(order, "second")
				var prev map[string]string
				if ok, err := run.Decode("first", &prev); err != nil || !ok {
					return nil, fmt.Errorf("missing first result")
				}
				return "hello " + prev["who"], nil
			}},
		},
	})

	id, err := engine.Start(ctx, "greet", map[string]string{"name": "ada"})
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected step order: %v", order)
	}

	status, err := engine.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusComplete {
		t.Fatalf("expected complete, got %s", status)
	}

	result, err := engine.Result(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatal(err)
	}
	if out != "hello ada" {
		t.Fatalf("expected final result of last step, got %q", out)
	}
}

func TestStepRetriesThenSucceeds(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var attempts atomic.Int32
	engine.Register(Pipeline{
		Name: "flaky",
		Steps: []Step{
			{Name: "wobble", Retries: 3, Run: func(ctx context.Context, run *Run) (any, error) {
				if attempts.Add(1) < 3 {
					return nil, errors.New("transient")
				}
				return "ok", nil
			}},
		},
	})

	id, err := engine.Start(ctx, "flaky", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	status, _ := engine.Status(ctx, id)
	if status != StatusComplete {
		t.Fatalf("expected complete, got %s", status)
	}
}

func TestRunErrorsAfterRetryBudget(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var attempts atomic.Int32
	var secondRan atomic.Bool
	engine.Register(Pipeline{
		Name: "doomed",
		Steps: []Step{
			{Name: "fail", Retries: 2, Run: func(ctx context.Context, run *Run) (any, error) {
				attempts.Add(1)
				return nil, errors.New("nope")
			}},
			{Name: "after", Run: func(ctx context.Context, run *Run) (any, error) {
				secondRan.Store(true)
				return nil, nil
			}},
		},
	})

	id, err := engine.Start(ctx, "doomed", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
	if secondRan.Load() {
		t.Fatal("steps after an exhausted step must not run")
	}
	status, _ := engine.Status(ctx, id)
	if status != StatusErrored {
		t.Fatalf("expected errored, got %s", status)
	}
}

func TestTerminalErrorSkipsRetries(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var attempts atomic.Int32
	engine.Register(Pipeline{
		Name: "fatal",
		Steps: []Step{
			{Name: "reject", Retries: 5, Run: func(ctx context.Context, run *Run) (any, error) {
				attempts.Add(1)
				return nil, Terminal(errors.New("bad request"))
			}},
		},
	})

	id, err := engine.Start(ctx, "fatal", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt for terminal error, got %d", got)
	}
	status, _ := engine.Status(ctx, id)
	if status != StatusErrored {
		t.Fatalf("expected errored, got %s", status)
	}
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var firstRuns, secondRuns atomic.Int32
	engine.Register(Pipeline{
		Name: "restartable",
		Steps: []Step{
			{Name: "one", Run: func(ctx context.Context, run *Run) (any, error) {
				firstRuns.Add(1)
				return "one-out", nil
			}},
			{Name: "two", Run: func(ctx context.Context, run *Run) (any, error) {
				secondRuns.Add(1)
				var prev string
				if ok, err := run.Decode("one", &prev); err != nil || !ok {
					return nil, fmt.Errorf("missing journaled result")
				}
				return prev + "+two", nil
			}},
		},
	})

	// Simulate a run a previous process journaled halfway through.
	if _, err := engine.db.Exec(
		`INSERT INTO workflow_runs (id, pipeline, params, status) VALUES (?, ?, ?, ?)`,
		"run-1", "restartable", "{}", StatusRunning,
	); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.db.Exec(
		`INSERT INTO workflow_steps (run_id, step, status, attempts, result) VALUES (?, ?, ?, ?, ?)`,
		"run-1", "one", "done", 1, `"one-out"`,
	); err != nil {
		t.Fatal(err)
	}

	if err := engine.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	if firstRuns.Load() != 0 {
		t.Fatal("completed step was re-executed on resume")
	}
	if secondRuns.Load() != 1 {
		t.Fatalf("expected second step to run once, ran %d times", secondRuns.Load())
	}

	status, err := engine.Status(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusComplete {
		t.Fatalf("expected complete, got %s", status)
	}
	result, err := engine.Result(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatal(err)
	}
	if out != "one-out+two" {
		t.Fatalf("resumed run used wrong journaled input: %q", out)
	}
}

func TestStatusUnknownRun(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.Status(context.Background(), "missing"); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
}
