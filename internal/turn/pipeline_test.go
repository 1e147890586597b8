package turn

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"parley/internal/config"
	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/workflow"
)

// summaryAware replies differently to summarization prompts so tests can
// tell the two inference kinds apart.
func summaryAware(answer, summary string) func(req *llm.ChatRequest) (*llm.LLMResponse, error) {
	return func(req *llm.ChatRequest) (*llm.LLMResponse, error) {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "conversation summarizer") {
				return &llm.LLMResponse{Content: summary}, nil
			}
		}
		return &llm.LLMResponse{Content: answer}, nil
	}
}

func newPipelineExecutor(t *testing.T, provider llm.Provider, threshold int64) (*Executor, *memory.Registry, *workflow.Engine) {
	rooms, store := newTestRooms(t)
	engine := newTestEngine(t, store.DB())

	cfg := config.TurnConfig{
		SystemPrompt:  "directive",
		ContextWindow: 18,
		SummaryWindow: 40,
	}
	summarizer := NewSummarizer(provider, nil, "cheap-model", 40, 300)
	exec := NewExecutor(cfg, rooms, provider, engine, ThresholdPolicy{Threshold: threshold}, summarizer, nil)
	engine.Register(exec.Pipeline(2))
	return exec, rooms, engine
}

func TestPipelineRunCompletes(t *testing.T) {
	provider := &fakeProvider{reply: summaryAware("the answer", "a summary")}
	exec, rooms, engine := newPipelineExecutor(t, provider, DefaultSummarizeAt)
	ctx := context.Background()

	id, err := exec.RunPipeline(ctx, "demo", "user-1", "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	status, err := engine.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if status != workflow.StatusComplete {
		t.Fatalf("expected complete, got %s", status)
	}

	raw, err := engine.Result(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	var result TurnResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if !result.OK || result.Text != "the answer" {
		t.Fatalf("unexpected pipeline result: %+v", result)
	}

	view, err := rooms.Room("demo").Context(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected user + assistant, got %d messages", len(view.Messages))
	}
	if view.Messages[0].Role != "user" || view.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", view.Messages)
	}
	if view.Messages[1].Content != "the answer" {
		t.Fatalf("persisted output mismatch: %q", view.Messages[1].Content)
	}
}

func TestSyncTurnAndPipelineShareAppends(t *testing.T) {
	provider := &fakeProvider{reply: summaryAware("the answer", "a summary")}
	exec, rooms, engine := newPipelineExecutor(t, provider, DefaultSummarizeAt)
	ctx := context.Background()

	answer, err := exec.RunTurn(ctx, "demo", "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	// The background re-run appends with the same turn keys, so the log
	// must still hold exactly one user and one assistant message.
	view, err := rooms.Room("demo").Context(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected 2 messages after sync+pipeline, got %d", len(view.Messages))
	}
	if view.Messages[1].Content != answer {
		t.Fatalf("assistant message diverged: %q vs %q", view.Messages[1].Content, answer)
	}

	// Two inference calls: the synchronous path and the durable re-run.
	if got := len(provider.recorded()); got != 2 {
		t.Fatalf("expected 2 inference calls, got %d", got)
	}
}

func TestPipelineSummarizesPastThreshold(t *testing.T) {
	provider := &fakeProvider{reply: summaryAware("the answer", "fresh summary")}
	exec, rooms, engine := newPipelineExecutor(t, provider, 50)
	ctx := context.Background()

	room := rooms.Room("demo")
	if err := room.SetSummary(ctx, "stale summary"); err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("conversation filler ", 5)
	for i := 0; i < 4; i++ {
		if _, err := room.Append(ctx, memory.Message{Role: "user", Content: long}, ""); err != nil {
			t.Fatal(err)
		}
	}

	id, err := exec.RunPipeline(ctx, "demo", "user-1", "and another thing", "")
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	status, _ := engine.Status(ctx, id)
	if status != workflow.StatusComplete {
		t.Fatalf("expected complete, got %s", status)
	}

	view, err := room.Context(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "fresh summary" {
		t.Fatalf("expected new summary, got %q", view.Summary)
	}
}

func TestPipelineBelowThresholdLeavesSummary(t *testing.T) {
	provider := &fakeProvider{reply: summaryAware("the answer", "should never appear")}
	exec, rooms, engine := newPipelineExecutor(t, provider, 1<<30)
	ctx := context.Background()

	if _, err := exec.RunPipeline(ctx, "demo", "user-1", "hello", ""); err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	view, err := rooms.Room("demo").Context(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "" {
		t.Fatalf("summary must stay untouched below threshold, got %q", view.Summary)
	}
}

func TestPipelineSummaryFailureIsNonFatal(t *testing.T) {
	provider := &fakeProvider{reply: func(req *llm.ChatRequest) (*llm.LLMResponse, error) {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "conversation summarizer") {
				return nil, &llm.LLMError{Type: llm.ErrorServerError, Message: "summary backend down"}
			}
		}
		return &llm.LLMResponse{Content: "the answer"}, nil
	}}
	exec, rooms, engine := newPipelineExecutor(t, provider, 10)
	ctx := context.Background()

	room := rooms.Room("demo")
	if err := room.SetSummary(ctx, "prior summary"); err != nil {
		t.Fatal(err)
	}
	if _, err := room.Append(ctx, memory.Message{Role: "user", Content: strings.Repeat("x", 64)}, ""); err != nil {
		t.Fatal(err)
	}

	id, err := exec.RunPipeline(ctx, "demo", "user-1", "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	engine.Wait()

	status, _ := engine.Status(ctx, id)
	if status != workflow.StatusComplete {
		t.Fatalf("summarization failure must not fail the run, got %s", status)
	}

	view, err := room.Context(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "prior summary" {
		t.Fatalf("prior summary must remain in effect, got %q", view.Summary)
	}
}
