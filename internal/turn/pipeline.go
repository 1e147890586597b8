package turn

import (
	"context"
	"fmt"
	"log"

	"parley/internal/eventbus"
	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/workflow"
)

// PipelineName identifies the durable background re-run of a turn.
const PipelineName = "conversation-turn"

// contextResult is the journaled output of the load-context step.
type contextResult struct {
	View      memory.ContextView `json:"view"`
	Summarize bool               `json:"summarize"`
}

// inferResult is the journaled output of the infer step.
type inferResult struct {
	Text string `json:"text"`
}

// TurnResult is the pipeline's final output, queryable through the engine
// but never awaited by the original caller.
type TurnResult struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

// Pipeline returns the durable turn pipeline for engine registration. Steps
// share state only through the journal, so a resumed run picks up exactly
// where the journal left off.
func (e *Executor) Pipeline(stepRetries int) workflow.Pipeline {
	if stepRetries < 0 {
		stepRetries = 0
	}
	return workflow.Pipeline{
		Name: PipelineName,
		Steps: []workflow.Step{
			{Name: "append-input", Retries: stepRetries, Run: e.stepAppendInput},
			{Name: "load-context", Retries: stepRetries, Run: e.stepLoadContext},
			{Name: "infer", Retries: stepRetries, Run: e.stepInfer},
			{Name: "persist-output", Retries: stepRetries, Run: e.stepPersistOutput},
			{Name: "maybe-summarize", Run: e.stepMaybeSummarize},
		},
	}
}

// stepAppendInput persists the user message. The turn's dedupe key makes this
// idempotent across retries and across the synchronous path having already
// appended the same logical input.
func (e *Executor) stepAppendInput(ctx context.Context, run *workflow.Run) (any, error) {
	room := e.rooms.Room(run.Param("room_id"))
	msg := memory.Message{Role: "user", Content: run.Param("text")}
	return room.Append(ctx, msg, run.Param("turn_id")+":user")
}

// stepLoadContext fetches the summary and recent window, widened when the
// accumulated size says a summarization pass is coming.
func (e *Executor) stepLoadContext(ctx context.Context, run *workflow.Run) (any, error) {
	room := e.rooms.Room(run.Param("room_id"))

	size, err := room.ApproxSize(ctx)
	if err != nil {
		return nil, err
	}
	summarize := e.policy.ShouldSummarize(size)

	window := e.cfg.ContextWindow
	if summarize {
		window = e.cfg.SummaryWindow
	}

	view, err := room.Context(ctx, window)
	if err != nil {
		return nil, err
	}
	return contextResult{View: view, Summarize: summarize}, nil
}

// stepInfer assembles the prompt from the journaled context and calls the
// model. The input is omitted from assembly because append-input already put
// it at the end of the history.
func (e *Executor) stepInfer(ctx context.Context, run *workflow.Run) (any, error) {
	var cres contextResult
	if ok, err := run.Decode("load-context", &cres); err != nil || !ok {
		return nil, fmt.Errorf("missing load-context result: %v", err)
	}

	prompt, err := Assemble(e.cfg.SystemPrompt, cres.View.Summary, cres.View.Messages, "")
	if err != nil {
		return nil, workflow.Terminal(err)
	}

	resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
		Model:       run.Param("model"),
		Messages:    prompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		if !llm.IsRetryable(err) {
			return nil, workflow.Terminal(err)
		}
		return nil, err
	}
	return inferResult{Text: resp.Text()}, nil
}

// stepPersistOutput appends the assistant message, deduplicated against the
// synchronous path's append of the same turn.
func (e *Executor) stepPersistOutput(ctx context.Context, run *workflow.Run) (any, error) {
	var ires inferResult
	if ok, err := run.Decode("infer", &ires); err != nil || !ok {
		return nil, fmt.Errorf("missing infer result: %v", err)
	}
	room := e.rooms.Room(run.Param("room_id"))
	msg := memory.Message{Role: "assistant", Content: ires.Text}
	return room.Append(ctx, msg, run.Param("turn_id")+":assistant")
}

// stepMaybeSummarize compresses the room's history when the policy triggered
// during load-context. Summarization failure is not a pipeline failure: the
// prior summary stays in effect and the run still completes.
func (e *Executor) stepMaybeSummarize(ctx context.Context, run *workflow.Run) (any, error) {
	var cres contextResult
	if ok, err := run.Decode("load-context", &cres); err != nil || !ok {
		return nil, fmt.Errorf("missing load-context result: %v", err)
	}
	var ires inferResult
	if ok, err := run.Decode("infer", &ires); err != nil || !ok {
		return nil, fmt.Errorf("missing infer result: %v", err)
	}

	if cres.Summarize && e.summarizer != nil {
		roomID := run.Param("room_id")
		room := e.rooms.Room(roomID)

		summary, err := e.summarizer.Summarize(ctx, room)
		if err != nil {
			log.Printf("[turn] summarization failed for room %s: %v", roomID, err)
		} else if err := room.SetSummary(ctx, summary); err != nil {
			log.Printf("[turn] summary write failed for room %s: %v", roomID, err)
		} else {
			e.publish(eventbus.TopicSummaryUpdated, eventbus.TurnOutcome{
				RoomID: roomID,
				TurnID: run.Param("turn_id"),
			})
		}
	}

	return TurnResult{OK: true, Text: ires.Text}, nil
}
