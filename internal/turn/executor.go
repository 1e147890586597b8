package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"parley/internal/config"
	"parley/internal/eventbus"
	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/workflow"
)

// ErrInvalidInput reports a request missing required fields. Rejected before
// anything touches the store.
var ErrInvalidInput = errors.New("invalid input")

// Executor runs the synchronous critical path of a turn and submits the
// durable background pipeline for the same turn. The background submission is
// fire-and-forget: the executor's contract ends at "submitted".
type Executor struct {
	cfg        config.TurnConfig
	rooms      *memory.Registry
	provider   llm.Provider
	engine     *workflow.Engine
	policy     Policy
	summarizer *Summarizer
	bus        *eventbus.Bus
}

// NewExecutor creates an executor. engine may be nil, which disables the
// background pipeline (used by tests that only exercise the synchronous path).
func NewExecutor(
	cfg config.TurnConfig,
	rooms *memory.Registry,
	provider llm.Provider,
	engine *workflow.Engine,
	policy Policy,
	summarizer *Summarizer,
	bus *eventbus.Bus,
) *Executor {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 18
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 40
	}
	if policy == nil {
		policy = ThresholdPolicy{Threshold: DefaultSummarizeAt}
	}
	return &Executor{
		cfg:        cfg,
		rooms:      rooms,
		provider:   provider,
		engine:     engine,
		policy:     policy,
		summarizer: summarizer,
		bus:        bus,
	}
}

// RunTurn appends the user message, assembles the prompt, calls the model,
// persists the assistant message and returns its text. The background
// pipeline is submitted before returning but never awaited; its failure is
// invisible to the caller.
//
// When inference fails the error surfaces to the caller, but the user
// message already appended stays persisted.
func (e *Executor) RunTurn(ctx context.Context, roomID, text, model string) (string, error) {
	if roomID == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: room id and text are required", ErrInvalidInput)
	}

	turnID := uuid.NewString()
	room := e.rooms.Room(roomID)

	e.publish(eventbus.TopicTurnStarted, eventbus.TurnOutcome{RoomID: roomID, TurnID: turnID})

	userMsg, err := room.Append(ctx, memory.Message{Role: "user", Content: text}, turnID+":user")
	if err != nil {
		return "", fmt.Errorf("append input: %w", err)
	}

	// One extra slot because the input we just appended comes back as the
	// newest history entry; the assembler re-appends it last itself.
	view, err := room.Context(ctx, e.cfg.ContextWindow+1)
	if err != nil {
		return "", fmt.Errorf("load context: %w", err)
	}
	history := view.Messages
	if n := len(history); n > 0 && history[n-1].Seq == userMsg.Seq {
		history = history[:n-1]
	}

	prompt, err := Assemble(e.cfg.SystemPrompt, view.Summary, history, text)
	if err != nil {
		return "", err
	}

	resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
		Model:       model,
		Messages:    prompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("inference: %w", err)
	}
	answer := resp.Text()

	if _, err := room.Append(ctx, memory.Message{Role: "assistant", Content: answer}, turnID+":assistant"); err != nil {
		return "", fmt.Errorf("persist output: %w", err)
	}

	e.publish(eventbus.TopicTurnCompleted, eventbus.TurnOutcome{RoomID: roomID, TurnID: turnID, Text: answer})

	e.submit(ctx, roomID, "", text, model, turnID)
	return answer, nil
}

// RunPipeline submits the durable turn pipeline without running the
// synchronous path first, and returns the run id for status inspection.
func (e *Executor) RunPipeline(ctx context.Context, roomID, userID, text, model string) (string, error) {
	if roomID == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: room id and text are required", ErrInvalidInput)
	}
	if e.engine == nil {
		return "", fmt.Errorf("no workflow engine configured")
	}
	return e.engine.Start(ctx, PipelineName, pipelineParams(roomID, userID, text, model, uuid.NewString()))
}

func (e *Executor) submit(ctx context.Context, roomID, userID, text, model, turnID string) {
	if e.engine == nil {
		return
	}
	id, err := e.engine.Start(ctx, PipelineName, pipelineParams(roomID, userID, text, model, turnID))
	if err != nil {
		// The turn itself already succeeded; losing the background run only
		// costs the audit record and a possible summarization pass.
		log.Printf("[turn] pipeline submission failed for room %s: %v", roomID, err)
		return
	}
	log.Printf("[turn] submitted pipeline run %s for room %s", id, roomID)
}

func pipelineParams(roomID, userID, text, model, turnID string) map[string]string {
	return map[string]string{
		"room_id": roomID,
		"user_id": userID,
		"text":    text,
		"model":   model,
		"turn_id": turnID,
	}
}

func (e *Executor) publish(topic eventbus.Topic, payload any) {
	if e.bus != nil {
		e.bus.Publish(topic, payload)
	}
}
