package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/internal/eventbus"
)

// Engine runs registered pipelines with a durable per-step journal. Each
// step's outcome is committed before the next step begins, so a restarted
// process resumes at the first incomplete step. Submitting a run is
// fire-and-forget: the caller gets an id, never a completion.
type Engine struct {
	db         *sql.DB
	bus        *eventbus.Bus
	retryDelay time.Duration

	mu        sync.RWMutex
	pipelines map[string]Pipeline

	wg sync.WaitGroup
}

// NewEngine creates an engine journaling into the given database.
func NewEngine(db *sql.DB, bus *eventbus.Bus) (*Engine, error) {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("workflow migrate: %w", err)
		}
	}
	return &Engine{
		db:         db,
		bus:        bus,
		retryDelay: time.Second,
		pipelines:  make(map[string]Pipeline),
	}, nil
}

// SetRetryDelay overrides the pause between step attempts.
func (e *Engine) SetRetryDelay(d time.Duration) {
	e.retryDelay = d
}

// Register makes a pipeline available for Start and Resume.
func (e *Engine) Register(p Pipeline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipelines[p.Name] = p
}

// Start persists a new run and executes it in the background. The returned
// id can be handed to Status and Result; the caller's context cancellation
// does not reach the run.
func (e *Engine) Start(ctx context.Context, pipeline string, params map[string]string) (string, error) {
	e.mu.RLock()
	p, ok := e.pipelines[pipeline]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown pipeline: %s", pipeline)
	}

	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, pipeline, params, status) VALUES (?, ?, ?, ?)`,
		id, pipeline, string(data), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("persist run: %w", err)
	}

	run := &Run{
		ID:       id,
		Pipeline: pipeline,
		params:   params,
		results:  make(map[string]json.RawMessage),
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(context.WithoutCancel(ctx), p, run)
	}()

	e.publish(eventbus.TopicPipelineSubmitted, id)
	return id, nil
}

// Resume re-executes runs the journal still records as running, typically
// after a process restart. Completed steps are not re-executed.
func (e *Engine) Resume(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, pipeline, params FROM workflow_runs WHERE status = ?`,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var id, pipeline, paramsJSON string
		if err := rows.Scan(&id, &pipeline, &paramsJSON); err != nil {
			return err
		}
		params := make(map[string]string)
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return err
		}
		runs = append(runs, &Run{
			ID:       id,
			Pipeline: pipeline,
			params:   params,
			results:  make(map[string]json.RawMessage),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, run := range runs {
		e.mu.RLock()
		p, ok := e.pipelines[run.Pipeline]
		e.mu.RUnlock()
		if !ok {
			log.Printf("[workflow] cannot resume run %s: pipeline %s not registered", run.ID, run.Pipeline)
			continue
		}
		log.Printf("[workflow] resuming run %s (%s)", run.ID, run.Pipeline)
		e.wg.Add(1)
		go func(run *Run) {
			defer e.wg.Done()
			e.execute(context.WithoutCancel(ctx), p, run)
		}(run)
	}
	return nil
}

// Status reports a run's lifecycle state.
func (e *Engine) Status(ctx context.Context, id string) (Status, error) {
	var status Status
	err := e.db.QueryRowContext(ctx,
		`SELECT status FROM workflow_runs WHERE id = ?`, id,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrUnknownRun
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// Result returns a completed run's final output.
func (e *Engine) Result(ctx context.Context, id string) (json.RawMessage, error) {
	var result sql.NullString
	err := e.db.QueryRowContext(ctx,
		`SELECT result FROM workflow_runs WHERE id = ?`, id,
	).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownRun
	}
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, nil
	}
	return json.RawMessage(result.String), nil
}

// Wait blocks until all in-flight runs finish. Used on shutdown and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) execute(ctx context.Context, p Pipeline, run *Run) {
	var lastResult json.RawMessage

	for _, step := range p.Steps {
		done, result, err := e.loadStep(ctx, run.ID, step.Name)
		if err != nil {
			log.Printf("[workflow] run %s: journal read failed at %s: %v", run.ID, step.Name, err)
			e.finishRun(ctx, run.ID, StatusErrored, nil, err.Error())
			return
		}
		if done {
			run.results[step.Name] = result
			lastResult = result
			continue
		}

		result, err = e.runStep(ctx, run, step)
		if err != nil {
			log.Printf("[workflow] run %s: step %s failed: %v", run.ID, step.Name, err)
			e.finishRun(ctx, run.ID, StatusErrored, nil, err.Error())
			e.publish(eventbus.TopicError, err)
			return
		}

		run.results[step.Name] = result
		lastResult = result
	}

	e.finishRun(ctx, run.ID, StatusComplete, lastResult, "")
}

// runStep attempts one step until it succeeds, the retry budget is spent, or
// a terminal error short-circuits. The outcome is journaled before returning.
func (e *Engine) runStep(ctx context.Context, run *Run, step Step) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= step.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = step.Retries // give up
				continue
			}
		}

		out, err := step.Run(ctx, run)
		if err == nil {
			result, merr := json.Marshal(out)
			if merr != nil {
				lastErr = merr
				break
			}
			if err := e.recordStep(ctx, run.ID, step.Name, attempt+1, result, nil); err != nil {
				return nil, err
			}
			e.publish(eventbus.TopicStepCompleted, eventbus.StepOutcome{
				RunID: run.ID,
				Step:  step.Name,
			})
			return result, nil
		}

		lastErr = err
		if isTerminal(err) {
			break
		}
		log.Printf("[workflow] run %s: step %s attempt %d: %v", run.ID, step.Name, attempt+1, err)
	}

	_ = e.recordStep(ctx, run.ID, step.Name, step.Retries+1, nil, lastErr)
	return nil, fmt.Errorf("step %s: %w", step.Name, lastErr)
}

// loadStep returns a previously committed successful outcome, if any.
func (e *Engine) loadStep(ctx context.Context, runID, step string) (bool, json.RawMessage, error) {
	var status string
	var result sql.NullString
	err := e.db.QueryRowContext(ctx,
		`SELECT status, result FROM workflow_steps WHERE run_id = ? AND step = ?`,
		runID, step,
	).Scan(&status, &result)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if status != "done" {
		return false, nil, nil
	}
	return true, json.RawMessage(result.String), nil
}

func (e *Engine) recordStep(ctx context.Context, runID, step string, attempts int, result json.RawMessage, stepErr error) error {
	status := "done"
	var errText *string
	var resText *string
	if stepErr != nil {
		status = "errored"
		s := stepErr.Error()
		errText = &s
	}
	if result != nil {
		s := string(result)
		resText = &s
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflow_steps (run_id, step, status, attempts, result, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		runID, step, status, attempts, resText, errText,
	)
	if err != nil {
		return fmt.Errorf("journal step %s: %w", step, err)
	}
	return nil
}

func (e *Engine) finishRun(ctx context.Context, id string, status Status, result json.RawMessage, errText string) {
	var res, errv *string
	if result != nil {
		s := string(result)
		res = &s
	}
	if errText != "" {
		errv = &errText
	}
	_, err := e.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, result = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, res, errv, id,
	)
	if err != nil {
		log.Printf("[workflow] run %s: failed to record %s state: %v", id, status, err)
	}
}

func (e *Engine) publish(topic eventbus.Topic, payload any) {
	if e.bus != nil {
		e.bus.Publish(topic, payload)
	}
}
