package turn

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"parley/internal/eventbus"
	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/workflow"
)

// fakeProvider scripts Chat responses and records every request.
type fakeProvider struct {
	mu       sync.Mutex
	reply    func(req *llm.ChatRequest) (*llm.LLMResponse, error)
	requests []*llm.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.LLMResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(req)
	}
	return &llm.LLMResponse{Content: "ok"}, nil
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func (f *fakeProvider) recorded() []*llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestRooms(t *testing.T) (*memory.Registry, *memory.SQLiteStore) {
	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "turn.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return memory.NewRegistry(store), store
}

func newTestEngine(t *testing.T, db *sql.DB) *workflow.Engine {
	engine, err := workflow.NewEngine(db, eventbus.New())
	if err != nil {
		t.Fatal(err)
	}
	engine.SetRetryDelay(time.Millisecond)
	return engine
}
