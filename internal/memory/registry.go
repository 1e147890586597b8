package memory

import (
	"context"
	"sync"
)

// Registry maps room identifiers to room handles with get-or-create
// semantics. It is the only owner of that mapping; handles are stable for
// the life of the registry.
type Registry struct {
	mu    sync.Mutex
	store Store
	rooms map[string]*Room
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		rooms: make(map[string]*Room),
	}
}

// Room returns the handle for the given identifier, creating it on first
// access.
func (r *Registry) Room(id string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		room = &Room{id: id, store: r.store}
		r.rooms[id] = room
	}
	return room
}

// Room serializes all operations against one conversation's state. No two
// appends can interleave, and a context read never observes a partial append.
// Different rooms proceed independently.
type Room struct {
	mu    sync.Mutex
	id    string
	store Store
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

func (r *Room) Append(ctx context.Context, msg Message, dedupeKey string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Append(ctx, r.id, msg, dedupeKey)
}

func (r *Room) Context(ctx context.Context, limit int) (ContextView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Context(ctx, r.id, limit)
}

func (r *Room) SetSummary(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.SetSummary(ctx, r.id, text)
}

func (r *Room) ApproxSize(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ApproxSize(ctx, r.id)
}
