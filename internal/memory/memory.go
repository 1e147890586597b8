package memory

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreUnavailable reports that the durable backing medium could not be
// reached. Reads are safe to retry; appends are safe to retry as well because
// they carry a dedupe key.
var ErrStoreUnavailable = errors.New("memory store unavailable")

// Message is one immutable entry in a room's log. Seq is assigned by the
// store, strictly increasing and gap-free within a room.
type Message struct {
	Seq     int64  `json:"seq"`
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
	Ts      int64  `json:"ts"`
}

// ContextView is a derived snapshot: the room's summary plus its most recent
// messages in oldest-first order. Recomputed on every read, never persisted.
type ContextView struct {
	Summary  string    `json:"summary"`
	Messages []Message `json:"messages"`
}

// Store is the interface for persistent conversation storage.
type Store interface {
	// Append persists msg under the next sequence number for the room and
	// returns the stored message. A non-empty dedupeKey makes the append
	// idempotent: re-appending the same key returns the original message.
	Append(ctx context.Context, roomID string, msg Message, dedupeKey string) (Message, error)

	// Context returns the summary plus the limit most recent messages,
	// oldest-first.
	Context(ctx context.Context, roomID string, limit int) (ContextView, error)

	// SetSummary overwrites the room's rolling summary. Last writer wins.
	SetSummary(ctx context.Context, roomID, text string) error

	// ApproxSize returns the total content length stored for the room.
	// A trigger signal only, not a token count.
	ApproxSize(ctx context.Context, roomID string) (int64, error)

	Close() error
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
