package turn

import (
	"errors"
	"fmt"

	"parley/internal/llm"
	"parley/internal/memory"
)

// ErrInvalidMessage reports a stored message with a missing role.
var ErrInvalidMessage = errors.New("invalid message")

// Assemble builds the ordered prompt for one inference call: the fixed system
// directive, then the rolling summary as a system entry (only when non-empty),
// then the recent messages oldest-first, then the new input last. The summary
// must precede the history so the model reads it as background context rather
// than a literal turn.
//
// The background pipeline passes input == "" because the user message is
// already part of the history by the time it infers.
func Assemble(directive, summary string, history []memory.Message, input string) ([]llm.Message, error) {
	msgs := make([]llm.Message, 0, len(history)+3)

	if directive != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: directive})
	}
	if summary != "" {
		msgs = append(msgs, llm.Message{
			Role:    "system",
			Content: "Summary of the conversation so far: " + summary,
		})
	}

	for _, m := range history {
		if m.Role == "" {
			return nil, fmt.Errorf("%w: seq %d", ErrInvalidMessage, m.Seq)
		}
		// Providers may legitimately return an empty reply; the stored blank
		// message carries no context and would be rejected by some backends.
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	if input != "" {
		msgs = append(msgs, llm.Message{Role: "user", Content: input})
	}

	return msgs, nil
}
