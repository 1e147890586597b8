package llm

import (
	"context"
	"io"
)

// Transcriber converts recorded audio into text. Invoked by the channel layer
// for voice messages; the core turn pipeline never touches audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Synthesizer converts text into an encoded audio stream. The caller must
// close the returned stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}
