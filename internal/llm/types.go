package llm

// Message represents a single role-tagged turn sent to or returned by a provider.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
}

// LLMResponse is the response from an LLM provider. Providers fill either
// Content directly or Messages, in which case the last entry is the answer.
type LLMResponse struct {
	Content    string    `json:"content"`
	Messages   []Message `json:"messages,omitempty"`
	Usage      Usage     `json:"usage"`
	StopReason string    `json:"stop_reason"`
}

// Text normalizes the response into a plain string: the direct content field
// if present, otherwise the content of the last structured message, otherwise "".
func (r *LLMResponse) Text() string {
	if r == nil {
		return ""
	}
	if r.Content != "" {
		return r.Content
	}
	if n := len(r.Messages); n > 0 {
		return r.Messages[n-1].Content
	}
	return ""
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatRequest is the input for a chat completion.
type ChatRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens"`
	Temperature  float64   `json:"temperature"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
}

// ErrorType classifies LLM errors for fallback and retry decisions.
type ErrorType int

const (
	ErrorUnknown       ErrorType = iota
	ErrorRateLimit               // 429
	ErrorAuth                    // 401/403
	ErrorInvalidInput            // 400
	ErrorServerError             // 500+
	ErrorTimeout                 // context deadline exceeded
	ErrorNetwork                 // connection refused, DNS, etc.
)
