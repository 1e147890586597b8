package llm

import "testing"

func TestResponseTextDirectContent(t *testing.T) {
	resp := &LLMResponse{Content: "direct"}
	if got := resp.Text(); got != "direct" {
		t.Fatalf("expected direct content, got %q", got)
	}
}

func TestResponseTextStructuredMessages(t *testing.T) {
	resp := &LLMResponse{Messages: []Message{
		{Role: "assistant", Content: "first"},
		{Role: "assistant", Content: "last"},
	}}
	if got := resp.Text(); got != "last" {
		t.Fatalf("expected last message content, got %q", got)
	}
}

func TestResponseTextPrefersDirectContent(t *testing.T) {
	resp := &LLMResponse{
		Content:  "direct",
		Messages: []Message{{Role: "assistant", Content: "structured"}},
	}
	if got := resp.Text(); got != "direct" {
		t.Fatalf("expected direct content to win, got %q", got)
	}
}

func TestResponseTextEmpty(t *testing.T) {
	if got := (&LLMResponse{}).Text(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	var nilResp *LLMResponse
	if got := nilResp.Text(); got != "" {
		t.Fatalf("expected empty string for nil response, got %q", got)
	}
}
