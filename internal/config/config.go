package config

// Config is the top-level application configuration.
type Config struct {
	Turn        TurnConfig     `json:"turn"`
	LLM         LLMConfig      `json:"llm"`
	FallbackLLM *LLMConfig     `json:"fallback_llm,omitempty"`
	Memory      MemoryConfig   `json:"memory"`
	Pipeline    PipelineConfig `json:"pipeline"`
	Channels    ChannelsConfig `json:"channels"`
	Security    SecurityConfig `json:"security"`
}

// TurnConfig controls prompt assembly and summarization.
type TurnConfig struct {
	SystemPrompt     string  `json:"system_prompt"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	ContextWindow    int     `json:"context_window"`     // messages per prompt
	SummaryWindow    int     `json:"summary_window"`     // messages fed to the summarizer
	SummarizeAt      int64   `json:"summarize_at"`       // accumulated content bytes
	SummaryModel     string  `json:"summary_model"`      // cheaper model for compression
	SummaryMaxTokens int     `json:"summary_max_tokens"`
}

type LLMConfig struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	SpeechVoice string `json:"speech_voice,omitempty"`
	TimeoutSecs int    `json:"timeout_secs"`
}

type MemoryConfig struct {
	Path string `json:"path,omitempty"` // sqlite file, defaults under ~/.parley
}

// PipelineConfig tunes the background step-sequencer.
type PipelineConfig struct {
	StepRetries    int `json:"step_retries"`
	RetryDelaySecs int `json:"retry_delay_secs"`
}

type ChannelsConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AllowedIDs   []int64 `json:"allowed_ids,omitempty"`
	VoiceReplies bool    `json:"voice_replies"`
}

type SecurityConfig struct {
	PIIFiltering PIIFilterConfig `json:"pii_filtering"`
}

type PIIFilterConfig struct {
	Enabled      bool `json:"enabled"`
	FilterEmails bool `json:"filter_emails"`
	FilterPhones bool `json:"filter_phones"`
	FilterCards  bool `json:"filter_cards"`
	FilterIPs    bool `json:"filter_ips"`
	FilterSSN    bool `json:"filter_ssn"`
}
