package config

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Turn: TurnConfig{
			SystemPrompt:     "You are Parley, a helpful voice and chat assistant. Answer concisely.",
			MaxTokens:        1024,
			Temperature:      0.7,
			ContextWindow:    18,
			SummaryWindow:    40,
			SummarizeAt:      10000,
			SummaryModel:     "gpt-4o-mini",
			SummaryMaxTokens: 300,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			TimeoutSecs: 120,
		},
		Pipeline: PipelineConfig{
			StepRetries:    2,
			RetryDelaySecs: 1,
		},
		Channels: ChannelsConfig{},
		Security: SecurityConfig{
			PIIFiltering: PIIFilterConfig{
				Enabled:      true,
				FilterEmails: true,
				FilterPhones: true,
				FilterCards:  true,
				FilterIPs:    false,
				FilterSSN:    true,
			},
		},
	}
}
