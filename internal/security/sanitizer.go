package security

import (
	"regexp"

	"parley/internal/config"
)

// Sanitizer masks PII in text before it is handed to a summarization prompt.
// Masking is one-way: summaries never need the original values back.
type Sanitizer struct {
	filters []piiFilter
	enabled bool
}

type piiFilter struct {
	name        string
	pattern     *regexp.Regexp
	placeholder string
}

// Specific patterns run before the broad phone pattern so card numbers,
// SSNs and IPs keep their own placeholders.
var defaultFilters = []struct {
	name        string
	pattern     string
	placeholder string
}{
	{"email", `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[EMAIL]"},
	{"card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, "[CARD]"},
	{"ssn", `\b\d{3}-\d{2}-\d{4}\b`, "[SSN]"},
	{"ip", `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`, "[IP]"},
	{"phone", `(?:\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`, "[PHONE]"},
}

// NewSanitizer creates a PII sanitizer from config.
func NewSanitizer(cfg config.PIIFilterConfig) *Sanitizer {
	s := &Sanitizer{enabled: cfg.Enabled}

	enableMap := map[string]bool{
		"email": cfg.FilterEmails,
		"phone": cfg.FilterPhones,
		"card":  cfg.FilterCards,
		"ip":    cfg.FilterIPs,
		"ssn":   cfg.FilterSSN,
	}

	for _, f := range defaultFilters {
		if enableMap[f.name] {
			s.filters = append(s.filters, piiFilter{
				name:        f.name,
				pattern:     regexp.MustCompile(f.pattern),
				placeholder: f.placeholder,
			})
		}
	}

	return s
}

// Sanitize replaces PII in text with fixed placeholders.
func (s *Sanitizer) Sanitize(text string) string {
	if !s.enabled || len(s.filters) == 0 {
		return text
	}

	result := text
	for _, f := range s.filters {
		result = f.pattern.ReplaceAllString(result, f.placeholder)
	}
	return result
}
