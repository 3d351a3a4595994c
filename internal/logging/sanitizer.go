package logging

import (
	"regexp"
)

// Sanitizer redacts provider credentials from log output.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with patterns for every supported provider.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic (before OpenAI so the longer prefix wins)
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI, including project keys
		`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		// xAI
		`xai-[A-Za-z0-9]{20,}`,
		// Perplexity
		`pplx-[A-Za-z0-9]{20,}`,
		// Google AI
		`AIza[a-zA-Z0-9_-]{35}`,
		// Bearer headers
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// key=value style secrets
		`(?i)(?:api[_-]?key|x-goog-api-key|x-api-key)["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// MySQL DSN credentials
		`(?i)mysql://[^:@/\s]+:[^@\s]+@`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
