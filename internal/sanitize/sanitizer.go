package sanitize

// Sanitizer removes credentials from text
type Sanitizer struct {
	patterns []Pattern
}

// NewSanitizer creates a new Sanitizer with default patterns
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: GetCredentialPatterns(),
	}
}

// NewSanitizerWithPatterns creates a Sanitizer with custom patterns
func NewSanitizerWithPatterns(patterns []Pattern) *Sanitizer {
	return &Sanitizer{
		patterns: patterns,
	}
}

// Sanitize returns input with every credential replaced by Redacted.
func (s *Sanitizer) Sanitize(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, p := range s.patterns {
		result = p.Regex.ReplaceAllString(result, p.Replacement)
	}
	return result
}

// DefaultSanitizer is a package-level sanitizer for convenience
var DefaultSanitizer = NewSanitizer()

// Sanitize uses the default sanitizer to sanitize input
func Sanitize(input string) string {
	return DefaultSanitizer.Sanitize(input)
}

// Path returns a connection path that is safe to log.
func Path(path string) string {
	return DefaultSanitizer.Sanitize(path)
}
