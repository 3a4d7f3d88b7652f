// Package redact masks personal data in free text before it is stored.
package redact

import "regexp"

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// Applied in order; later patterns see the output of earlier ones.
var patterns = []pattern{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`\b\d{8,16}\b`), "[ACCT]"},
}

// PII replaces email addresses, phone numbers, social security numbers and
// long account numbers with placeholders.
func PII(text string) string {
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// If redacts text only when enabled is set.
func If(text string, enabled bool) string {
	if !enabled {
		return text
	}
	return PII(text)
}
