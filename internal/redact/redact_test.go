package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "mail ops.team@example.com now", "mail [EMAIL] now"},
		{"phone dashed", "call 555-123-4567", "call [PHONE]"},
		{"phone dotted", "call 555.123.4567", "call [PHONE]"},
		{"ssn", "ssn 123-45-6789 on file", "ssn [SSN] on file"},
		{"account", "acct 123456789012 closed", "acct [ACCT] closed"},
		{"ten digits read as phone", "id 1234567890", "id [PHONE]"},
		{"short numbers kept", "RC=12 at line 4567", "RC=12 at line 4567"},
		{"codes kept", "PPDE1234E ORA-12170", "PPDE1234E ORA-12170"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PII(tt.in))
		})
	}
}

func TestIf(t *testing.T) {
	in := "contact a@b.io"
	assert.Equal(t, in, If(in, false))
	assert.Equal(t, "contact [EMAIL]", If(in, true))
}
