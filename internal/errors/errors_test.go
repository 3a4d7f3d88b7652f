package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindDatabase, SeverityHigh, "query"))
}

func TestErrorChain(t *testing.T) {
	cause := stderrors.New("disk full")
	err := FileSystemError(cause, "write artifact")
	wrapped := fmt.Errorf("scan: %w", err)

	assert.Equal(t, "write artifact: disk full", err.Error())
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.Equal(t, KindFileSystem, KindOf(wrapped))
	assert.Equal(t, SeverityHigh, SeverityOf(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.True(t, stderrors.Is(wrapped, &Error{Kind: KindFileSystem}))
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		kind  Kind
		fatal bool
	}{
		{"config", ConfigErrorf("bad storage type %q", "mysql"), KindConfig, true},
		{"validation", ValidationError("nil store"), KindValidation, false},
		{"database", DatabaseError(stderrors.New("locked"), "insert node"), KindDatabase, true},
		{"parse", ParseErrorf(stderrors.New("eof"), "procs %s", "x.procs"), KindParse, false},
		{"internal", InternalErrorf("unreachable"), KindInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.fatal, tt.err.IsFatal())
		})
	}
}

func TestDetailedString(t *testing.T) {
	err := ValidationErrorf("limit must be positive, got %d", -1).
		WithContext("command", "plan").
		WithContext("arg", "limit")

	out := err.DetailedString()
	assert.Contains(t, out, "[HIGH] [VALIDATION] limit must be positive, got -1")
	assert.Contains(t, out, "  arg: limit\n  command: plan\n")
}

func TestPlainErrorDefaults(t *testing.T) {
	plain := stderrors.New("boom")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, SeverityMedium, SeverityOf(plain))
	assert.Equal(t, SeverityLow, SeverityOf(nil))
}
