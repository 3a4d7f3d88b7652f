package logparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/signals"
)

const sampleLog = `2024-03-01/10:15:01.123 PPCS1001I Application started
isisdisk.sh is still alive
2024-03-01/10:15:02.456 PPDE7101W Variable not initialised [docexec.cpp,412]
$PREFIX=BKFNDS1 $JID=ds1 input=/d/bkfn/in.dat output=/d/bkfn/out.afp
running /home/master/bkfnds1_process.sh docdef=bkfnds11
2024-03-01/10:15:03.001 PPDE1234E DOCDEF 'BKFNDS11' failed
ORA-01017: invalid username/password
2024-03-01/10:15:04.000 PPST9000F Processing aborted

ERROR: Generator returns a non-zero value
`

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Signal
		ok   bool
	}{
		{
			name: "blank",
			line: "   ",
		},
		{
			name: "heartbeat",
			line: "process 42 is no longer alive",
		},
		{
			name: "info code with timestamp",
			line: "  2024-03-01/10:15:01.123 PPCS1001I started  ",
			want: Signal{LineNumber: 3, Message: "2024-03-01/10:15:01.123 PPCS1001I started", Timestamp: "2024-03-01/10:15:01.123", Code: "PPCS1001I", Severity: "I"},
			ok:   true,
		},
		{
			name: "afpr code",
			line: "AFPR0042W page overflow",
			want: Signal{LineNumber: 3, Message: "AFPR0042W page overflow", Code: "AFPR0042W", Severity: "W"},
			ok:   true,
		},
		{
			name: "oracle overrides code",
			line: "PPCS1001I ORA-00942 table missing",
			want: Signal{LineNumber: 3, Message: "PPCS1001I ORA-00942 table missing", Code: "ORA-00942", Severity: "E"},
			ok:   true,
		},
		{
			name: "source and docdef refs",
			line: "PPDE1234W DOCDEF 'ABCDEF11' [docexec.cpp,77]",
			want: Signal{LineNumber: 3, Message: "PPDE1234W DOCDEF 'ABCDEF11' [docexec.cpp,77]", Code: "PPDE1234W", Severity: "W", SourceFile: "docexec.cpp", SourceLine: 77, DocdefRef: "ABCDEF11"},
			ok:   true,
		},
		{
			name: "script line keyword",
			line: "Died at bkfn_msg.pl line 88, exception raised",
			want: Signal{LineNumber: 3, Message: "Died at bkfn_msg.pl line 88, exception raised", Severity: "E", ScriptRef: "bkfn_msg.pl", ScriptLine: 88},
			ok:   true,
		},
		{
			name: "keyword keeps fatal",
			line: "PPST9000F job aborted",
			want: Signal{LineNumber: 3, Message: "PPST9000F job aborted", Code: "PPST9000F", Severity: "F"},
			ok:   true,
		},
		{
			name: "keyword needs word boundary",
			line: "ERRORS=0 failures none",
			want: Signal{LineNumber: 3, Message: "ERRORS=0 failures none", Severity: "I"},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line, 3)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParse(t *testing.T) {
	a := NewParser(nil).Parse("/d/bkfn/bkfnds1.log", sampleLog)

	assert.Equal(t, 10, a.TotalLines)
	assert.Len(t, a.Signals, 8)
	assert.Len(t, a.Fatals, 1)
	assert.Len(t, a.Errors, 4)
	assert.Len(t, a.Warnings, 1)

	assert.Equal(t, []string{"ORA-01017", "PPCS1001I", "PPDE1234E", "PPDE7101W", "PPST9000F"}, a.ErrorCodes)
	assert.Equal(t, []string{"BKFNDS11"}, a.DocdefRefs)
	assert.Equal(t, []string{"bkfnds1"}, a.PrefixTokens)
	assert.Equal(t, []string{"ds1"}, a.JIDTokens)
	assert.Equal(t, []string{"/home/master/bkfnds1_process.sh"}, a.ScriptPaths)
	assert.Equal(t, []string{"BKFNDS11"}, a.DocdefTokens)
	assert.Equal(t, []string{"/d/bkfn/in.dat", "/d/bkfn/out.afp"}, a.IOPaths)
	assert.True(t, a.HasWrapperNoise)
	assert.True(t, a.HasStrongFailure)
	assert.Empty(t, a.ExternalSignals)
}

func TestParseWrapperOnly(t *testing.T) {
	a := NewParser(nil).Parse("x.log", "step 1 ok\nERROR: Generator returns a non-zero value\n")
	assert.True(t, a.HasWrapperNoise)
	assert.False(t, a.HasStrongFailure)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, 2, a.Errors[0].LineNumber)
}

func TestParseExternalSignals(t *testing.T) {
	rules, err := signals.Parse([]byte(`
rules:
  - id: REFUSED
    severity: F
    category: NETWORK
    patterns: ['connection refused']
  - id: MISSING
    severity: E
    category: CONFIG
    patterns: ['message id (?P<message_id>\d+) not found']
`))
	require.NoError(t, err)

	text := "call services=estmt\nconnection refused\nmessage id 55 not found\n"
	a := NewParser(rules).Parse("x.log", text)

	require.Len(t, a.ExternalSignals, 2)
	assert.Equal(t, "REFUSED", a.ExternalSignals[0].ID)
	assert.True(t, a.HasStrongFailure, "fatal external signal is a strong failure")
	assert.Equal(t, []string{"estmt"}, a.ServicesSeen)
	assert.Empty(t, a.MissingMessageIDs, "only the message-id rule feeds missing ids")
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.log")
	require.NoError(t, os.WriteFile(path, []byte("ok\r\nPPDE0001E bad \xff byte\r\n"), 0o644))

	a, err := NewParser(nil).ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, a.TotalLines)
	require.Len(t, a.Errors, 1)
	assert.Contains(t, a.Errors[0].Message, "\uFFFD")

	a, err = NewParser(nil).ParseFile(filepath.Join(dir, "missing.log"))
	require.Error(t, err)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, 0, a.Errors[0].LineNumber)
	assert.Contains(t, a.Errors[0].Message, "Error reading file")
}

func TestSummary(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("PPDE0001E failure\n")
	}
	a := NewParser(nil).Parse("many.log", b.String())

	s := a.Summary()
	assert.Equal(t, 12, s.ErrorCount)
	assert.Len(t, s.TopErrors, 10)
	assert.Equal(t, []string{}, s.ScriptRefs)

	js, err := a.JSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"error_count":12`)
	assert.Contains(t, js, `"script_refs":[]`)
}
