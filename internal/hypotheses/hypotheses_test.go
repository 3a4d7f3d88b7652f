package hypotheses

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/signals"
)

const wrapperLine = "ERROR:  Generator returns a non-zero value"

func sig(line int, msg, severity string) logparse.Signal {
	return logparse.Signal{LineNumber: line, Message: msg, Severity: severity}
}

func TestFromSignals(t *testing.T) {
	tests := []struct {
		name       string
		signals    []logparse.Signal
		strong     bool
		wantTexts  []string
		wantLines  []int
		wantFirstC float64
	}{
		{
			name:       "wrapper alone is demoted",
			signals:    []logparse.Signal{sig(4, wrapperLine, "E")},
			wantTexts:  []string{"FYI: Wrapper message from isisdisk.sh (no strong failure detected; often a false alarm per ops)"},
			wantLines:  []int{4},
			wantFirstC: 0.2,
		},
		{
			name:       "strong failure outranks wrapper",
			signals:    []logparse.Signal{sig(1, "PPDE3001E - Document generation failed", "E"), sig(2, wrapperLine, "E")},
			strong:     true,
			wantTexts:  []string{"Document generation error (Papyrus DocExec)", wrapperRule.text},
			wantLines:  []int{1, 2},
			wantFirstC: 0.85,
		},
		{
			name:       "oracle before wrapper",
			signals:    []logparse.Signal{sig(1, wrapperLine, "E"), sig(2, "ORA-12170 TNS connection timeout", "E")},
			strong:     true,
			wantTexts:  []string{"Database connection or query error (Oracle)", "Operation timeout (network, database, or process)", wrapperRule.text},
			wantLines:  []int{2, 2, 1},
			wantFirstC: 0.9,
		},
		{
			name:       "permission denied",
			signals:    []logparse.Signal{sig(9, "Permission denied: /home/data/input.csv", "E")},
			strong:     true,
			wantTexts:  []string{"File or directory permission error"},
			wantLines:  []int{9},
			wantFirstC: 0.95,
		},
		{
			name:       "fatal signals are considered first",
			signals:    []logparse.Signal{sig(1, "connection timeout", "E"), sig(7, "read timed out", "F")},
			wantTexts:  []string{"Operation timeout (network, database, or process)"},
			wantLines:  []int{7},
			wantFirstC: 0.85,
		},
		{
			name:       "warnings used when no errors",
			signals:    []logparse.Signal{sig(3, "Permission denied", "W")},
			wantTexts:  []string{"File or directory permission error"},
			wantLines:  []int{3},
			wantFirstC: 0.95,
		},
		{
			name:      "no match",
			signals:   []logparse.Signal{sig(3, "all good", "I")},
			wantTexts: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &logparse.Analysis{HasStrongFailure: tt.strong}
			got := FromSignals(tt.signals, a, DefaultMax)

			var texts []string
			var lines []int
			for _, h := range got {
				texts = append(texts, h.Text)
				lines = append(lines, h.LineNumber)
			}
			assert.Equal(t, tt.wantTexts, texts)
			if tt.wantLines != nil {
				assert.Equal(t, tt.wantLines, lines)
			}
			if len(got) > 0 {
				assert.Equal(t, tt.wantFirstC, got[0].Confidence)
			}
		})
	}
}

func TestFromSignalsLimitsAndTruncates(t *testing.T) {
	long := "Permission denied " + strings.Repeat("x", 150)
	got := FromSignals([]logparse.Signal{
		sig(1, long, "E"),
		sig(2, "ORA-00942 table missing", "E"),
		sig(3, "Error line 12 has 3 columns", "E"),
		sig(4, "Failed in step2", "E"),
	}, nil, 0)

	require.Len(t, got, DefaultMax)
	assert.Equal(t, "File or directory permission error", got[0].Text)
	assert.Equal(t, long[:100]+"...", got[0].Evidence)
	assert.Equal(t, 0.9, got[1].Confidence)
	assert.Equal(t, 0.9, got[2].Confidence)
	assert.Equal(t, 2, got[1].LineNumber, "stable order for equal confidence")
}

func TestExternalHypotheses(t *testing.T) {
	a := &logparse.Analysis{
		ServicesSeen: []string{"estmt", "paper"},
		Errors:       []logparse.Signal{sig(12, wrapperLine, "E")},
		ExternalSignals: []signals.Signal{
			{
				ID: signals.MissingMessageRule, Severity: "E", Category: "CONFIG",
				Captures: map[string]string{"message_id": "123456"},
				Evidence: []signals.Evidence{{LineNo: 5, LineText: "message_id 123456 not found"}},
			},
			{
				ID: signals.MissingMessageRule, Severity: "E", Category: "CONFIG",
				Captures: map[string]string{"message_id": "999"},
			},
			{
				ID: "CUSTOM_RULE", Severity: "W", Category: "MISC",
				Captures:           map[string]string{"thing": "spool"},
				Hints:              []string{"look at the spool"},
				HypothesisTemplate: "Custom {thing} failure on {service}",
				Evidence:           []signals.Evidence{{LineNo: 8, LineText: strings.Repeat("y", 200)}},
			},
			{
				ID: "ODD_RULE", Severity: "I", Category: "MISC",
				Hints: []string{"first hint", "second hint"},
			},
			{ID: "BARE_RULE", Severity: "E", Category: "NETWORK"},
		},
	}

	got := FromSignals(a.Errors, a, 10)
	require.Len(t, got, 5)

	infotrac := got[0]
	assert.True(t, infotrac.ExternalSignal)
	assert.Equal(t, signals.MissingMessageRule, infotrac.ExternalSignalID)
	assert.Equal(t, 0.95, infotrac.Confidence)
	assert.Contains(t, infotrac.Text, "Message ID 123456 not found in InfoTrac DB for service=estmt.")
	assert.Equal(t, "Review InfoTrac DB: SELECT * FROM message_map WHERE message_id = 123456", infotrac.ConfirmSteps[3])
	assert.Equal(t, "L5: message_id 123456 not found", infotrac.Evidence)
	assert.Equal(t, 5, infotrac.LineNumber)

	assert.Equal(t, "ODD_RULE", got[1].ExternalSignalID)
	assert.Equal(t, "first hint", got[1].Text)
	assert.Equal(t, []string{"second hint"}, got[1].ConfirmSteps)
	assert.Equal(t, "External signal: ODD_RULE", got[1].Evidence)
	assert.Equal(t, 0.75, got[1].Confidence)

	assert.Equal(t, "External signal: BARE_RULE (NETWORK)", got[2].Text)
	assert.Equal(t, []string{}, got[2].ConfirmSteps)

	custom := got[3]
	assert.Equal(t, "Custom spool failure on estmt", custom.Text)
	assert.Equal(t, 0.70, custom.Confidence)
	assert.Equal(t, []string{"look at the spool"}, custom.ConfirmSteps)
	assert.Len(t, []rune(custom.Evidence), maxExternalEvidence+3)

	// the wrapper is not first, so it keeps its own wording
	assert.True(t, got[4].WrapperNoise)
	assert.Equal(t, wrapperRule.confidence, got[4].Confidence)
}

func TestGenerate(t *testing.T) {
	assert.Nil(t, Generate(nil))

	a := &logparse.Analysis{Errors: []logparse.Signal{sig(2, "cannot open file /d/in.txt", "E")}}
	got := Generate(a)
	require.Len(t, got, 1)
	assert.Equal(t, "Missing input file or permission issue", got[0].Text)

	def := Default()
	require.Len(t, def, 1)
	assert.Equal(t, 0.5, def[0].Confidence)
	assert.Equal(t, "Unknown error - review log for details", def[0].Text)
}
