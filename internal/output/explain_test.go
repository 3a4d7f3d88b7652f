package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/hypotheses"
	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/matching"
	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/signals"
	"github.com/rohankatakam/jobtriage/internal/similarity"
)

func newReport(a *logparse.Analysis) *Report {
	return &Report{
		LogPath:      "/test/sample.log",
		SnapshotRoot: "/snap",
		GeneratedAt:  time.Date(2026, 1, 27, 9, 30, 0, 0, time.UTC),
		Analysis:     a,
		Codes:        map[string]models.MessageCode{},
	}
}

func render(t *testing.T, r *Report) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, (&TextFormatter{}).Format(r, &buf))
	return buf.String()
}

func TestTextDecodedCodes(t *testing.T) {
	tests := []struct {
		name   string
		codes  []string
		kb     map[string]models.MessageCode
		want   []string
		absent []string
	}{
		{
			name:  "unknown when kb is empty",
			codes: []string{"PPCS1001E", "PPDE2001I"},
			want:  []string{"PAPYRUS/DOCEXEC CODES", "PPCS1001E - UNKNOWN CODE (not in KB yet)"},
		},
		{
			name:  "decoded when kb has the code",
			codes: []string{"PPCS1001E"},
			kb: map[string]models.MessageCode{
				"PPCS1001E": {Code: "PPCS1001E", Severity: "E", Title: "Open failed", Body: "The input file could not be opened."},
			},
			want:   []string{"PPCS1001E [Error]", "Title: Open failed", "The input file could not be opened."},
			absent: []string{"UNKNOWN CODE"},
		},
		{
			name:  "mixed known and unknown",
			codes: []string{"PPCS1001E", "PPCS9999W"},
			kb: map[string]models.MessageCode{
				"PPCS1001E": {Code: "PPCS1001E", Severity: "E", Body: "known"},
			},
			want: []string{"PPCS1001E [Error]", "PPCS9999W - UNKNOWN CODE"},
		},
		{
			name:   "no codes",
			want:   []string{"No Papyrus/DocExec codes found in log"},
			absent: []string{"UNKNOWN CODE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReport(&logparse.Analysis{Path: "/test/sample.log", TotalLines: 100, ErrorCodes: tt.codes})
			if tt.kb != nil {
				r.Codes = tt.kb
			}
			out := render(t, r)
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestTextFatalCodesFirst(t *testing.T) {
	out := render(t, newReport(&logparse.Analysis{ErrorCodes: []string{"PPDE2001I", "PPCS1001E", "PPCS1037F"}}))
	section := out[strings.Index(out, "3b. PAPYRUS"):]
	f, e, i := strings.Index(section, "PPCS1037F"), strings.Index(section, "PPCS1001E"), strings.Index(section, "PPDE2001I")
	assert.Less(t, f, e)
	assert.Less(t, e, i)
}

func TestPrioritizeCodes(t *testing.T) {
	codes := []string{"A1I", "B1E", "C1F", "D1W", "E1F"}
	assert.Equal(t, []string{"C1F", "E1F", "B1E", "A1I", "D1W"}, PrioritizeCodes(codes, 10))
	assert.Equal(t, []string{"C1F", "E1F"}, PrioritizeCodes(codes, 2))
	assert.Empty(t, PrioritizeCodes(nil, 10))
}

func TestTextFilesFromLogEvidence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docdef"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docdef", "bkfnds11.dfa"), nil, 0o644))

	tests := []struct {
		name     string
		analysis logparse.Analysis
		want     []string
	}{
		{
			name:     "docdef tokens mapped to snapshot",
			analysis: logparse.Analysis{DocdefTokens: []string{"BKFNDS11", "ACBKDS21"}},
			want: []string{
				"DOCDEF tokens found:",
				"BKFNDS11 -> " + filepath.Join(root, "docdef", "bkfnds11.dfa"),
				"ACBKDS21 (docdef not found in snapshot)",
			},
		},
		{
			name:     "script paths",
			analysis: logparse.Analysis{ScriptPaths: []string{"/home/master/process.sh", "/home/master/validate.pl"}},
			want:     []string{"Script paths:", "/home/master/process.sh (not in snapshot)", "/home/master/validate.pl"},
		},
		{
			name:     "io paths",
			analysis: logparse.Analysis{IOPaths: []string{"/d/acbk/input/data.csv", "/d/acbk/output/report.afp"}},
			want:     []string{"Input/Output paths", "/d/acbk/input/data.csv", "/d/acbk/output/report.afp"},
		},
		{
			name: "nothing extracted",
			want: []string{"No file references extracted from log"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReport(&tt.analysis)
			r.Resolver = paths.NewResolver(root)
			out := render(t, r)
			assert.Contains(t, out, "FILES FROM LOG EVIDENCE")
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestTextSectionsInOrder(t *testing.T) {
	out := render(t, newReport(&logparse.Analysis{ErrorCodes: []string{"PPCS1001E"}}))

	sections := []string{
		"JTRIAGE CONTEXT PACK",
		"1. MOST LIKELY FAILING NODE",
		"2. EXECUTION CHAIN",
		"3. EVIDENCE",
		"3b. PAPYRUS/DOCEXEC CODES",
		"3c. FILES FROM LOG EVIDENCE",
		"3d. EXTERNAL CONFIG SIGNALS",
		"4. TOP HYPOTHESES",
		"5. FILES TO OPEN",
		"6. SUGGESTED COMMANDS",
		"7. SIMILAR PAST CASES",
		"END OF CONTEXT PACK",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %s", s)
		assert.Greater(t, idx, last, "section %s out of order", s)
		last = idx
	}
	assert.Contains(t, out, "NOT FOUND - could not determine failing node")
	assert.Contains(t, out, "grep -n 'PPCS1001E' /test/sample.log")
}

func TestTextFullReport(t *testing.T) {
	line := 12
	node := &graph.Node{ID: 1, Type: graph.NodeProc, Key: "proc:wccuds1", DisplayName: "WCCU - Statements", CanonicalPath: "procs/wccuds1.procs"}
	r := newReport(&logparse.Analysis{
		Errors:     []logparse.Signal{{LineNumber: 12, Message: strings.Repeat("x", 200), Severity: "E"}},
		ErrorCodes: []string{"PPCS1037F"},
		ExternalSignals: []signals.Signal{
			{ID: "warn_rule", Severity: "W", Category: "config"},
			{ID: "fatal_rule", Severity: "F", Category: "infotrac", Captures: map[string]string{"b": "2", "a": "1"},
				Evidence: []signals.Evidence{{LineNo: 3, LineText: "Message ID 42 not found"}}},
		},
		ServicesSeen:      []string{"infotrac"},
		MissingMessageIDs: []string{"42"},
	})
	r.Match = matching.Result{Node: node, Confidence: 0.56}
	r.Neighbors = &graph.Neighbors{
		Upstream: []graph.Neighbor{{Node: graph.Node{Type: graph.NodeScript, DisplayName: "wccuds1.sh"}, RelType: graph.RelRuns,
			Evidence: &graph.Evidence{File: "procs/wccuds1.procs", LineNo: &line}}},
	}
	r.Hypotheses = []hypotheses.Hypothesis{{Text: "Oracle connection failed", Evidence: "ORA-12170", LineNumber: 12, ConfirmSteps: []string{"Check tnsnames.ora"}}}
	r.Similar = []similarity.Case{{CaseID: 1, Title: "chown fix", Score: 0.5, RootCause: "perm", VerifyCommands: []string{"ls -l"}}}
	r.RelatedFiles = []string{"/snap/procs/wccuds1.procs"}
	r.IncidentID = "abc"

	out := render(t, r)
	for _, s := range []string{
		"Incident: abc",
		"Node: WCCU - Statements (confidence: 56%)",
		"Path: " + filepath.Join("/snap", "procs", "wccuds1.procs"),
		"[script] wccuds1.sh --RUNS--> (this)",
		"Downstream: (none)",
		"L12: " + strings.Repeat("x", 120) + "...",
		"[FATAL] fatal_rule (infotrac)",
		"Captures: a=1, b=2",
		"L3: Message ID 42 not found",
		"Services detected: infotrac",
		"InfoTrac missing message IDs: 42",
		"1. Oracle connection failed",
		"- Check tnsnames.ora",
		"[chown fix] (match: 50%)",
		"Root cause: perm",
		"    ls -l",
	} {
		assert.Contains(t, out, s)
	}
	assert.Less(t, strings.Index(out, "fatal_rule"), strings.Index(out, "warn_rule"))
}

func TestTextTruncatesLongReports(t *testing.T) {
	hyps := make([]hypotheses.Hypothesis, 60)
	for i := range hyps {
		hyps[i] = hypotheses.Hypothesis{Text: "h", ConfirmSteps: []string{"a", "b"}}
	}
	r := newReport(&logparse.Analysis{})
	r.Hypotheses = hyps

	out := strings.TrimRight(render(t, r), "\n")
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, MaxReportLines)
	assert.Contains(t, lines[len(lines)-2], "[Truncated - ")
}

func TestTextRequiresAnalysis(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, (&TextFormatter{}).Format(&Report{}, &buf))
	assert.Error(t, (&JSONFormatter{}).Format(nil, &buf))
}

func TestJSONFormatter(t *testing.T) {
	r := newReport(&logparse.Analysis{Path: "/test/sample.log", TotalLines: 10, ErrorCodes: []string{"PPCS1001E", "PPCS1037F"}})
	r.Codes["PPCS1037F"] = models.MessageCode{Code: "PPCS1037F", Severity: "F", Body: "fatal"}
	r.Match = matching.Result{Node: &graph.Node{Key: "proc:x"}, Confidence: 0.3}

	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(r, &buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/test/sample.log", doc["log_path"])

	match := doc["match"].(map[string]any)
	assert.Equal(t, true, match["found"])
	assert.InDelta(t, 0.3, match["confidence"], 1e-9)

	codes := doc["codes"].([]any)
	require.Len(t, codes, 2)
	first := codes[0].(map[string]any)
	assert.Equal(t, "PPCS1037F", first["code"])
	assert.Equal(t, true, first["known"])
	assert.Equal(t, false, codes[1].(map[string]any)["known"])

	assert.Equal(t, []any{}, doc["hypotheses"])
	assert.Nil(t, doc["neighbors"])
}
