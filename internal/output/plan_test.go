package output

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/planner"
)

func samplePlan() *PlanReport {
	return &PlanReport{
		SnapshotRoot: "/snap",
		Lang:         "en",
		Result: planner.Result{
			Intent: planner.Intent{CID: "wccu", LetterNumber: "014", Keywords: []string{"rate"}, RawTitle: "WCCU Letter 14 rate"},
			Candidates: []planner.Candidate{
				{
					Key: "proc:wccudla", DisplayName: "WCCU - Letters", Score: 85,
					Breakdown: []planner.ScoreItem{{Rule: "cid_prefix", Points: 15}, {Rule: "letter_match", Points: 70}},
					Files: []planner.BundleFile{
						{Kind: "procs", Path: "procs/wccudla.procs", Source: planner.SourceProcFile},
						{Kind: "docdef", Path: "docdef/WCCUDL014.dfa", Source: planner.SourceControlDFA},
					},
				},
				{Key: "proc:wccuds1", DisplayName: "WCCU - Statements", Score: 40, Files: []planner.BundleFile{{Kind: "procs", Path: "procs/wccuds1.procs"}}},
			},
			Total: 2,
		},
	}
}

func TestPlanText(t *testing.T) {
	out := PlanText(samplePlan())

	for _, s := range []string{
		"═══ PARSED INTENT ═══",
		"  CID:            wccu",
		"  Job ID:         (none)",
		"  Letter number:  014",
		"  Keywords:       rate",
		"═══ SELECTED BUNDLE ═══",
		"  #1  proc:wccudla  [WCCU - Letters]  score=85",
		"       files: 2",
		"         docdef    docdef/WCCUDL014.dfa  (" + planner.SourceControlDFA + ")",
		"═══ FILES TO OPEN ═══",
		"  " + filepath.Join("/snap", "docdef", "WCCUDL014.dfa"),
		"═══ OTHER CANDIDATES (1) ═══",
		"  #2  proc:wccuds1  [WCCU - Statements]  score=40  files=1",
	} {
		assert.Contains(t, out, s)
	}
	assert.NotContains(t, out, "+70  letter_match", "breakdown is debug only")
}

func TestPlanTextModes(t *testing.T) {
	t.Run("debug shows breakdown", func(t *testing.T) {
		r := samplePlan()
		r.Debug = true
		assert.Contains(t, PlanText(r), "       +70  letter_match")
	})

	t.Run("all shows every candidate in detail", func(t *testing.T) {
		r := samplePlan()
		r.ShowAll = true
		out := PlanText(r)
		assert.Contains(t, out, "═══ BUNDLE CANDIDATES (2) ═══")
		assert.Contains(t, out, "  #2  proc:wccuds1  [WCCU - Statements]  score=40\n")
		assert.NotContains(t, out, "OTHER CANDIDATES")
	})

	t.Run("no candidates", func(t *testing.T) {
		r := &PlanReport{SnapshotRoot: "/snap", Lang: "en"}
		out := PlanText(r)
		assert.Contains(t, out, "═══ BUNDLE CANDIDATES (0) ═══")
		assert.Contains(t, out, "(no matching procs found)")
		assert.True(t, strings.HasSuffix(out, "  (no files)"))
	})

	t.Run("russian", func(t *testing.T) {
		r := samplePlan()
		r.Lang = "ru"
		out := PlanText(r)
		assert.Contains(t, out, "═══ ВЫБРАННЫЙ ПАКЕТ ═══")
		assert.Contains(t, out, "  Номер письма:   014")
		assert.Contains(t, out, "файлов=1")
	})

	t.Run("unknown language falls back to english", func(t *testing.T) {
		r := samplePlan()
		r.Lang = "de"
		assert.Contains(t, PlanText(r), "SELECTED BUNDLE")
	})
}

func TestPlanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, samplePlan(), FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/snap", doc["snapshot_root"])
	assert.Equal(t, "014", doc["intent"].(map[string]any)["letter_number"])

	sel := doc["selected_bundle"].(map[string]any)
	assert.Equal(t, float64(1), sel["rank"])
	assert.Equal(t, float64(85), sel["score"])
	files := sel["files"].([]any)
	require.Len(t, files, 2)
	f := files[1].(map[string]any)
	assert.Equal(t, filepath.Join("/snap", "docdef", "WCCUDL014.dfa"), f["abs_path"])
	assert.Equal(t, planner.SourceControlDFA, f["reason"])

	others := doc["other_candidates_summary"].([]any)
	require.Len(t, others, 1)
	assert.Equal(t, float64(2), others[0].(map[string]any)["rank"])
	assert.Equal(t, float64(1), others[0].(map[string]any)["file_count"])
}

func TestPlanJSONEmpty(t *testing.T) {
	doc := PlanJSON(&PlanReport{SnapshotRoot: "/snap"})
	assert.Nil(t, doc.SelectedBundle)
	assert.Empty(t, doc.Others)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"selected_bundle":null`)
	assert.Contains(t, string(b), `"keywords":[]`)
}

func TestPlanPrompt(t *testing.T) {
	out, err := PlanPrompt(samplePlan())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# jtriage Bundle Plan\n"))
	assert.Contains(t, out, "## Instructions")
	assert.Contains(t, out, "1. Open files from `selected_bundle.files` (abs_path).")
	assert.Contains(t, out, "7. Be concise.")
	assert.Contains(t, out, "```json\n{\n  \"snapshot_root\": \"/snap\",")
	assert.True(t, strings.HasSuffix(out, "Snapshot root: `/snap`"))

	ru := samplePlan()
	ru.Lang = "ru"
	out, err = PlanPrompt(ru)
	require.NoError(t, err)
	assert.Contains(t, out, "## Инструкции")
}

func TestWritePlanRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WritePlan(&buf, samplePlan(), Format("xml")))
}
