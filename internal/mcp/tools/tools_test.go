package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/matching"
	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/planner"
	"github.com/rohankatakam/jobtriage/internal/triage"
)

type fakeExplainer struct {
	got triage.ExplainRequest
	err error
}

func (f *fakeExplainer) Explain(_ context.Context, req triage.ExplainRequest) (*output.Report, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &output.Report{
		LogPath:  req.LogPath,
		Analysis: &logparse.Analysis{Path: req.LogPath, ErrorCodes: []string{"PPCS1037F"}},
		Match:    matching.Result{Node: &graph.Node{Key: "proc:wccuds1"}, Confidence: 0.8},
	}, nil
}

type fakePlanner struct {
	got planner.Request
}

func (f *fakePlanner) SnapshotRoot() string { return "/snap" }
func (f *fakePlanner) Plan(_ context.Context, req planner.Request) (planner.Result, error) {
	f.got = req
	return planner.Result{
		Intent:     planner.Intent{CID: req.CID},
		Candidates: []planner.Candidate{{Key: "proc:wccuds1", Score: 90, Files: []planner.BundleFile{{Kind: "procs", Path: "procs/wccuds1.procs"}}}},
		Total:      1,
	}, nil
}

func resultText(t *testing.T, v interface{}) string {
	t.Helper()
	res, ok := v.(*CallResult)
	require.True(t, ok)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	return res.Content[0].Text
}

func TestExplainLogTool(t *testing.T) {
	fake := &fakeExplainer{}
	tool := NewExplainLogTool(fake)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"log_path": "/d/wccuds1.log", "proc": "wccuds1", "persist": true})
	require.NoError(t, err)
	assert.Equal(t, triage.ExplainRequest{LogPath: "/d/wccuds1.log", Proc: "wccuds1", Persist: true}, fake.got)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, out)), &doc))
	assert.Equal(t, "/d/wccuds1.log", doc["log_path"])
	assert.Equal(t, "proc:wccuds1", doc["match"].(map[string]interface{})["node"].(map[string]interface{})["key"])

	out, err = tool.Execute(ctx, map[string]interface{}{"log_path": "/d/wccuds1.log", "format": "text"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, out), "JTRIAGE CONTEXT PACK")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing log path", map[string]interface{}{}},
		{"empty log path", map[string]interface{}{"log_path": ""}},
		{"log path not a string", map[string]interface{}{"log_path": 3.0}},
		{"persist not a bool", map[string]interface{}{"log_path": "x", "persist": "yes"}},
		{"bad format", map[string]interface{}{"log_path": "x", "format": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(ctx, tt.args)
			var argErr *ArgError
			assert.ErrorAs(t, err, &argErr)
		})
	}

	fake.err = fmt.Errorf("database locked")
	_, err = tool.Execute(ctx, map[string]interface{}{"log_path": "x"})
	assert.ErrorContains(t, err, "database locked")
}

func TestPlanBundleTool(t *testing.T) {
	fake := &fakePlanner{}
	tool := NewPlanBundleTool(fake)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"cid": "WCCU", "job_id": "DS1", "limit": 3.0})
	require.NoError(t, err)
	assert.Equal(t, planner.Request{CID: "WCCU", JobID: "DS1", Limit: 3}, fake.got)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, out)), &doc))
	assert.Equal(t, "/snap", doc["snapshot_root"])
	assert.Equal(t, "proc:wccuds1", doc["selected_bundle"].(map[string]interface{})["key"])

	out, err = tool.Execute(ctx, map[string]interface{}{"title": "WCCU Letter 14", "format": "prompt", "lang": "ru"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, out), "## Инструкции")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"nothing to plan for", map[string]interface{}{}},
		{"fractional limit", map[string]interface{}{"cid": "x", "limit": 1.5}},
		{"negative limit", map[string]interface{}{"cid": "x", "limit": -1.0}},
		{"limit not a number", map[string]interface{}{"cid": "x", "limit": "3"}},
		{"bad format", map[string]interface{}{"cid": "x", "format": "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(ctx, tt.args)
			var argErr *ArgError
			assert.ErrorAs(t, err, &argErr)
		})
	}
}

func TestSchemas(t *testing.T) {
	explain := NewExplainLogTool(&fakeExplainer{}).GetSchema()
	assert.Equal(t, []string{"log_path"}, explain["required"])
	assert.NotEmpty(t, NewExplainLogTool(nil).Description())

	plan := NewPlanBundleTool(&fakePlanner{}).GetSchema()
	assert.Contains(t, plan["properties"], "title")
}
