package tools

import (
	"context"

	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/planner"
)

// BundlePlanner ranks edit bundles for the snapshot it is bound to.
type BundlePlanner interface {
	Plan(ctx context.Context, req planner.Request) (planner.Result, error)
	SnapshotRoot() string
}

// PlanBundleTool implements the plan_bundle tool
type PlanBundleTool struct {
	planner BundlePlanner
}

func NewPlanBundleTool(p BundlePlanner) *PlanBundleTool {
	return &PlanBundleTool{planner: p}
}

func (t *PlanBundleTool) Description() string {
	return "Find the job definition and the files to edit for a change request, " +
		"given a customer id, a job id or a free-text title."
}

func (t *PlanBundleTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cid":    map[string]interface{}{"type": "string", "description": "Customer id, e.g. WCCU"},
			"job_id": map[string]interface{}{"type": "string", "description": "Job id, e.g. DS1 or DLA"},
			"title":  map[string]interface{}{"type": "string", "description": "Ticket title, e.g. 'WCCU Letter 14 rate change'"},
			"limit":  map[string]interface{}{"type": "integer", "description": "Number of candidates to rank"},
			"format": map[string]interface{}{"type": "string", "enum": []string{"json", "prompt"}, "description": "json by default; prompt returns a Markdown brief"},
			"lang":   map[string]interface{}{"type": "string", "enum": output.Languages(), "description": "Language of the prompt"},
		},
	}
}

func (t *PlanBundleTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req planner.Request
	var err error
	if req.CID, err = stringArg(args, "cid", false); err != nil {
		return nil, err
	}
	if req.JobID, err = stringArg(args, "job_id", false); err != nil {
		return nil, err
	}
	if req.Title, err = stringArg(args, "title", false); err != nil {
		return nil, err
	}
	if req.Limit, err = intArg(args, "limit"); err != nil {
		return nil, err
	}
	if req.CID == "" && req.JobID == "" && req.Title == "" {
		return nil, &ArgError{Arg: "cid", Reason: "one of cid, job_id or title is required"}
	}
	format, err := stringArg(args, "format", false)
	if err != nil {
		return nil, err
	}
	if format != "" && format != "json" && format != "prompt" {
		return nil, &ArgError{Arg: "format", Reason: "must be json or prompt"}
	}
	lang, err := stringArg(args, "lang", false)
	if err != nil {
		return nil, err
	}

	res, err := t.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	report := &output.PlanReport{SnapshotRoot: t.planner.SnapshotRoot(), Result: res, Lang: lang}
	if format == "prompt" {
		text, err := output.PlanPrompt(report)
		if err != nil {
			return nil, err
		}
		return TextResult(text), nil
	}
	return JSONResult(output.PlanJSON(report))
}
