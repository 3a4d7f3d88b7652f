package tools

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/triage"
)

// Explainer runs the explain pipeline.
type Explainer interface {
	Explain(ctx context.Context, req triage.ExplainRequest) (*output.Report, error)
}

// ExplainLogTool implements the explain_log tool
type ExplainLogTool struct {
	explainer Explainer
}

func NewExplainLogTool(explainer Explainer) *ExplainLogTool {
	return &ExplainLogTool{explainer: explainer}
}

func (t *ExplainLogTool) Description() string {
	return "Explain a failed batch-job log: the most likely failing job definition, " +
		"its execution chain, decoded message codes, hypotheses and similar past cases."
}

func (t *ExplainLogTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"log_path": map[string]interface{}{"type": "string", "description": "Path of the log file to explain"},
			"proc":     map[string]interface{}{"type": "string", "description": "Force the match to this job definition"},
			"format":   map[string]interface{}{"type": "string", "enum": []string{"json", "text"}, "description": "Result format, json by default"},
			"persist":  map[string]interface{}{"type": "boolean", "description": "Record the result as an incident"},
		},
		"required": []string{"log_path"},
	}
}

func (t *ExplainLogTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	logPath, err := stringArg(args, "log_path", true)
	if err != nil {
		return nil, err
	}
	proc, err := stringArg(args, "proc", false)
	if err != nil {
		return nil, err
	}
	persist, err := boolArg(args, "persist")
	if err != nil {
		return nil, err
	}
	format, err := stringArg(args, "format", false)
	if err != nil {
		return nil, err
	}
	var formatter output.Formatter = &output.JSONFormatter{}
	switch format {
	case "", "json":
	case "text":
		formatter = &output.TextFormatter{}
	default:
		return nil, &ArgError{Arg: "format", Reason: "must be json or text"}
	}

	report, err := t.explainer.Explain(ctx, triage.ExplainRequest{LogPath: logPath, Proc: proc, Persist: persist})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := formatter.Format(report, &buf); err != nil {
		return nil, err
	}
	if format == "text" {
		return TextResult(buf.String()), nil
	}
	return JSONResult(json.RawMessage(buf.Bytes()))
}
