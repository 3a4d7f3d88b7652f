package mcp

import (
	"context"
	"io"

	"github.com/rohankatakam/jobtriage/internal/mcp/tools"
	"github.com/rohankatakam/jobtriage/internal/triage"
)

// Tool names
const (
	ToolExplainLog = "explain_log"
	ToolPlanBundle = "plan_bundle"
)

// NewTriageHandler registers the triage tools for one snapshot.
func NewTriageHandler(svc *triage.Service, version string) *Handler {
	h := NewHandler("jtriage", version)
	h.RegisterTool(ToolExplainLog, tools.NewExplainLogTool(svc))
	h.RegisterTool(ToolPlanBundle, tools.NewPlanBundleTool(svc))
	return h
}

// Serve runs the triage MCP server on in/out until the input closes.
func Serve(ctx context.Context, svc *triage.Service, version string, in io.Reader, out io.Writer) error {
	h := NewTriageHandler(svc, version)
	h.logger.Info("mcp server started", "snapshot", svc.SnapshotRoot())
	return NewStdioTransport(h, in, out).Serve(ctx)
}
