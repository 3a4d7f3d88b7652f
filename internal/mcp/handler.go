// Package mcp serves the triage tools to editor agents over the Model
// Context Protocol (JSON-RPC 2.0 on stdio).
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/mcp/tools"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

// Tool represents an MCP tool
type Tool interface {
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
	GetSchema() map[string]interface{}
	Description() string
}

// Handler handles MCP protocol requests
type Handler struct {
	name    string
	version string
	tools   map[string]Tool
	logger  *slog.Logger
}

// NewHandler creates a new MCP handler
func NewHandler(name, version string) *Handler {
	return &Handler{
		name:    name,
		version: version,
		tools:   make(map[string]Tool),
		logger:  logging.Component("mcp"),
	}
}

// RegisterTool registers a tool with the handler
func (h *Handler) RegisterTool(name string, tool Tool) {
	h.tools[name] = tool
}

// Handle processes a JSON-RPC request. Notifications get no response: the
// return value is nil.
func (h *Handler) Handle(ctx context.Context, req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		h.logger.Debug("notification", "method", req.Method)
		return nil
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, tools.CodeInvalidRequest, "Invalid Request")
	}

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "ping":
		return &tools.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return h.handleToolsList(req)
	case "tools/call":
		return h.handleToolCall(ctx, req)
	default:
		return errorResponse(req.ID, tools.CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func errorResponse(id interface{}, code int, message string) *tools.JSONRPCResponse {
	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &tools.JSONRPCError{Code: code, Message: message},
	}
}

// handleInitialize handles the initialize request
func (h *Handler) handleInitialize(req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]string{
				"name":    h.name,
				"version": h.version,
			},
		},
	}
}

// handleToolsList lists tools by name.
func (h *Handler) handleToolsList(req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	toolsList := []map[string]interface{}{}
	for _, name := range names {
		tool := h.tools[name]
		toolsList = append(toolsList, map[string]interface{}{
			"name":        name,
			"description": tool.Description(),
			"inputSchema": tool.GetSchema(),
		})
	}

	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": toolsList,
		},
	}
}

// handleToolCall handles the tools/call request
func (h *Handler) handleToolCall(ctx context.Context, req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	toolName, ok := req.Params["name"].(string)
	if !ok || toolName == "" {
		return errorResponse(req.ID, tools.CodeInvalidParams, "Invalid params: 'name' is required")
	}

	tool, exists := h.tools[toolName]
	if !exists {
		return errorResponse(req.ID, tools.CodeInvalidParams, "Tool not found: "+toolName)
	}

	args, ok := req.Params["arguments"].(map[string]interface{})
	if !ok {
		args = make(map[string]interface{})
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		var argErr *tools.ArgError
		if errors.As(err, &argErr) {
			return errorResponse(req.ID, tools.CodeInvalidParams, "Invalid params: "+argErr.Error())
		}
		h.logger.Warn("tool failed", "tool", toolName, "error", err)
		return errorResponse(req.ID, tools.CodeInternalError, "Tool execution error: "+err.Error())
	}

	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}
