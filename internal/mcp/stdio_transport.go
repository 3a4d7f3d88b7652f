package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/mcp/tools"
)

// maxMessageSize bounds one JSON-RPC line.
const maxMessageSize = 4 * 1024 * 1024

// StdioTransport handles newline-delimited JSON-RPC over a reader/writer
// pair, normally stdin and stdout.
type StdioTransport struct {
	scanner *bufio.Scanner
	out     io.Writer
	handler *Handler
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(handler *Handler, in io.Reader, out io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	return &StdioTransport{
		scanner: scanner,
		out:     out,
		handler: handler,
	}
}

// Serve answers requests until the input ends or ctx is cancelled.
func (t *StdioTransport) Serve(ctx context.Context) error {
	for t.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}

		var req tools.JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if err := t.send(errorResponse(nil, tools.CodeParseError, "Parse error")); err != nil {
				return err
			}
			continue
		}

		response := t.handler.Handle(ctx, &req)
		if response == nil {
			continue
		}
		if err := t.send(response); err != nil {
			return err
		}
	}
	return t.scanner.Err()
}

func (t *StdioTransport) send(resp *tools.JSONRPCResponse) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		respJSON, _ = json.Marshal(errorResponse(resp.ID, tools.CodeInternalError, "encode response: "+err.Error()))
	}
	if _, err := fmt.Fprintln(t.out, string(respJSON)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
