package tools

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call result envelope.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult wraps plain text.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// JSONResult encodes v as indented JSON text.
func JSONResult(v interface{}) (*CallResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return TextResult(string(b)), nil
}

// ArgError reports unusable tool arguments. The handler answers it with
// CodeInvalidParams instead of CodeInternalError.
type ArgError struct {
	Arg    string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Reason)
}

func stringArg(args map[string]interface{}, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return "", &ArgError{Arg: name, Reason: "is required"}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Arg: name, Reason: "must be a string"}
	}
	if required && s == "" {
		return "", &ArgError{Arg: name, Reason: "is required"}
	}
	return s, nil
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]interface{}, name string) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(int(n)) {
			return 0, &ArgError{Arg: name, Reason: "must be a non-negative integer"}
		}
		return int(n), nil
	case int:
		if n < 0 {
			return 0, &ArgError{Arg: name, Reason: "must be a non-negative integer"}
		}
		return n, nil
	}
	return 0, &ArgError{Arg: name, Reason: "must be a number"}
}

func boolArg(args map[string]interface{}, name string) (bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ArgError{Arg: name, Reason: "must be a boolean"}
	}
	return b, nil
}
