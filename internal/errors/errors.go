// Package errors provides the structured error type shared by the triage
// packages. Callers attach a Kind and Severity so the CLI can decide whether
// a failure aborts the command or is reported and skipped.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Kind is the category of a failure.
type Kind int

const (
	// KindConfig - missing or invalid configuration
	KindConfig Kind = iota
	// KindValidation - caller supplied an unusable argument
	KindValidation
	// KindDatabase - store connection or query failure
	KindDatabase
	// KindFileSystem - snapshot, log or history file I/O
	KindFileSystem
	// KindParse - input file could not be interpreted (rules, PDF, procs)
	KindParse
	// KindExternal - Neo4j or another remote collaborator
	KindExternal
	// KindInternal - unexpected internal state
	KindInternal
)

// Severity tells the caller how to react.
type Severity int

const (
	// SeverityLow - skip the item and continue
	SeverityLow Severity = iota
	// SeverityMedium - report, result may be partial
	SeverityMedium
	// SeverityHigh - the current operation failed
	SeverityHigh
	// SeverityCritical - stop the command
	SeverityCritical
)

// Error is a failure with kind, severity and key/value context.
type Error struct {
	Kind       Kind
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsFatal returns true if the command should stop.
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString renders the error with its context for -v output.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Kind, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "Stack trace:\n%s\n", e.StackTrace)
	}
	return sb.String()
}

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "CONFIG"
	case KindValidation:
		return "VALIDATION"
	case KindDatabase:
		return "DATABASE"
	case KindFileSystem:
		return "FILESYSTEM"
	case KindParse:
		return "PARSE"
	case KindExternal:
		return "EXTERNAL"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		fmt.Fprintf(&sb, "  %s:%d %s\n", file, line, fn.Name())
	}
	return sb.String()
}

// New creates an error without a cause.
func New(kind Kind, severity Severity, message string) *Error {
	return &Error{
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Wrap attaches kind and severity to err. Wrap(nil, ...) returns nil.
func Wrap(err error, kind Kind, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(KindConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

func ValidationError(message string) *Error {
	return New(KindValidation, SeverityHigh, message)
}

func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(KindValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

func DatabaseError(err error, message string) *Error {
	return Wrap(err, KindDatabase, SeverityCritical, message)
}

func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindDatabase, SeverityCritical, fmt.Sprintf(format, args...))
}

func FileSystemError(err error, message string) *Error {
	return Wrap(err, KindFileSystem, SeverityHigh, message)
}

func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// ParseErrorf marks a single unreadable input; callers usually skip it.
func ParseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindParse, SeverityLow, fmt.Sprintf(format, args...))
}

func ExternalError(err error, message string) *Error {
	return Wrap(err, KindExternal, SeverityMedium, message)
}

func InternalErrorf(format string, args ...interface{}) *Error {
	return New(KindInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks whether err (or anything it wraps) is a critical *Error.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// SeverityOf returns the severity of the first *Error in err's chain.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityMedium
}
