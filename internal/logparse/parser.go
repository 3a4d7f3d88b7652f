// Package logparse classifies the lines of a batch-job failure log and
// extracts the tokens used to match the log to a job definition.
package logparse

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/signals"
)

// Severities, ordered I < W < E < F.
const (
	SeverityInfo    = "I"
	SeverityWarning = "W"
	SeverityError   = "E"
	SeverityFatal   = "F"
)

var (
	timestampRe   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}/\d{2}:\d{2}:\d{2}\.\d{3})`)
	messageCodeRe = regexp.MustCompile(`((?:PP(?:CS|DE|ST|CO|AP|DG|TP|WM|FP|EM)|AFPR)\d{4}[IWEF])`)
	ppCodeRe      = regexp.MustCompile(`(PP(?:CS|DE|ST|CO)\d{4}[IWEF])`)
	oraCodeRe     = regexp.MustCompile(`(ORA-\d{5})`)
	sourceRefRe   = regexp.MustCompile(`\[([^,\]]+\.cpp),(\d+)\]`)
	docdefRefRe   = regexp.MustCompile(`DOCDEF '(\w+)'`)
	scriptLineRe  = regexp.MustCompile(`(?i)(\w+\.(?:pl|sh|py))\s+line\s+(\d+)`)
	errorWordRe   = regexp.MustCompile(`(?i)\b(ERROR|FAIL|failed|exception|mismatch|missing|abort|aborted)\b`)

	prefixTokenRe = regexp.MustCompile(`\$PREFIX=(\w+)`)
	jidTokenRe    = regexp.MustCompile(`\$JID=(\w+)`)
	scriptPathRe  = regexp.MustCompile(`(/home/(?:master|insert|util)/[\w\-.]+\.(?:sh|pl|py|ins))`)
	docdefParamRe = regexp.MustCompile(`(?i)docdef=(\w+)`)
	docdefTokenRe = regexp.MustCompile(`\b([A-Z]{4}[A-Z]{2}\d{2})\b`)
	ioPathRe      = regexp.MustCompile(`(?i)(?:input|output|profile)=([^\s]+)`)

	wrapperNoiseRe = regexp.MustCompile(`(?i)ERROR:\s*Generator returns a non-zero value`)

	strongFailureRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)aborted`),
		regexp.MustCompile(`(?i)not generated`),
		regexp.MustCompile(`ORA-\d{5}`),
		regexp.MustCompile(`(?i)missing\s+(?:input|file|docdef)`),
		regexp.MustCompile(`(?i)Permission denied`),
		regexp.MustCompile(`(?i)No such file`),
		regexp.MustCompile(`(?i)cannot open`),
		regexp.MustCompile(`(?i)failed to open`),
		regexp.MustCompile(`[IWEF]\d{4}F\b`),
	}
)

// heartbeat lines carry no diagnostic value
var heartbeats = []string{"is still alive", "is no longer alive"}

// Signal is one classified log line.
type Signal struct {
	LineNumber int    `json:"line_number"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp,omitempty"`
	Code       string `json:"code,omitempty"`
	Severity   string `json:"severity"`
	SourceFile string `json:"source_file,omitempty"`
	SourceLine int    `json:"source_line,omitempty"`
	DocdefRef  string `json:"docdef_ref,omitempty"`
	ScriptRef  string `json:"script_ref,omitempty"`
	ScriptLine int    `json:"script_line,omitempty"`
}

// Analysis aggregates the signals and tokens of one log file. Token slices
// are sorted and de-duplicated.
type Analysis struct {
	Path       string
	TotalLines int

	Signals  []Signal
	Errors   []Signal // includes fatals
	Warnings []Signal
	Fatals   []Signal

	ErrorCodes []string
	DocdefRefs []string
	ScriptRefs []string

	PrefixTokens []string
	ScriptPaths  []string
	JIDTokens    []string
	DocdefTokens []string
	IOPaths      []string

	HasWrapperNoise  bool
	HasStrongFailure bool

	ExternalSignals   []signals.Signal
	MissingMessageIDs []string
	ServicesSeen      []string
}

// Summary is the persisted and printed form of an Analysis.
type Summary struct {
	Path         string   `json:"path"`
	TotalLines   int      `json:"total_lines"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	ErrorCodes   []string `json:"error_codes"`
	DocdefRefs   []string `json:"docdef_refs"`
	ScriptRefs   []string `json:"script_refs"`
	TopErrors    []Signal `json:"top_errors"`
}

// Summary keeps the first 10 error signals.
func (a *Analysis) Summary() Summary {
	top := a.Errors
	if len(top) > 10 {
		top = top[:10]
	}
	return Summary{
		Path:         a.Path,
		TotalLines:   a.TotalLines,
		ErrorCount:   len(a.Errors),
		WarningCount: len(a.Warnings),
		ErrorCodes:   nonNil(a.ErrorCodes),
		DocdefRefs:   nonNil(a.DocdefRefs),
		ScriptRefs:   nonNil(a.ScriptRefs),
		TopErrors:    append([]Signal{}, top...),
	}
}

// JSON encodes Summary.
func (a *Analysis) JSON() (string, error) {
	b, err := json.Marshal(a.Summary())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseLine classifies a single line. It returns false for blank and
// heartbeat lines.
func ParseLine(line string, lineNumber int) (Signal, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Signal{}, false
	}
	for _, hb := range heartbeats {
		if strings.Contains(line, hb) {
			return Signal{}, false
		}
	}

	s := Signal{LineNumber: lineNumber, Message: line, Severity: SeverityInfo}

	if m := timestampRe.FindStringSubmatch(line); m != nil {
		s.Timestamp = m[1]
	}

	m := messageCodeRe.FindStringSubmatch(line)
	if m == nil {
		m = ppCodeRe.FindStringSubmatch(line)
	}
	if m != nil {
		s.Code = m[1]
		s.Severity = s.Code[len(s.Code)-1:]
	}
	if m := oraCodeRe.FindStringSubmatch(line); m != nil {
		s.Code = m[1]
		s.Severity = SeverityError
	}

	if m := sourceRefRe.FindStringSubmatch(line); m != nil {
		s.SourceFile = m[1]
		s.SourceLine, _ = strconv.Atoi(m[2])
	}
	if m := docdefRefRe.FindStringSubmatch(line); m != nil {
		s.DocdefRef = m[1]
	}
	if m := scriptLineRe.FindStringSubmatch(line); m != nil {
		s.ScriptRef = m[1]
		s.ScriptLine, _ = strconv.Atoi(m[2])
	}

	// Keywords raise I and W to E; an F code stays fatal.
	if s.Severity != SeverityFatal && errorWordRe.MatchString(line) {
		s.Severity = SeverityError
	}
	return s, true
}

// Parser turns log text into an Analysis. Rules may be nil, in which case
// no external signals are extracted.
type Parser struct {
	rules *signals.RuleSet
}

func NewParser(rules *signals.RuleSet) *Parser {
	return &Parser{rules: rules}
}

// ParseFile reads path and parses it. Invalid UTF-8 is replaced. On a read
// failure the returned Analysis holds a single error signal describing it,
// and the error is returned as well.
func (p *Parser) ParseFile(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		a := &Analysis{Path: path}
		s := Signal{Message: fmt.Sprintf("Error reading file: %v", err), Severity: SeverityError}
		a.Signals = []Signal{s}
		a.Errors = []Signal{s}
		return a, fmt.Errorf("read log %s: %w", path, err)
	}
	return p.Parse(path, strings.ToValidUTF8(string(data), "\uFFFD")), nil
}

// Parse analyses text that was read from path. path is recorded, never
// opened.
func (p *Parser) Parse(path, text string) *Analysis {
	lines := splitLines(text)
	a := &Analysis{Path: path, TotalLines: len(lines)}

	codes, docdefRefs, scriptRefs := set{}, set{}, set{}
	prefixes, jids, scripts, docdefs := set{}, set{}, set{}, set{}
	ioPaths := set{}

	for i, line := range lines {
		s, ok := ParseLine(line, i+1)
		if !ok {
			continue
		}
		a.Signals = append(a.Signals, s)
		switch s.Severity {
		case SeverityFatal:
			a.Fatals = append(a.Fatals, s)
			a.Errors = append(a.Errors, s)
		case SeverityError:
			a.Errors = append(a.Errors, s)
		case SeverityWarning:
			a.Warnings = append(a.Warnings, s)
		}

		codes.add(s.Code)
		docdefRefs.add(s.DocdefRef)
		scriptRefs.add(s.ScriptRef)

		for _, m := range prefixTokenRe.FindAllStringSubmatch(line, -1) {
			prefixes.add(strings.ToLower(m[1]))
		}
		for _, m := range jidTokenRe.FindAllStringSubmatch(line, -1) {
			jids.add(strings.ToLower(m[1]))
		}
		for _, m := range scriptPathRe.FindAllStringSubmatch(line, -1) {
			scripts.add(m[1])
		}
		for _, m := range docdefParamRe.FindAllStringSubmatch(line, -1) {
			docdefRefs.add(strings.ToUpper(m[1]))
		}
		for _, m := range docdefTokenRe.FindAllStringSubmatch(line, -1) {
			docdefs.add(strings.ToUpper(m[1]))
		}
		for _, m := range ioPathRe.FindAllStringSubmatch(line, -1) {
			ioPaths.add(m[1])
		}

		if wrapperNoiseRe.MatchString(line) {
			a.HasWrapperNoise = true
		}
		if !a.HasStrongFailure && isStrongFailure(line) {
			a.HasStrongFailure = true
		}
	}

	a.ErrorCodes = codes.sorted()
	a.DocdefRefs = docdefRefs.sorted()
	a.ScriptRefs = scriptRefs.sorted()
	a.PrefixTokens = prefixes.sorted()
	a.JIDTokens = jids.sorted()
	a.ScriptPaths = scripts.sorted()
	a.DocdefTokens = docdefs.sorted()
	a.IOPaths = ioPaths.sorted()

	if p != nil && p.rules.Len() > 0 {
		a.ExternalSignals = p.rules.Extract(text, signals.ExtractOptions{})
		a.MissingMessageIDs = signals.MissingMessageIDs(a.ExternalSignals)
		a.ServicesSeen = signals.Services(text)
		for _, es := range a.ExternalSignals {
			if es.Severity == SeverityFatal {
				a.HasStrongFailure = true
				break
			}
		}
	}
	return a
}

func isStrongFailure(line string) bool {
	for _, re := range strongFailureRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// splitLines splits on \n, \r\n and \r. A trailing line break does not
// start a new line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

type set map[string]struct{}

func (s set) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
