// Package hypotheses turns parsed log signals into a short, ranked list of
// likely root causes, each with the steps that would confirm it.
package hypotheses

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/signals"
)

// DefaultMax is how many hypotheses Generate keeps.
const DefaultMax = 3

const (
	demotedConfidence   = 0.2
	genericConfidence   = 0.75
	maxSignalEvidence   = 100
	maxExternalEvidence = 120
)

// Hypothesis is one candidate root cause.
type Hypothesis struct {
	Text             string   `json:"hypothesis"`
	Evidence         string   `json:"evidence"`
	LineNumber       int      `json:"line_number"`
	ConfirmSteps     []string `json:"confirm_steps"`
	Confidence       float64  `json:"confidence"`
	WrapperNoise     bool     `json:"is_wrapper_noise,omitempty"`
	ExternalSignal   bool     `json:"is_external_signal,omitempty"`
	ExternalSignalID string   `json:"external_signal_id,omitempty"`
}

type externalTemplate struct {
	text       string
	confirm    []string
	confidence float64
}

// Known external-signal ids with curated wording. Other ids fall back to the
// rule's own template or hints.
var externalTemplates = map[string]externalTemplate{
	signals.MissingMessageRule: {
		text: "Message ID {message_id} not found in InfoTrac DB for service={service}. Likely configuration/Message Manager mapping issue (not Papyrus resource).",
		confirm: []string{
			"Confirm message_id exists/mapped in InfoTrac for service (estmt/paper/print)",
			"Check whether message is paper-only vs estmt",
			"If expected behavior, treat as config expectation / non-bug",
			"Review InfoTrac DB: SELECT * FROM message_map WHERE message_id = {message_id}",
		},
		confidence: 0.95,
	},
	"API_SUCCESS_FALSE_JSON": {
		text: "External API returned success=false. Check API payload, configuration, or upstream service.",
		confirm: []string{
			"Review full API response in log for error details",
			"Check API endpoint configuration and credentials",
			"Verify upstream service health and connectivity",
		},
		confidence: 0.85,
	},
	"API_ERROR_MESSAGE_JSON": {
		text: "API returned error: {api_message}",
		confirm: []string{
			"Review the error message for root cause",
			"Check API request payload for issues",
			"Verify API configuration and permissions",
		},
		confidence: 0.85,
	},
	"HTTP_ERROR_STATUS": {
		text: "HTTP error {status_code} detected. Check network/API configuration.",
		confirm: []string{
			"Verify target URL is correct and accessible",
			"Check authentication/authorization",
			"Review server-side logs for details",
		},
		confidence: 0.85,
	},
	"CONNECTION_REFUSED": {
		text: "Connection refused to {host}. Service may be down or unreachable.",
		confirm: []string{
			"Check if target service is running",
			"Verify network/firewall configuration",
			"Check service port and host configuration",
		},
		confidence: 0.90,
	},
	"CONNECTION_TIMEOUT": {
		text: "Network connection or read timed out.",
		confirm: []string{
			"Check network latency and connectivity",
			"Verify service responsiveness",
			"Review timeout configuration",
		},
		confidence: 0.85,
	},
	"DB_CONNECTION_ERROR": {
		text: "Database connection error detected.",
		confirm: []string{
			"Check database server status",
			"Verify connection string and credentials",
			"Review database server logs",
		},
		confidence: 0.90,
	},
	"AUTH_FAILURE": {
		text: "Authentication/authorization failure detected.",
		confirm: []string{
			"Check credentials and tokens",
			"Verify user permissions",
			"Review authentication configuration",
		},
		confidence: 0.85,
	},
	"SERVICE_UNAVAILABLE": {
		text: "Service is temporarily unavailable.",
		confirm: []string{
			"Check service health and status",
			"Review service deployment and load",
			"Check for scheduled maintenance",
		},
		confidence: 0.85,
	},
}

var severityConfidence = map[string]float64{
	logparse.SeverityFatal:   0.95,
	logparse.SeverityError:   0.85,
	logparse.SeverityWarning: 0.70,
	logparse.SeverityInfo:    0.50,
}

type rule struct {
	pattern    *regexp.Regexp
	text       string
	confirm    []string
	confidence float64
}

// wrapperRule matches the generic non-zero exit message printed by the
// batch wrapper, which is usually not the real failure.
var wrapperRule = rule{
	pattern: regexp.MustCompile(`(?i)Generator returns a non-zero|Generator.*non-zero`),
	text:    "Wrapper message from isisdisk.sh (often ignored per ops)",
	confirm: []string{
		"Check if there are other error codes (PP*E, ORA-*) in the same log",
		"Review preceding log lines for actual failure cause",
		"If no other errors present, this may be a false alarm",
		"Check DOCDEF and input files if Generator genuinely failed",
	},
	confidence: 0.4,
}

// rules are tried in order; each fires at most once per log.
var rules = []rule{
	{
		pattern:    regexp.MustCompile(`(?i)ORA-\d{5}`),
		text:       "Database connection or query error (Oracle)",
		confirm:    []string{"Check Oracle listener status: lsnrctl status", "Verify TNS configuration in tnsnames.ora", "Check database logs for details"},
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)PPDE\d{4}E`),
		text:       "Document generation error (Papyrus DocExec)",
		confirm:    []string{"Check DOCDEF syntax in .dfa file", "Verify input data format matches expected", "Review variable declarations in docdef"},
		confidence: 0.85,
	},
	{
		pattern:    regexp.MustCompile(`(?i)PPCS\d{4}E`),
		text:       "Papyrus application/converter error",
		confirm:    []string{"Check application configuration", "Verify profile (.prf) file settings", "Review input file format"},
		confidence: 0.85,
	},
	{
		pattern:    regexp.MustCompile(`(?i)failed to open|cannot open|No such file`),
		text:       "Missing input file or permission issue",
		confirm:    []string{"Verify file exists at expected path", "Check file permissions (ls -la)", "Validate path in .ins configuration"},
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)Permission denied`),
		text:       "File or directory permission error",
		confirm:    []string{"Check file permissions: ls -la <path>", "Verify user has access to directory", "Check if file is locked by another process"},
		confidence: 0.95,
	},
	{
		pattern:    regexp.MustCompile(`(?i)mismatch|do not match`),
		text:       "Data validation or count mismatch",
		confirm:    []string{"Compare input vs output record counts", "Check for duplicate records in input", "Validate data format matches expected schema"},
		confidence: 0.8,
	},
	{
		pattern:    regexp.MustCompile(`(?i)timeout|timed out`),
		text:       "Operation timeout (network, database, or process)",
		confirm:    []string{"Check network connectivity", "Verify database is responding", "Review process resource usage"},
		confidence: 0.85,
	},
	{
		pattern:    regexp.MustCompile(`(?i)missing file_id|missing operand`),
		text:       "Missing required parameter or input",
		confirm:    []string{"Verify all required parameters are set in .ins file", "Check input file contains expected fields", "Review calling script for parameter passing"},
		confidence: 0.85,
	},
	{
		pattern:    regexp.MustCompile(`(?i)Error line \d+ has`),
		text:       "Data parsing error (CSV/input format)",
		confirm:    []string{"Check input file line N for malformed data", "Verify CSV quoting and escaping", "Compare with expected column count"},
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)RC=\d+[^0]|status \[-\d+\]`),
		text:       "Non-zero return code from subprocess",
		confirm:    []string{"Check logs from the failing subprocess", "Verify input files for subprocess exist", "Review subprocess configuration"},
		confidence: 0.75,
	},
	{
		pattern:    regexp.MustCompile(`(?i)^ERROR:|ERROR\s*:`),
		text:       "Application error - review message for details",
		confirm:    []string{"Check the specific error message for root cause", "Review preceding log lines for context", "Verify input files and configuration"},
		confidence: 0.7,
	},
	{
		pattern:    regexp.MustCompile(`(?i)CSV file.*is bad|CSV.*bad`),
		text:       "Malformed CSV input file",
		confirm:    []string{"Check CSV file for encoding issues", "Verify quote/escape handling", "Compare column count with expected schema"},
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)Failed in \w+`),
		text:       "Script or process failed during execution",
		confirm:    []string{"Check the specific script mentioned in error", "Review script logs for details", "Verify input parameters and files"},
		confidence: 0.85,
	},
}

// Generate ranks hypotheses for an analysis using its error signals.
// It returns nil when nothing matched; callers fall back to Default.
func Generate(a *logparse.Analysis) []Hypothesis {
	if a == nil {
		return nil
	}
	return FromSignals(a.Errors, a, DefaultMax)
}

// FromSignals ranks hypotheses for sigs. External signals in a come first;
// then each rule fires on the first fatal or error signal it matches. When
// sigs has no fatal or error entries all of them are considered. a may be
// nil.
func FromSignals(sigs []logparse.Signal, a *logparse.Analysis, max int) []Hypothesis {
	if max <= 0 {
		max = DefaultMax
	}
	out := external(a)

	var focus []logparse.Signal
	for _, s := range sigs {
		if s.Severity == logparse.SeverityFatal {
			focus = append(focus, s)
		}
	}
	for _, s := range sigs {
		if s.Severity == logparse.SeverityError {
			focus = append(focus, s)
		}
	}
	if len(focus) == 0 {
		focus = sigs
	}

	fired := make([]bool, len(rules))
	wrapperFired := false
	for _, s := range focus {
		if wrapperRule.pattern.MatchString(s.Message) {
			if !wrapperFired {
				wrapperFired = true
				h := wrapperRule.hypothesis(s)
				h.WrapperNoise = true
				out = append(out, h)
			}
			continue
		}
		for i, r := range rules {
			if fired[i] || !r.pattern.MatchString(s.Message) {
				continue
			}
			fired[i] = true
			out = append(out, r.hypothesis(s))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	out = demoteWrapper(out, a)

	if len(out) > max {
		out = out[:max]
	}
	return out
}

func (r rule) hypothesis(s logparse.Signal) Hypothesis {
	return Hypothesis{
		Text:         r.text,
		Evidence:     truncate(s.Message, maxSignalEvidence),
		LineNumber:   s.LineNumber,
		ConfirmSteps: append([]string(nil), r.confirm...),
		Confidence:   r.confidence,
	}
}

// demoteWrapper moves a leading wrapper-noise hypothesis to the end when
// there is no strong failure or an external signal explains the failure.
func demoteWrapper(hs []Hypothesis, a *logparse.Analysis) []Hypothesis {
	if len(hs) == 0 || !hs[0].WrapperNoise {
		return hs
	}
	strong := a != nil && a.HasStrongFailure
	hasExternal := false
	for _, h := range hs {
		if h.ExternalSignal {
			hasExternal = true
			break
		}
	}
	if strong && !hasExternal {
		return hs
	}

	wrapper := hs[0]
	rest := make([]Hypothesis, 0, len(hs))
	for _, h := range hs {
		if !h.WrapperNoise {
			rest = append(rest, h)
		}
	}
	wrapper.Confidence = demotedConfidence
	if len(rest) == 0 {
		wrapper.Text = "FYI: Wrapper message from isisdisk.sh (no strong failure detected; often a false alarm per ops)"
		return []Hypothesis{wrapper}
	}
	wrapper.Text = "FYI: " + wrapper.Text + " (demoted - external config signal or no strong failure detected)"
	return append(rest, wrapper)
}

func external(a *logparse.Analysis) []Hypothesis {
	if a == nil || len(a.ExternalSignals) == 0 {
		return nil
	}
	service := "UNKNOWN"
	if len(a.ServicesSeen) > 0 {
		service = a.ServicesSeen[0]
	}

	var out []Hypothesis
	seen := map[string]bool{}
	for _, sig := range a.ExternalSignals {
		if seen[sig.ID] {
			continue
		}
		seen[sig.ID] = true

		values := map[string]string{}
		for k, v := range sig.Captures {
			values[k] = v
		}
		values["service"] = service

		h := Hypothesis{ExternalSignal: true, ExternalSignalID: sig.ID}
		switch tmpl, ok := externalTemplates[sig.ID]; {
		case ok:
			h.Text = signals.Format(tmpl.text, values)
			for _, step := range tmpl.confirm {
				h.ConfirmSteps = append(h.ConfirmSteps, signals.Format(step, values))
			}
			h.Confidence = tmpl.confidence
		case sig.HypothesisTemplate != "":
			h.Text = signals.Format(sig.HypothesisTemplate, values)
			h.ConfirmSteps = append([]string(nil), sig.Hints...)
			h.Confidence = 0.70
			if c, ok := severityConfidence[sig.Severity]; ok {
				h.Confidence = c
			}
		default:
			h.Text = fmt.Sprintf("External signal: %s (%s)", sig.ID, sig.Category)
			if len(sig.Hints) > 0 {
				h.Text = sig.Hints[0]
				h.ConfirmSteps = append([]string(nil), sig.Hints[1:]...)
			}
			h.Confidence = genericConfidence
		}
		if h.ConfirmSteps == nil {
			h.ConfirmSteps = []string{}
		}

		if len(sig.Evidence) > 0 {
			ev := sig.Evidence[0]
			h.Evidence = truncate(fmt.Sprintf("L%d: %s", ev.LineNo, ev.LineText), maxExternalEvidence)
			h.LineNumber = ev.LineNo
		} else {
			h.Evidence = "External signal: " + sig.ID
		}
		out = append(out, h)
	}
	return out
}

// Default is what explain reports when no hypothesis could be formed.
func Default() []Hypothesis {
	return []Hypothesis{{
		Text:       "Unknown error - review log for details",
		Evidence:   "No specific error pattern matched",
		LineNumber: 0,
		ConfirmSteps: []string{
			"Search log for ERROR or FAIL keywords",
			"Check timestamps for sequence of events",
			"Review input/output files",
		},
		Confidence: 0.5,
	}}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
