package output

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/hypotheses"
	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/matching"
	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/signals"
	"github.com/rohankatakam/jobtriage/internal/similarity"
)

// Limits of the text report.
const (
	MaxReportLines     = 200
	maxEvidenceSnippet = 120
	maxEvidenceLines   = 8
	maxNeighbors       = 5
	maxCodes           = 10
	maxCodeBody        = 150
	maxFileRefs        = 5
	maxExternal        = 5
	maxFilesToOpen     = 8
)

// Report is everything explain found out about one log.
type Report struct {
	LogPath      string
	SnapshotRoot string
	GeneratedAt  time.Time
	Analysis     *logparse.Analysis
	Match        matching.Result
	Neighbors    *graph.Neighbors
	Hypotheses   []hypotheses.Hypothesis
	Similar      []similarity.Case
	RelatedFiles []string
	// Codes holds the knowledge-base entries for codes found in the log.
	Codes map[string]models.MessageCode
	// Resolver maps legacy paths seen in the log into the snapshot; optional.
	Resolver   *paths.Resolver
	IncidentID string
}

// TextFormatter renders the single-block context pack meant for pasting
// into a ticket or an editor.
type TextFormatter struct {
	Color bool
}

func (f *TextFormatter) Format(r *Report, w io.Writer) error {
	if r == nil || r.Analysis == nil {
		return fmt.Errorf("report has no analysis")
	}
	p := painter(f.Color)
	var lines []string
	add := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }
	section := func(title string) {
		lines = append(lines, strings.Repeat("-", 40), p.header(title), strings.Repeat("-", 40))
	}
	a := r.Analysis

	lines = append(lines, strings.Repeat("=", 60), p.header("JTRIAGE CONTEXT PACK"), strings.Repeat("=", 60))
	add("Log: %s", r.LogPath)
	add("Generated: %s", r.GeneratedAt.Format("2006-01-02 15:04"))
	if r.IncidentID != "" {
		add("Incident: %s", r.IncidentID)
	}
	add("")

	section("1. MOST LIKELY FAILING NODE")
	if n := r.Match.Node; n != nil {
		add("Node: %s (confidence: %.0f%%)", n.DisplayName, r.Match.Confidence*100)
		add("Type: %s", n.Type)
		add("Key: %s", n.Key)
		if n.CanonicalPath != "" {
			add("Path: %s", filepath.Join(r.SnapshotRoot, filepath.FromSlash(n.CanonicalPath)))
		}
	} else {
		add("%s", p.alert("NOT FOUND - could not determine failing node"))
	}
	add("")

	section("2. EXECUTION CHAIN")
	if r.Neighbors != nil {
		if up := r.Neighbors.Upstream; len(up) > 0 {
			add("Upstream (dependencies):")
			for _, nb := range up[:min(len(up), maxNeighbors)] {
				add("  [%s] %s --%s--> (this)", nb.Node.Type, nb.Node.DisplayName, nb.RelType)
			}
		} else {
			add("Upstream: (none)")
		}
		if down := r.Neighbors.Downstream; len(down) > 0 {
			add("Downstream (dependents):")
			for _, nb := range down[:min(len(down), maxNeighbors)] {
				add("  (this) --%s--> [%s] %s", nb.RelType, nb.Node.Type, nb.Node.DisplayName)
			}
		} else {
			add("Downstream: (none)")
		}
	} else {
		add("NOT FOUND in snapshot")
	}
	add("")

	section("3. EVIDENCE (error log lines)")
	if len(a.Errors) > 0 {
		for _, s := range a.Errors[:min(len(a.Errors), maxEvidenceLines)] {
			add("L%d: %s", s.LineNumber, truncate(s.Message, maxEvidenceSnippet))
		}
	} else {
		add("No error signals found in log")
	}
	if len(a.ErrorCodes) > 0 {
		add("Error codes: %s", strings.Join(a.ErrorCodes[:min(len(a.ErrorCodes), 10)], ", "))
	}
	add("")

	section("3b. PAPYRUS/DOCEXEC CODES (decoded)")
	if codes := PrioritizeCodes(a.ErrorCodes, maxCodes); len(codes) > 0 {
		for _, code := range codes {
			mc, ok := r.Codes[code]
			if !ok {
				add("%s - UNKNOWN CODE (not in KB yet)", code)
				continue
			}
			add("%s [%s]", code, models.SeverityName(mc.Severity))
			if mc.Title != "" {
				add("  Title: %s", mc.Title)
			}
			add("  %s", truncate(mc.Body, maxCodeBody))
		}
	} else {
		add("No Papyrus/DocExec codes found in log")
	}
	add("")

	section("3c. FILES FROM LOG EVIDENCE")
	if len(a.DocdefTokens) > 0 {
		add("DOCDEF tokens found:")
		for _, tok := range a.DocdefTokens[:min(len(a.DocdefTokens), maxFileRefs)] {
			if abs, ok := r.resolve("/home/docdef/" + strings.ToLower(tok) + ".dfa"); ok {
				add("  %s -> %s", tok, abs)
			} else {
				add("  %s (docdef not found in snapshot)", tok)
			}
		}
	}
	if len(a.ScriptPaths) > 0 {
		add("Script paths:")
		for _, sp := range a.ScriptPaths[:min(len(a.ScriptPaths), maxFileRefs)] {
			if abs, ok := r.resolve(sp); ok {
				add("  %s -> %s", sp, abs)
			} else {
				add("  %s (not in snapshot)", sp)
			}
		}
	}
	if len(a.IOPaths) > 0 {
		add("Input/Output paths (from log):")
		for _, io := range a.IOPaths[:min(len(a.IOPaths), maxFileRefs)] {
			add("  %s", io)
		}
	}
	if len(a.DocdefTokens) == 0 && len(a.ScriptPaths) == 0 && len(a.IOPaths) == 0 {
		add("No file references extracted from log")
	}
	add("")

	section("3d. EXTERNAL CONFIG SIGNALS")
	if ext := sortedExternal(a.ExternalSignals); len(ext) > 0 {
		for _, s := range ext[:min(len(ext), maxExternal)] {
			add("[%s] %s (%s)", p.warn(externalSeverity(s.Severity)), s.ID, s.Category)
			if len(s.Captures) > 0 {
				add("  Captures: %s", formatCaptures(s.Captures))
			}
			for _, ev := range s.Evidence[:min(len(s.Evidence), 3)] {
				add("  L%d: %s", ev.LineNo, truncate(ev.LineText, 100))
			}
		}
		if len(a.ServicesSeen) > 0 {
			add("Services detected: %s", strings.Join(a.ServicesSeen, ", "))
		}
		if len(a.MissingMessageIDs) > 0 {
			add("InfoTrac missing message IDs: %s", strings.Join(a.MissingMessageIDs, ", "))
		}
	} else {
		add("None found")
	}
	add("")

	section("4. TOP HYPOTHESES")
	if len(r.Hypotheses) > 0 {
		for i, h := range r.Hypotheses {
			add("%d. %s", i+1, h.Text)
			add("   Evidence (L%d): %s", h.LineNumber, h.Evidence)
			add("   How to confirm:")
			for _, step := range h.ConfirmSteps {
				add("   - %s", step)
			}
			add("")
		}
	} else {
		add("No specific hypotheses - review log for details")
	}
	add("")

	section("5. FILES TO OPEN")
	if len(r.RelatedFiles) > 0 {
		for _, f := range r.RelatedFiles[:min(len(r.RelatedFiles), maxFilesToOpen)] {
			add("  %s", f)
		}
	} else {
		add("NOT FOUND in snapshot")
	}
	add("")

	section("6. SUGGESTED COMMANDS")
	add("# View full log")
	add("less %s", r.LogPath)
	add("# Search for errors")
	add(`grep -n 'ERROR\|FAIL\|ORA-' %s`, r.LogPath)
	if len(a.ErrorCodes) > 0 {
		add("# Search for specific error")
		add("grep -n '%s' %s", a.ErrorCodes[0], r.LogPath)
	}
	add("")

	section("7. SIMILAR PAST CASES")
	if len(r.Similar) > 0 {
		for _, c := range r.Similar {
			title := c.Title
			if title == "" {
				title = "Untitled"
			}
			add("[%s] (match: %.0f%%)", title, c.Score*100)
			if c.RootCause != "" {
				add("  Root cause: %s", truncate(c.RootCause, 80))
			}
			if c.FixSummary != "" {
				add("  Fix: %s", truncate(c.FixSummary, 80))
			}
			if len(c.VerifyCommands) > 0 {
				add("  Verify commands:")
				for _, cmd := range c.VerifyCommands[:min(len(c.VerifyCommands), 2)] {
					add("    %s", truncate(cmd, 60))
				}
			}
			add("")
		}
	} else {
		add("No similar cases found (or below threshold)")
	}
	add("")

	if len(r.Match.Candidates) > 0 {
		lines = append(lines, strings.Split(strings.TrimPrefix(matching.FormatDebug(r.Match.Candidates), "\n"), "\n")...)
		add("")
	}

	lines = append(lines, strings.Repeat("=", 60), "END OF CONTEXT PACK", strings.Repeat("=", 60))

	if len(lines) > MaxReportLines {
		total := len(lines)
		lines = append(lines[:MaxReportLines-3:MaxReportLines-3],
			"...",
			fmt.Sprintf("[Truncated - %d total lines]", total),
			strings.Repeat("=", 60))
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func (r *Report) resolve(legacy string) (string, bool) {
	if r.Resolver == nil {
		return "", false
	}
	res := r.Resolver.Resolve(legacy)
	if !res.Found() {
		return "", false
	}
	return r.Resolver.Abs(res.Path), true
}

// PrioritizeCodes orders codes fatal first, then errors, then the rest,
// keeping the original order within each group, and caps the list.
func PrioritizeCodes(codes []string, limit int) []string {
	var fatal, errs, other []string
	for _, c := range codes {
		switch {
		case strings.HasSuffix(c, "F"):
			fatal = append(fatal, c)
		case strings.HasSuffix(c, "E"):
			errs = append(errs, c)
		default:
			other = append(other, c)
		}
	}
	out := append(append(fatal, errs...), other...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortedExternal(list []signals.Signal) []signals.Signal {
	out := append([]signals.Signal{}, list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SeverityRank() > out[j].SeverityRank() })
	return out
}

func externalSeverity(s string) string {
	switch s {
	case "F":
		return "FATAL"
	case "E":
		return "ERROR"
	case "W":
		return "WARNING"
	case "I":
		return "INFO"
	}
	return "UNKNOWN"
}

func formatCaptures(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ", ")
}

// JSONFormatter renders the report for machines.
type JSONFormatter struct{}

type jsonCode struct {
	Code     string `json:"code"`
	Known    bool   `json:"known"`
	Severity string `json:"severity,omitempty"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
}

type jsonMatch struct {
	Found      bool                 `json:"found"`
	Node       *graph.Node          `json:"node"`
	Confidence float64              `json:"confidence"`
	Candidates []matching.Candidate `json:"candidates,omitempty"`
}

type jsonReport struct {
	LogPath         string                  `json:"log_path"`
	SnapshotRoot    string                  `json:"snapshot_root"`
	GeneratedAt     time.Time               `json:"generated_at"`
	IncidentID      string                  `json:"incident_id,omitempty"`
	Analysis        logparse.Summary        `json:"analysis"`
	Match           jsonMatch               `json:"match"`
	Neighbors       *graph.Neighbors        `json:"neighbors"`
	Codes           []jsonCode              `json:"codes"`
	ExternalSignals []signals.Signal        `json:"external_signals"`
	Services        []string                `json:"services_seen"`
	Hypotheses      []hypotheses.Hypothesis `json:"hypotheses"`
	SimilarCases    []similarity.Case       `json:"similar_cases"`
	RelatedFiles    []string                `json:"related_files"`
}

func (f *JSONFormatter) Format(r *Report, w io.Writer) error {
	if r == nil || r.Analysis == nil {
		return fmt.Errorf("report has no analysis")
	}
	out := jsonReport{
		LogPath:         r.LogPath,
		SnapshotRoot:    r.SnapshotRoot,
		GeneratedAt:     r.GeneratedAt,
		IncidentID:      r.IncidentID,
		Analysis:        r.Analysis.Summary(),
		Match:           jsonMatch{Found: r.Match.Found(), Node: r.Match.Node, Confidence: r.Match.Confidence, Candidates: r.Match.Candidates},
		Neighbors:       r.Neighbors,
		Codes:           []jsonCode{},
		ExternalSignals: append([]signals.Signal{}, sortedExternal(r.Analysis.ExternalSignals)...),
		Services:        append([]string{}, r.Analysis.ServicesSeen...),
		Hypotheses:      append([]hypotheses.Hypothesis{}, r.Hypotheses...),
		SimilarCases:    append([]similarity.Case{}, r.Similar...),
		RelatedFiles:    append([]string{}, r.RelatedFiles...),
	}
	for _, code := range PrioritizeCodes(r.Analysis.ErrorCodes, maxCodes) {
		jc := jsonCode{Code: code}
		if mc, ok := r.Codes[code]; ok {
			jc.Known = true
			jc.Severity = mc.Severity
			jc.Title = mc.Title
			jc.Body = mc.Body
		}
		out.Codes = append(out.Codes, jc)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
