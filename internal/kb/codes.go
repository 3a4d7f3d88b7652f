// Package kb builds the vendor message-code knowledge base from the text of
// the vendor's message manuals.
package kb

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rohankatakam/jobtriage/internal/models"
)

const (
	maxBodyWindow   = 1500
	maxTitleLength  = 120
	maxPreamble     = 200
	maxSectionText  = 300
	maxStoredBody   = 800
	lengthScoreUnit = 100.0
	maxLengthScore  = 5.0
)

var (
	codeRe = regexp.MustCompile(`((?:PP(?:CS|DE|ST|CO|AP|DG|TP|WM|FP|EM)|AFPR)\d{4}[IWEF])`)

	noiseRes = []*regexp.Regexp{
		regexp.MustCompile(`^\d+/\d+$`),
		regexp.MustCompile(`(?i)^Papyrus\s+Objects\s+Process\s+Control\s+System\s+Messages?$`),
		regexp.MustCompile(`(?i)^Papyrus\s+Objects\s+.*Messages?$`),
		regexp.MustCompile(`(?i)^DocExec\s+Messages?$`),
		regexp.MustCompile(`(?i)^AFP\s+Resource\s+Messages?$`),
		regexp.MustCompile(`(?i)^Chapter\s+\d+`),
		regexp.MustCompile(`(?i)^Page\s+\d+`),
	}
	sectionHeaderRe = regexp.MustCompile(`(?i)^(?:Chapter\s+\d+|Section\s+\d+|\d+\.\d+\s+[A-Z])`)
	crossRefRe      = regexp.MustCompile(`(?i)^This message is (?:preceded|followed) by:`)
	titleTrimRe     = regexp.MustCompile(`^[\s\-:]+`)
	spaceRe         = regexp.MustCompile(`\s+`)
	reasonRe        = regexp.MustCompile(`(?i)reason:`)
	solutionRe      = regexp.MustCompile(`(?i)solution:`)
)

// Entry is one message-code definition.
type Entry struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body"`
}

// SeverityName expands the one-letter severity.
func (e Entry) SeverityName() string { return models.SeverityName(e.Severity) }

// MessageCode converts the entry to its stored form.
func (e Entry) MessageCode(source string) models.MessageCode {
	return models.MessageCode{Code: e.Code, Severity: e.Severity, Title: e.Title, Body: e.Body, SourcePath: source}
}

type hit struct {
	title string
	body  string
	score float64
}

// SeverityOf reads the severity from the code's last letter; anything
// unrecognised is informational.
func SeverityOf(code string) string {
	if code == "" {
		return "I"
	}
	switch s := strings.ToUpper(code[len(code)-1:]); s {
	case "I", "W", "E", "F":
		return s
	default:
		return "I"
	}
}

// ParseText extracts definitions from manual text. Only codes that start a
// line (after optional blanks) count as definitions; mentions inside
// sentences are ignored. When a code is defined more than once the richest
// definition wins. Entries come out in first-definition order.
func ParseText(text string) []Entry {
	var order []string
	best := map[string]hit{}

	for _, loc := range codeRe.FindAllStringSubmatchIndex(text, -1) {
		pos := loc[2]
		code := text[loc[2]:loc[3]]
		if !atLineStart(text, pos) {
			continue
		}
		title, body := extractBody(text, pos+len(code))
		if body == "" {
			continue
		}
		h := hit{title: title, body: body}
		h.score = scoreHit(h)

		prev, seen := best[code]
		if !seen {
			order = append(order, code)
		}
		if !seen || h.score > prev.score {
			best[code] = h
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, code := range order {
		h := best[code]
		entries = append(entries, Entry{
			Code:     code,
			Severity: SeverityOf(code),
			Title:    h.title,
			Body:     truncate(formatBody(h.body), maxStoredBody),
		})
	}
	return entries
}

// atLineStart reports whether only spaces or tabs separate pos from the
// previous line break (or the start of text).
func atLineStart(text string, pos int) bool {
	i := pos - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\t') {
		i--
	}
	if i < 0 {
		return true
	}
	switch text[i] {
	case '\n', '\r', '\f':
		return true
	}
	return false
}

// extractBody collects the cleaned lines following a definition, stopping
// at the next definition, a section header, a cross-reference line, or the
// window limit.
func extractBody(text string, start int) (string, string) {
	end := min(start+maxBodyWindow, len(text))
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	window := text[start:end]
	for _, loc := range codeRe.FindAllStringIndex(window, -1) {
		if atLineStart(text, start+loc[0]) {
			window = window[:loc[0]]
			break
		}
	}

	var lines []string
	for _, line := range strings.Split(window, "\n") {
		line = strings.TrimSpace(line)
		if isNoise(line) {
			continue
		}
		if sectionHeaderRe.MatchString(line) || crossRefRe.MatchString(line) {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "", ""
	}

	title := titleTrimRe.ReplaceAllString(lines[0], "")
	if utf8.RuneCountInString(title) >= maxTitleLength {
		title = ""
	}
	return title, strings.Join(lines, "\n")
}

func isNoise(line string) bool {
	if line == "" {
		return true
	}
	for _, re := range noiseRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// scoreHit prefers definitions with Reason and Solution sections, a title,
// and more text.
func scoreHit(h hit) float64 {
	var score float64
	lower := strings.ToLower(h.body)
	if strings.Contains(lower, "reason:") {
		score += 3
	}
	if strings.Contains(lower, "solution:") {
		score += 3
	}
	if h.title != "" {
		score++
	}
	return score + min(float64(len(h.body))/lengthScoreUnit, maxLengthScore)
}

// formatBody condenses a definition to an optional preamble plus one
// "Reason:" and one "Solution:" line. Bodies without either section are
// flattened to a single line.
func formatBody(body string) string {
	r := reasonRe.FindStringIndex(body)
	s := solutionRe.FindStringIndex(body)
	if r == nil && s == nil {
		return strings.TrimSpace(spaceRe.ReplaceAllString(body, " "))
	}

	first := len(body)
	if r != nil {
		first = min(first, r[0])
	}
	if s != nil {
		first = min(first, s[0])
	}

	var parts []string
	if first > 10 {
		if pre := collapse(body[:first]); pre != "" {
			parts = append(parts, truncateRunes(pre, maxPreamble))
		}
	}
	if r != nil {
		if text := section(body, r[1], solutionRe); text != "" {
			parts = append(parts, "Reason: "+truncateRunes(text, maxSectionText))
		}
	}
	if s != nil {
		if text := section(body, s[1], reasonRe); text != "" {
			parts = append(parts, "Solution: "+truncateRunes(text, maxSectionText))
		}
	}
	return strings.Join(parts, "\n")
}

// section is the text from start up to the next match of stop.
func section(body string, start int, stop *regexp.Regexp) string {
	rest := body[start:]
	if loc := stop.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	return collapse(rest)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Codes returns the distinct vendor codes mentioned anywhere in text, sorted.
func Codes(text string) []string {
	seen := map[string]bool{}
	for _, m := range codeRe.FindAllString(text, -1) {
		seen[m] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return truncateRunes(s, max) + "..."
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
