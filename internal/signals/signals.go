// Package signals detects failures of systems outside the batch job itself
// (message databases, HTTP APIs, networks, databases) from log text.
//
// Rules are declared in YAML and compiled once into an immutable RuleSet.
// Callers load a RuleSet explicitly and pass it to whatever needs it; there
// is no package-level cache.
package signals

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/jobtriage/internal/logging"
)

//go:embed default_rules.yaml
var defaultRules []byte

const (
	DefaultMaxEvidence   = 5
	DefaultMaxLineLength = 200
)

// MissingMessageRule is the rule id whose message_id captures feed
// MissingMessageIDs.
const MissingMessageRule = "INFOTRAC_MISSING_MESSAGE_ID"

var categoryBonus = map[string]float64{
	"CONFIG":       5,
	"DATABASE":     4,
	"EXTERNAL_API": 3,
	"NETWORK":      3,
	"AUTH":         2,
	"RESOURCE":     2,
}

// SeverityRank orders F > E > W > I; unknown severities rank 0.
func SeverityRank(severity string) int {
	switch severity {
	case "F":
		return 4
	case "E":
		return 3
	case "W":
		return 2
	case "I":
		return 1
	}
	return 0
}

// Evidence is one log line that triggered a signal.
type Evidence struct {
	LineNo   int    `json:"line_no"`
	LineText string `json:"line_text"`
}

// Signal is a deduplicated hit of one rule with one set of captures.
type Signal struct {
	ID                 string            `json:"id"`
	Severity           string            `json:"severity"`
	Category           string            `json:"category"`
	Captures           map[string]string `json:"captures"`
	Evidence           []Evidence        `json:"evidence"`
	Hints              []string          `json:"hints"`
	HypothesisTemplate string            `json:"-"`
	Score              float64           `json:"score"`
}

func (s Signal) SeverityRank() int { return SeverityRank(s.Severity) }

// ruleFile mirrors the YAML layout.
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID                 string   `yaml:"id"`
	Severity           string   `yaml:"severity"`
	Category           string   `yaml:"category"`
	Patterns           []string `yaml:"patterns"`
	Hints              []string `yaml:"hints"`
	HypothesisTemplate string   `yaml:"hypothesis_template"`
}

type rule struct {
	id                 string
	severity           string
	category           string
	patterns           []*regexp.Regexp
	hints              []string
	hypothesisTemplate string
}

// RuleSet is a compiled, read-only collection of rules. The zero value and
// nil both match nothing.
type RuleSet struct {
	rules []rule
	// Skipped lists patterns or rules that failed to compile.
	Skipped []string
}

// Default returns the embedded rule set.
func Default() (*RuleSet, error) {
	return Parse(defaultRules)
}

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (*RuleSet, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse compiles a YAML rule document. Invalid patterns are skipped and
// reported in Skipped; a rule with no valid pattern is dropped.
func Parse(data []byte) (*RuleSet, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if doc.Rules == nil {
		return nil, fmt.Errorf("parse rules yaml: no 'rules' key")
	}

	log := logging.Component("signals")
	rs := &RuleSet{}
	for _, spec := range doc.Rules {
		r := rule{
			id:                 orDefault(spec.ID, "UNKNOWN"),
			severity:           orDefault(spec.Severity, "I"),
			category:           orDefault(spec.Category, "UNKNOWN"),
			hints:              spec.Hints,
			hypothesisTemplate: spec.HypothesisTemplate,
		}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				log.Warn("skipping invalid pattern", "rule", r.id, "pattern", p, "error", err)
				rs.Skipped = append(rs.Skipped, fmt.Sprintf("%s: %s", r.id, p))
				continue
			}
			r.patterns = append(r.patterns, re)
		}
		if len(r.patterns) == 0 {
			rs.Skipped = append(rs.Skipped, r.id)
			continue
		}
		rs.rules = append(rs.rules, r)
	}
	log.Debug("rules compiled", "rules", len(rs.rules), "skipped", len(rs.Skipped))
	return rs, nil
}

// Len returns the number of usable rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// IDs returns the rule ids in declaration order.
func (rs *RuleSet) IDs() []string {
	if rs == nil {
		return nil
	}
	ids := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		ids[i] = r.id
	}
	return ids
}

// ExtractOptions bounds the evidence kept per signal.
type ExtractOptions struct {
	MaxEvidence   int
	MaxLineLength int
}

// Extract scans text line by line. Each rule contributes at most one match
// per line. Hits with the same rule id and captures are merged. Results are
// ordered by severity, then score, both descending.
func (rs *RuleSet) Extract(text string, opts ExtractOptions) []Signal {
	if rs.Len() == 0 {
		return nil
	}
	if opts.MaxEvidence <= 0 {
		opts.MaxEvidence = DefaultMaxEvidence
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}

	index := make(map[string]int)
	var found []Signal

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		for _, r := range rs.rules {
			captures, ok := r.match(line)
			if !ok {
				continue
			}
			ev := Evidence{LineNo: i + 1, LineText: truncate(line, opts.MaxLineLength)}
			key := dedupeKey(r.id, captures)
			if at, seen := index[key]; seen {
				if len(found[at].Evidence) < opts.MaxEvidence {
					found[at].Evidence = append(found[at].Evidence, ev)
				}
				continue
			}
			s := Signal{
				ID:                 r.id,
				Severity:           r.severity,
				Category:           r.category,
				Captures:           captures,
				Evidence:           []Evidence{ev},
				Hints:              append([]string(nil), r.hints...),
				HypothesisTemplate: r.hypothesisTemplate,
			}
			s.Score = score(s)
			index[key] = len(found)
			found = append(found, s)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		ri, rj := found[i].SeverityRank(), found[j].SeverityRank()
		if ri != rj {
			return ri > rj
		}
		return found[i].Score > found[j].Score
	})
	return found
}

func (r rule) match(line string) (map[string]string, bool) {
	for _, re := range r.patterns {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		captures := map[string]string{}
		for gi, name := range re.SubexpNames() {
			if name == "" || m[2*gi] < 0 {
				continue
			}
			captures[name] = line[m[2*gi]:m[2*gi+1]]
		}
		return captures, true
	}
	return nil, false
}

func score(s Signal) float64 {
	total := float64(s.SeverityRank()) * 10
	if bonus, ok := categoryBonus[s.Category]; ok {
		total += bonus
	} else {
		total++
	}
	total += float64(len(s.Captures)) * 2
	return total
}

func dedupeKey(id string, captures map[string]string) string {
	// encoding/json sorts map keys.
	b, _ := json.Marshal(captures)
	return id + "\x00" + string(b)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var servicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)services?=(?P<service>[\w|]+)`),
	regexp.MustCompile(`(?i)/services?/(?P<service>\w+)`),
	regexp.MustCompile(`(?i)["']service(?:_type)?["']\s*:\s*["'](?P<service>\w+)["']`),
	regexp.MustCompile(`(?i)service\s*[=:]\s*["']?(?P<service>\w+)["']?`),
}

// Services returns the sorted, lowercased service names mentioned in text,
// e.g. "services=estmt|paper" or "/service/print/".
func Services(text string) []string {
	set := map[string]struct{}{}
	for _, re := range servicePatterns {
		idx := re.SubexpIndex("service")
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			for _, svc := range strings.Split(strings.ToLower(m[idx]), "|") {
				svc = strings.TrimSpace(svc)
				if len(svc) > 1 {
					set[svc] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MissingMessageIDs collects message_id captures from MissingMessageRule
// signals in first-seen order.
func MissingMessageIDs(found []Signal) []string {
	var ids []string
	seen := map[string]bool{}
	for _, s := range found {
		if s.ID != MissingMessageRule {
			continue
		}
		id := s.Captures["message_id"]
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Format fills {name} placeholders in template from values. Unknown
// placeholders leave the template unchanged, matching how partially captured
// signals are reported.
func Format(template string, values map[string]string) string {
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	if strings.Contains(out, "{") && placeholder.MatchString(out) {
		return template
	}
	return out
}

var placeholder = regexp.MustCompile(`\{\w+\}`)
