// Package planner picks the job definitions a change request is most likely
// about and assembles, for each, the bundle of files an engineer should
// open: the .procs file, its scripts and inputs, the matching control files
// and the document definitions they render.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/models"
)

// DefaultLimit is how many candidates Plan returns when the request does
// not say.
const DefaultLimit = 5

// Score weights.
const (
	ScoreExactKey    = 50.0
	ScoreCIDPrefix   = 15.0
	ScoreHasScript   = 10.0
	ScoreHasInsert   = 10.0
	ScoreHasControl  = 10.0
	ScoreHasDocdef   = 5.0
	ScoreTitlePhrase = 30.0
	ScoreKeyword     = 2.0
)

// Bundle file provenance.
const (
	SourceProcFile      = "proc_file"
	SourceRunsEdge      = "RUNS_edge"
	SourceReadsEdge     = "READS_edge"
	SourceControlMatch  = "control_match"
	SourceControlDFA    = "control_format_dfa"
	SourceProcsDFAToken = "procs_dfa_token"
)

var (
	formatDFARe = regexp.MustCompile(`(?i)\w*format_dfa\s*[=:]\s*["']?(\w+)["']?`)
	dfaTokenRe  = regexp.MustCompile(`\b([A-Z]{4}[A-Z0-9]{2,})\b`)
)

// Store is what the planner reads: the graph plus parsed job-definition
// content and the raw artifacts.
type Store interface {
	graph.Reader
	ProcContent(ctx context.Context, name string) (string, bool, error)
	ProcContents(ctx context.Context) ([]models.ProcRecord, error)
	ArtifactsByKind(ctx context.Context, kind, pathContains string) ([]models.Artifact, error)
}

// BundleFile is one file of a bundle. Path is snapshot-relative.
type BundleFile struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Source string `json:"source"`
}

// ScoreItem is one rule's contribution to a candidate's score.
type ScoreItem struct {
	Rule   string  `json:"rule"`
	Points float64 `json:"points"`
}

// Candidate is a scored job definition and its bundle.
type Candidate struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Score       float64      `json:"score"`
	Breakdown   []ScoreItem  `json:"breakdown"`
	Files       []BundleFile `json:"files"`
}

func (c *Candidate) addFile(kind, p, source string) {
	c.Files = append(c.Files, BundleFile{Kind: kind, Path: p, Source: source})
}

func (c *Candidate) hasKind(kind string) bool {
	for _, f := range c.Files {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Request describes what to plan for. All fields are optional.
type Request struct {
	CID   string
	JobID string
	Title string
	Limit int
}

// Result holds the top candidates and how many were ranked in total.
type Result struct {
	Intent     Intent
	Candidates []Candidate
	Total      int
}

// Planner builds bundle plans.
type Planner struct {
	store  Store
	logger *slog.Logger
}

func New(store Store) *Planner {
	return &Planner{store: store, logger: logging.Component("planner")}
}

// Plan ranks candidate job definitions for req. No match yields an empty
// Result, not an error.
func (p *Planner) Plan(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.store == nil {
		return Result{}, errors.ValidationError("planner has no store")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	intent := BuildIntent(req.CID, req.JobID, req.Title)
	candidates, err := p.findCandidates(ctx, intent)
	if err != nil {
		return Result{}, fmt.Errorf("find candidates: %w", err)
	}

	for i := range candidates {
		c := &candidates[i]
		if err := p.buildBundle(ctx, c, intent); err != nil {
			return Result{}, fmt.Errorf("bundle %s: %w", c.Key, err)
		}
		if err := p.score(ctx, c, intent); err != nil {
			return Result{}, fmt.Errorf("score %s: %w", c.Key, err)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Key < candidates[j].Key
	})

	res := Result{Intent: intent, Total: len(candidates), Candidates: candidates}
	if len(candidates) > limit {
		res.Candidates = candidates[:limit]
	}
	p.logger.Debug("plan ready",
		"cid", intent.CID,
		"job_id", intent.JobID,
		"letter", intent.LetterNumber,
		"candidates", res.Total)
	return res, nil
}

func newCandidate(n graph.Node) Candidate {
	return Candidate{
		Key:         n.Key,
		Name:        graph.SplitKey(n.Key),
		DisplayName: n.DisplayName,
		Breakdown:   []ScoreItem{},
		Files:       []BundleFile{},
	}
}

func (p *Planner) findCandidates(ctx context.Context, intent Intent) ([]Candidate, error) {
	var out []Candidate

	switch {
	case intent.CID != "" && intent.JobID != "":
		exact := graph.NodeKey(graph.NodeProc, intent.CID+intent.JobID)
		nodes, err := p.store.FindNodes(ctx, graph.NodeProc, graph.MatchExact, exact)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			out = append(out, newCandidate(n))
		}
		siblings, err := p.store.FindNodes(ctx, graph.NodeProc, graph.MatchPrefix, graph.NodeKey(graph.NodeProc, intent.CID))
		if err != nil {
			return nil, err
		}
		for _, n := range siblings {
			if n.Key != exact {
				out = append(out, newCandidate(n))
			}
		}
	case intent.CID != "":
		nodes, err := p.store.FindNodes(ctx, graph.NodeProc, graph.MatchPrefix, graph.NodeKey(graph.NodeProc, intent.CID))
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			out = append(out, newCandidate(n))
		}
	}

	if len(out) > 0 || len(intent.Keywords) == 0 {
		return out, nil
	}

	records, err := p.store.ProcContents(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		content := strings.ToLower(r.ParsedJSON)
		if !containsAny(content, intent.Keywords) {
			continue
		}
		n, ok, err := p.store.NodeByKey(ctx, graph.NodeKey(graph.NodeProc, r.Name))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, newCandidate(n))
		}
	}
	return out, nil
}

func (p *Planner) buildBundle(ctx context.Context, c *Candidate, intent Intent) error {
	c.addFile(models.KindProcs, "procs/"+c.Name+".procs", SourceProcFile)

	node, ok, err := p.store.NodeByKey(ctx, c.Key)
	if err != nil || !ok {
		return err
	}

	runs, err := p.store.Targets(ctx, node.ID, graph.RelRuns)
	if err != nil {
		return err
	}
	for _, t := range runs {
		if t.Node.CanonicalPath != "" {
			c.addFile(models.KindScript, t.Node.CanonicalPath, SourceRunsEdge)
		}
	}

	reads, err := p.store.Targets(ctx, node.ID, graph.RelReads)
	if err != nil {
		return err
	}
	for _, t := range reads {
		if t.Node.CanonicalPath != "" {
			c.addFile(models.KindInsert, t.Node.CanonicalPath, SourceReadsEdge)
		}
	}

	cid := intent.CID
	if cid == "" {
		cid = c.Name[:min(4, len(c.Name))]
	}
	all, err := p.store.ArtifactsByKind(ctx, models.KindControl, cid)
	if err != nil {
		return err
	}
	controls := selectControls(all, c.Name, intent.LetterNumber)
	for _, a := range controls {
		c.addFile(models.KindControl, a.Path, SourceControlMatch)
	}

	seen := map[string]bool{}
	for _, a := range controls {
		for _, code := range filterByLetter(dfaCodesFromControl(a.TextContent), intent.LetterNumber) {
			if err := p.resolveDocdef(ctx, c, code, SourceControlDFA, seen); err != nil {
				return err
			}
		}
	}

	content, ok, err := p.store.ProcContent(ctx, c.Name)
	if err != nil {
		return err
	}
	if ok {
		for _, code := range filterByLetter(dfaTokensFromProcs(content, cid), intent.LetterNumber) {
			if err := p.resolveDocdef(ctx, c, code, SourceProcsDFAToken, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Planner) resolveDocdef(ctx context.Context, c *Candidate, code, source string, seen map[string]bool) error {
	artifacts, err := p.store.ArtifactsByKind(ctx, models.KindDocdef, code)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		c.addFile(models.KindDocdef, a.Path, source)
	}
	return nil
}

func (p *Planner) score(ctx context.Context, c *Candidate, intent Intent) error {
	add := func(rule string, points float64) {
		c.Breakdown = append(c.Breakdown, ScoreItem{Rule: rule, Points: points})
		c.Score += points
	}

	if intent.CID != "" && intent.JobID != "" && c.Key == graph.NodeKey(graph.NodeProc, intent.CID+intent.JobID) {
		add("exact_key_match", ScoreExactKey)
	}
	if intent.CID != "" && strings.HasPrefix(c.Name, intent.CID) {
		add("cid_prefix", ScoreCIDPrefix)
	}
	if c.hasKind(models.KindScript) {
		add("has_scripts", ScoreHasScript)
	}
	if c.hasKind(models.KindInsert) {
		add("has_inserts", ScoreHasInsert)
	}
	if c.hasKind(models.KindControl) {
		add("has_control", ScoreHasControl)
	}
	if c.hasKind(models.KindDocdef) {
		add("has_dfa", ScoreHasDocdef)
	}

	content, _, err := p.store.ProcContent(ctx, c.Name)
	if err != nil {
		return err
	}
	content = strings.ToLower(content)
	if content == "" {
		return nil
	}
	if intent.RawTitle != "" {
		if phrase := TitlePhrase(intent.RawTitle); phrase != "" && strings.Contains(content, strings.ToLower(phrase)) {
			add("title_phrase_match", ScoreTitlePhrase)
		}
	}
	for _, kw := range intent.Keywords {
		if strings.Contains(content, kw) {
			add("keyword:"+kw, ScoreKeyword)
		}
	}
	return nil
}

// selectControls keeps the controls of the proc's job family and, when a
// letter number is known and any control carries it, only those.
func selectControls(all []models.Artifact, procName, letter string) []models.Artifact {
	family := FamilyPrefix(procName)
	if family == "" {
		return nil
	}
	var matched []models.Artifact
	for _, a := range all {
		if strings.Contains(strings.ToLower(path.Base(a.Path)), family) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 || letter == "" {
		return matched
	}
	var lettered []models.Artifact
	for _, a := range matched {
		if strings.Contains(path.Base(a.Path), letter) {
			lettered = append(lettered, a)
		}
	}
	if len(lettered) > 0 {
		return lettered
	}
	return matched
}

// dfaCodesFromControl returns the unique, uppercased values of every
// *format_dfa setting in a control file.
func dfaCodesFromControl(content string) []string {
	var codes []string
	seen := map[string]bool{}
	for _, m := range formatDFARe.FindAllStringSubmatch(content, -1) {
		code := strings.ToUpper(m[1])
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// dfaTokensFromProcs returns uppercase tokens in job-definition content
// that start with the customer id.
func dfaTokensFromProcs(content, cid string) []string {
	prefix := strings.ToUpper(cid)
	var codes []string
	seen := map[string]bool{}
	for _, m := range dfaTokenRe.FindAllStringSubmatch(content, -1) {
		tok := m[1]
		if strings.HasPrefix(tok, prefix) && !seen[tok] {
			seen[tok] = true
			codes = append(codes, tok)
		}
	}
	return codes
}

// filterByLetter drops codes not ending in letter; an empty letter keeps all.
func filterByLetter(codes []string, letter string) []string {
	if letter == "" {
		return codes
	}
	var out []string
	for _, c := range codes {
		if strings.HasSuffix(c, letter) {
			out = append(out, c)
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
