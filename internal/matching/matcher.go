// Package matching ranks the job definitions in the graph by how likely
// each one is to have produced a given failure log.
//
// Six strategies run against every log and their contributions are summed
// per node:
//
//	prefix token     exact key +2.0, else key prefix +1.5
//	docdef ref       proc with an edge to the docdef +1.5
//	script path      proc that RUNS the script +1.2
//	log file name    exact key +1.0, base name +0.9, else key prefix +0.7
//	job id token     key substring +0.5
//	customer id      key prefix +0.3
//
// Candidates rank by total score, then by key. Confidence is the best score
// over 5.7, capped at 1.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/logparse"
)

// Strategy weights.
const (
	WeightPrefixExact   = 2.0
	WeightPrefixPartial = 1.5
	WeightDocdef        = 1.5
	WeightScript        = 1.2
	WeightPathExact     = 1.0
	WeightPathBase      = 0.9
	WeightPathPartial   = 0.7
	WeightJID           = 0.5
	WeightCID           = 0.3

	// MaxScore is the sum of the four strongest single contributions.
	MaxScore = WeightPrefixExact + WeightPrefixPartial + WeightScript + WeightPathExact
)

// Forced-match confidences.
const (
	ForcedExactConfidence   = 1.0
	ForcedPartialConfidence = 0.9
)

// DefaultDebugLimit is how many candidates a debug match returns.
const DefaultDebugLimit = 10

// Contribution is one strategy's share of a candidate's score.
type Contribution struct {
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
}

// Candidate is a scored proc node.
type Candidate struct {
	Node       graph.Node     `json:"node"`
	Score      float64        `json:"score"`
	Strategies []Contribution `json:"strategies"`
}

func (c *Candidate) add(strategy string, score float64) {
	c.Strategies = append(c.Strategies, Contribution{Strategy: strategy, Score: score})
	c.Score += score
}

// Result is the outcome of a match. A nil Node means nothing matched, which
// always comes with zero confidence.
type Result struct {
	Node       *graph.Node
	Confidence float64
	// Candidates is set only for debug matches.
	Candidates []Candidate
}

func (r Result) Found() bool { return r.Node != nil }

// Options adjust a single match.
type Options struct {
	// Forced names the proc to use, bypassing scoring.
	Forced string
	// Debug returns the top candidates with their breakdown.
	Debug bool
}

// Matcher matches logs against a graph.
type Matcher struct {
	store      graph.Reader
	debugLimit int
	logger     *slog.Logger
}

// NewMatcher creates a matcher. A debugLimit <= 0 uses DefaultDebugLimit.
func NewMatcher(store graph.Reader, debugLimit int) *Matcher {
	if debugLimit <= 0 {
		debugLimit = DefaultDebugLimit
	}
	return &Matcher{
		store:      store,
		debugLimit: debugLimit,
		logger:     logging.Component("matching"),
	}
}

// Match finds the proc node most likely responsible for the log at logPath.
// Finding nothing is a normal Result, not an error.
func (m *Matcher) Match(ctx context.Context, analysis *logparse.Analysis, logPath string, opts Options) (Result, error) {
	if m == nil || m.store == nil {
		return Result{}, errors.ValidationError("matcher has no graph store")
	}
	if analysis == nil {
		return Result{}, errors.ValidationError("log analysis is required")
	}

	if forced := strings.ToLower(strings.TrimSpace(opts.Forced)); forced != "" {
		return m.matchForced(ctx, forced)
	}

	s := &scorer{store: m.store, byID: map[int64]*Candidate{}}
	if err := s.run(ctx, analysis, logPath); err != nil {
		return Result{}, err
	}

	ranked := s.ranked()
	if len(ranked) == 0 {
		m.logger.Debug("no candidates", "log", logPath)
		res := Result{}
		if opts.Debug {
			res.Candidates = []Candidate{}
		}
		return res, nil
	}

	best := ranked[0]
	res := Result{
		Node:       &best.Node,
		Confidence: confidence(best.Score),
	}
	if opts.Debug {
		n := min(len(ranked), m.debugLimit)
		res.Candidates = ranked[:n]
	}
	m.logger.Debug("matched",
		"log", logPath,
		"node", best.Node.Key,
		"score", best.Score,
		"candidates", len(ranked))
	return res, nil
}

func (m *Matcher) matchForced(ctx context.Context, forced string) (Result, error) {
	steps := []struct {
		match      graph.KeyMatch
		pattern    string
		confidence float64
	}{
		{graph.MatchExact, graph.NodeKey(graph.NodeProc, forced), ForcedExactConfidence},
		{graph.MatchPrefix, graph.NodeKey(graph.NodeProc, forced), ForcedPartialConfidence},
		{graph.MatchContains, forced, ForcedPartialConfidence},
	}
	for _, step := range steps {
		nodes, err := m.store.FindNodes(ctx, graph.NodeProc, step.match, step.pattern)
		if err != nil {
			return Result{}, err
		}
		if len(nodes) > 0 {
			n := nodes[0]
			m.logger.Debug("forced match", "forced", forced, "node", n.Key, "confidence", step.confidence)
			return Result{Node: &n, Confidence: step.confidence}, nil
		}
	}
	return Result{}, nil
}

func confidence(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return min(1.0, score/MaxScore)
}

type scorer struct {
	store graph.Reader
	byID  map[int64]*Candidate
	order []int64
}

func (s *scorer) credit(nodes []graph.Node, strategy string, score float64) {
	for _, n := range nodes {
		c, ok := s.byID[n.ID]
		if !ok {
			c = &Candidate{Node: n}
			s.byID[n.ID] = c
			s.order = append(s.order, n.ID)
		}
		c.add(strategy, score)
	}
}

func (s *scorer) find(ctx context.Context, match graph.KeyMatch, pattern string) ([]graph.Node, error) {
	return s.store.FindNodes(ctx, graph.NodeProc, match, pattern)
}

func (s *scorer) run(ctx context.Context, a *logparse.Analysis, logPath string) error {
	for _, step := range []func(context.Context, *logparse.Analysis, string) error{
		s.byPrefix,
		s.byDocdef,
		s.byScript,
		s.byLogName,
		s.byJID,
		s.byCID,
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx, a, logPath); err != nil {
			return fmt.Errorf("match %s: %w", logPath, err)
		}
	}
	return nil
}

func (s *scorer) byPrefix(ctx context.Context, a *logparse.Analysis, _ string) error {
	for _, p := range a.PrefixTokens {
		key := graph.NodeKey(graph.NodeProc, p)
		nodes, err := s.find(ctx, graph.MatchExact, key)
		if err != nil {
			return err
		}
		if len(nodes) > 0 {
			s.credit(nodes, "prefix_exact:"+p, WeightPrefixExact)
			continue
		}
		if nodes, err = s.find(ctx, graph.MatchPrefix, key); err != nil {
			return err
		}
		s.credit(nodes, "prefix_partial:"+p, WeightPrefixPartial)
	}
	return nil
}

func (s *scorer) byDocdef(ctx context.Context, a *logparse.Analysis, _ string) error {
	for _, ref := range a.DocdefRefs {
		nodes, err := s.store.ProcsUsingDocdef(ctx, ref)
		if err != nil {
			return err
		}
		s.credit(nodes, "docdef:"+ref, WeightDocdef)
	}
	return nil
}

func (s *scorer) byScript(ctx context.Context, a *logparse.Analysis, _ string) error {
	for _, p := range a.ScriptPaths {
		name := filepath.Base(p)
		nodes, err := s.store.ProcsRunningScript(ctx, name)
		if err != nil {
			return err
		}
		s.credit(nodes, "script:"+name, WeightScript)
	}
	return nil
}

func (s *scorer) byLogName(ctx context.Context, _ *logparse.Analysis, logPath string) error {
	name := logparse.ProcNameFromPath(logPath)
	if name == "" {
		return nil
	}
	nodes, err := s.find(ctx, graph.MatchExact, graph.NodeKey(graph.NodeProc, name))
	if err != nil {
		return err
	}
	if len(nodes) > 0 {
		s.credit(nodes, "path_exact:"+name, WeightPathExact)
		return nil
	}

	if base := logparse.BaseProcName(name); base != name {
		nodes, err = s.find(ctx, graph.MatchExact, graph.NodeKey(graph.NodeProc, base))
		if err != nil {
			return err
		}
		if len(nodes) > 0 {
			s.credit(nodes, "path_base:"+base, WeightPathBase)
			return nil
		}
	}

	nodes, err = s.find(ctx, graph.MatchPrefix, graph.NodeKey(graph.NodeProc, name))
	if err != nil {
		return err
	}
	s.credit(nodes, "path_partial:"+name, WeightPathPartial)
	return nil
}

func (s *scorer) byJID(ctx context.Context, a *logparse.Analysis, _ string) error {
	for _, jid := range a.JIDTokens {
		nodes, err := s.find(ctx, graph.MatchContains, jid)
		if err != nil {
			return err
		}
		s.credit(nodes, "jid:"+jid, WeightJID)
	}
	return nil
}

func (s *scorer) byCID(ctx context.Context, _ *logparse.Analysis, logPath string) error {
	cid := logparse.CIDFromPath(logPath)
	if cid == "" {
		return nil
	}
	nodes, err := s.find(ctx, graph.MatchPrefix, graph.NodeKey(graph.NodeProc, cid))
	if err != nil {
		return err
	}
	s.credit(nodes, "cid:"+cid, WeightCID)
	return nil
}

// ranked orders candidates by score descending, then key ascending.
func (s *scorer) ranked() []Candidate {
	out := make([]Candidate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.Key < out[j].Node.Key
	})
	return out
}
