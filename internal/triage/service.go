// Package triage wires the parser, matcher, planner and stores into the two
// end-to-end operations the CLI and the MCP server expose: explaining a
// failed job log and planning an edit bundle.
package triage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/hypotheses"
	"github.com/rohankatakam/jobtriage/internal/incidents"
	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/matching"
	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/planner"
	"github.com/rohankatakam/jobtriage/internal/signals"
	"github.com/rohankatakam/jobtriage/internal/similarity"
	"github.com/rohankatakam/jobtriage/internal/storage"
)

// Options tune a Service. Zero values take the defaults.
type Options struct {
	Rules        *signals.RuleSet
	Resolver     *paths.Resolver
	DebugLimit   int
	Similarity   similarity.Options
	PlannerLimit int
}

// Service runs explain and plan against one snapshot.
type Service struct {
	store     *storage.SQLStore
	root      string
	resolver  *paths.Resolver
	parser    *logparse.Parser
	matcher   *matching.Matcher
	planner   *planner.Planner
	incidents *incidents.Database
	opts      Options
	logger    *slog.Logger

	closers []func() error
}

// New builds a service over an open store.
func New(store *storage.SQLStore, snapshotRoot string, opts Options) *Service {
	if opts.Resolver == nil {
		opts.Resolver = paths.NewResolver(snapshotRoot)
	}
	if opts.DebugLimit <= 0 {
		opts.DebugLimit = matching.DefaultDebugLimit
	}
	return &Service{
		store:     store,
		root:      filepath.Clean(snapshotRoot),
		resolver:  opts.Resolver,
		parser:    logparse.NewParser(opts.Rules),
		matcher:   matching.NewMatcher(store, opts.DebugLimit),
		planner:   planner.New(store),
		incidents: incidents.NewDatabase(store.DB()),
		opts:      opts,
		logger:    logging.Component("triage"),
	}
}

// Open opens the store for snapshot as configured and builds a service on
// it. dbOverride replaces the configured database path when set. The
// SQLite database must already exist: it is created by scan.
func Open(cfg *config.Config, snapshot, dbOverride string, logger *logrus.Logger) (*Service, error) {
	if logger == nil {
		logger = logrus.New()
	}
	root, err := filepath.Abs(snapshot)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "resolve snapshot path %s", snapshot)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.ValidationErrorf("snapshot path does not exist: %s", root)
	}

	dbPath := cfg.DBPath(root)
	if dbOverride != "" {
		dbPath = dbOverride
	}
	if cfg.Storage.Type == "" || cfg.Storage.Type == storage.DialectSQLite {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, errors.ValidationErrorf("database not found at %s. Run 'jtriage scan' first", dbPath)
		}
	}

	store, err := storage.Open(cfg.Storage, dbPath, logger)
	if err != nil {
		return nil, errors.DatabaseError(err, "open triage database")
	}

	rules, err := LoadRules(cfg.Rules.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	var closers []func() error
	resolverOpts := []paths.Option{}
	if cfg.Cache.Directory != "" {
		cache, err := paths.OpenCache(cfg.Cache.Directory)
		if err != nil {
			logger.WithError(err).Warn("path cache unavailable, resolving without it")
		} else {
			resolverOpts = append(resolverOpts, paths.WithCache(cache))
			closers = append(closers, cache.Close)
		}
	}

	s := New(store, root, Options{
		Rules:        rules,
		Resolver:     paths.NewResolver(root, resolverOpts...),
		DebugLimit:   cfg.Matching.DebugLimit,
		Similarity:   similarity.Options{Threshold: cfg.Similarity.Threshold, Limit: cfg.Similarity.Limit},
		PlannerLimit: cfg.Planner.DefaultLimit,
	})
	s.closers = append(closers, store.Close)
	return s, nil
}

// LoadRules reads external-signal rules from path, or the embedded set when
// path is empty.
func LoadRules(path string) (*signals.RuleSet, error) {
	if path == "" {
		rules, err := signals.Default()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "load embedded signal rules")
		}
		return rules, nil
	}
	rules, err := signals.Load(path)
	if err != nil {
		return nil, errors.ParseErrorf(err, "load signal rules %s", path)
	}
	return rules, nil
}

// Close releases the store and the path cache.
func (s *Service) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Service) Store() *storage.SQLStore       { return s.store }
func (s *Service) Incidents() *incidents.Database { return s.incidents }
func (s *Service) Resolver() *paths.Resolver      { return s.resolver }
func (s *Service) SnapshotRoot() string           { return s.root }

// ExplainRequest selects the log to explain.
type ExplainRequest struct {
	LogPath string
	// Proc forces the match to a job definition by key or name.
	Proc  string
	Debug bool
	// Persist records the outcome as an incident.
	Persist bool
}

// Explain parses a log, locates the failing node and assembles the report.
func (s *Service) Explain(ctx context.Context, req ExplainRequest) (*output.Report, error) {
	if req.LogPath == "" {
		return nil, errors.ValidationError("log path is required")
	}
	logPath, err := filepath.Abs(req.LogPath)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "resolve log path %s", req.LogPath)
	}
	if _, err := os.Stat(logPath); err != nil {
		return nil, errors.ValidationErrorf("log file does not exist: %s", logPath)
	}

	analysis, err := s.parser.ParseFile(logPath)
	if err != nil {
		return nil, errors.FileSystemError(err, "parse log")
	}
	s.logger.Debug("log parsed",
		"path", logPath,
		"lines", analysis.TotalLines,
		"errors", len(analysis.Errors),
		"codes", len(analysis.ErrorCodes),
		"external_signals", len(analysis.ExternalSignals))

	match, err := s.matcher.Match(ctx, analysis, logPath, matching.Options{Forced: req.Proc, Debug: req.Debug})
	if err != nil {
		return nil, errors.DatabaseError(err, "match log to graph")
	}

	report := &output.Report{
		LogPath:      logPath,
		SnapshotRoot: s.root,
		GeneratedAt:  time.Now(),
		Analysis:     analysis,
		Match:        match,
		Resolver:     s.resolver,
		RelatedFiles: []string{},
	}

	if match.Found() {
		nb, err := s.matcher.Neighbors(ctx, match.Node.ID)
		if err != nil {
			return nil, errors.DatabaseError(err, "load execution chain")
		}
		report.Neighbors = &nb
		files, err := s.matcher.RelatedFiles(ctx, *match.Node, s.root)
		if err != nil {
			return nil, errors.DatabaseError(err, "collect related files")
		}
		report.RelatedFiles = files
	}

	report.Hypotheses = hypotheses.Generate(analysis)
	if len(report.Hypotheses) == 0 {
		report.Hypotheses = hypotheses.Default()
	}

	report.Similar, err = similarity.Find(ctx, s.store, analysis.ErrorCodes, report.RelatedFiles, s.opts.Similarity)
	if err != nil {
		return nil, errors.DatabaseError(err, "find similar cases")
	}

	report.Codes, err = s.store.MessageCodes(ctx, analysis.ErrorCodes)
	if err != nil {
		return nil, errors.DatabaseError(err, "decode message codes")
	}

	if req.Persist {
		id, err := s.persist(ctx, report)
		if err != nil {
			return nil, err
		}
		report.IncidentID = id
	}
	return report, nil
}

func (s *Service) persist(ctx context.Context, r *output.Report) (string, error) {
	rec := incidents.Record{
		LogPath:    r.LogPath,
		Analysis:   r.Analysis,
		TopNode:    r.Match.Node,
		Confidence: r.Match.Confidence,
		Hypotheses: r.Hypotheses,
		Similar:    r.Similar,
	}
	inc, err := rec.Incident()
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "build incident")
	}
	inserted, err := s.incidents.Save(ctx, inc)
	if err != nil {
		return "", errors.DatabaseError(err, "persist incident")
	}
	s.logger.Info("incident recorded", "id", inc.ID, "log", r.LogPath, "node", inc.NodeKey(), "new", inserted)
	return inc.ID.String(), nil
}

// Plan ranks edit bundles. A zero limit takes the configured default.
func (s *Service) Plan(ctx context.Context, req planner.Request) (planner.Result, error) {
	if req.Limit <= 0 {
		req.Limit = s.opts.PlannerLimit
	}
	res, err := s.planner.Plan(ctx, req)
	if err != nil {
		return planner.Result{}, errors.DatabaseError(err, "plan bundle")
	}
	return res, nil
}

// Stats summarises what the store holds for the snapshot.
type Stats struct {
	Artifacts    map[string]int        `json:"artifacts"`
	Procs        int                   `json:"procs"`
	Graph        graph.Stats           `json:"graph"`
	Incidents    int                   `json:"incidents"`
	CaseCards    int                   `json:"case_cards"`
	MessageCodes int                   `json:"message_codes"`
	TopNodes     []incidents.NodeStats `json:"top_incident_nodes"`
}

// Stats collects counts across every table.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	var err error
	if st.Artifacts, err = s.store.ArtifactCounts(ctx); err != nil {
		return nil, errors.DatabaseError(err, "count artifacts")
	}
	if st.Procs, err = s.store.CountProcs(ctx); err != nil {
		return nil, errors.DatabaseError(err, "count procs")
	}
	if st.Graph, err = s.store.Stats(ctx); err != nil {
		return nil, errors.DatabaseError(err, "graph stats")
	}
	if st.Incidents, err = s.incidents.Count(ctx); err != nil {
		return nil, errors.DatabaseError(err, "count incidents")
	}
	if st.CaseCards, err = s.store.CountCaseCards(ctx); err != nil {
		return nil, errors.DatabaseError(err, "count case cards")
	}
	if st.MessageCodes, err = s.store.CountMessageCodes(ctx); err != nil {
		return nil, errors.DatabaseError(err, "count message codes")
	}
	if st.TopNodes, err = s.incidents.StatsByNode(ctx, 5); err != nil {
		return nil, errors.DatabaseError(err, "incident stats")
	}
	return st, nil
}
