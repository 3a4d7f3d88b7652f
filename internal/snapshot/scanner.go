// Package snapshot indexes a snapshot directory: it records every file as an
// artifact, parses job definitions and builds the dependency graph from them.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/procs"
)

// Store receives everything a scan produces.
type Store interface {
	SaveArtifacts(ctx context.Context, artifacts []models.Artifact) error
	SaveProc(ctx context.Context, p models.ProcRecord) error
	graph.Writer
}

// Result summarizes one scan.
type Result struct {
	FilesScanned     int               `json:"files_scanned"`
	FilesWithContent int               `json:"files_with_content"`
	ProcsParsed      int               `json:"procs_parsed"`
	Errors           int               `json:"errors"`
	Graph            *graph.BuildStats `json:"graph"`
	Duration         time.Duration     `json:"duration"`
}

// Scanner walks a snapshot and populates a Store.
type Scanner struct {
	store    Store
	resolver *paths.Resolver
	cfg      config.SnapshotConfig
	policy   contentPolicy
	logger   *logrus.Logger
}

// NewScanner creates a scanner for the snapshot the resolver is rooted at.
func NewScanner(store Store, resolver *paths.Resolver, cfg config.SnapshotConfig, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Scanner{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		policy:   newContentPolicy(cfg.TextExtensions, cfg.MetadataOnlyExtensions, cfg.MaxTextSize),
		logger:   logger,
	}
}

type fileJob struct {
	path string
	dir  string
}

type fileResult struct {
	artifact models.Artifact
	proc     *graph.ParsedProc
	record   *models.ProcRecord
	err      error
}

// Scan indexes the snapshot. Per-file failures are counted and logged, not
// returned.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	start := time.Now()
	root := s.resolver.Root()

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("snapshot path does not exist: %s", root)
	}

	var jobs []fileJob
	for _, dir := range s.cfg.ScanDirs {
		files, err := walkFiles(root, dir)
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
		if files == nil {
			s.logger.WithField("dir", dir).Debug("Skipping missing directory")
		}
		for _, f := range files {
			jobs = append(jobs, fileJob{path: f, dir: dir})
		}
	}

	results := make([]fileResult, len(jobs))
	var withContent int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.processFile(root, job)
			if results[i].artifact.TextContent != "" {
				atomic.AddInt64(&withContent, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{FilesScanned: len(jobs), FilesWithContent: int(withContent)}
	artifacts := make([]models.Artifact, 0, len(results))
	var parsed []graph.ParsedProc
	for _, r := range results {
		if r.err != nil {
			res.Errors++
			s.logger.WithError(r.err).WithField("path", r.artifact.Path).Warn("Error processing file")
			continue
		}
		artifacts = append(artifacts, r.artifact)
		if r.record != nil {
			if err := s.store.SaveProc(ctx, *r.record); err != nil {
				return nil, err
			}
			parsed = append(parsed, *r.proc)
			res.ProcsParsed++
		}
	}

	if err := s.store.SaveArtifacts(ctx, artifacts); err != nil {
		return nil, fmt.Errorf("failed to save artifacts: %w", err)
	}

	stats, err := graph.NewBuilder(s.store, s.resolver).Build(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	res.Graph = stats
	res.Duration = time.Since(start)

	s.logger.WithFields(logrus.Fields{
		"files":         res.FilesScanned,
		"with_content":  res.FilesWithContent,
		"procs":         res.ProcsParsed,
		"nodes_created": stats.NodesCreated,
		"edges_created": stats.EdgesCreated,
		"errors":        res.Errors,
	}).Info("Scan completed")
	return res, nil
}

func (s *Scanner) processFile(root string, job fileJob) fileResult {
	rel, err := filepath.Rel(root, job.path)
	if err != nil {
		return fileResult{err: err}
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(job.path)
	if err != nil {
		return fileResult{artifact: models.Artifact{Path: rel}, err: err}
	}

	a := models.Artifact{
		Kind:  classify(job.path, job.dir),
		Path:  rel,
		MTime: float64(info.ModTime().UnixNano()) / float64(time.Second),
		Size:  info.Size(),
	}
	if s.policy.wantsText(job.path, info.Size()) {
		if text, ok := readText(job.path); ok {
			a.TextContent = text
			a.SHA256 = HashBytes([]byte(text))
		}
	}
	if a.SHA256 == "" {
		h, err := HashFile(job.path)
		if err != nil {
			return fileResult{artifact: a, err: err}
		}
		a.SHA256 = h
	}

	out := fileResult{artifact: a}
	if filepath.Ext(job.path) == ".procs" {
		var d *procs.Data
		if a.TextContent != "" {
			d = procs.Parse(a.TextContent)
		} else {
			d = procs.ParseFile(job.path)
		}
		raw, err := d.JSON()
		if err != nil {
			return fileResult{artifact: a, err: err}
		}
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(job.path), ".procs"))
		out.proc = &graph.ParsedProc{Name: name, Data: d}
		out.record = &models.ProcRecord{Name: name, Path: rel, ParsedJSON: raw, SHA256: a.SHA256}
	}
	return out
}
