package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/procs"
)

// Edge confidences assigned during construction.
const (
	confidenceRuns           = 1.0
	confidenceCalls          = 0.8
	confidenceFileSetup      = 1.0
	confidenceLogFile        = 0.9
	confidenceReferenced     = 0.7
	confidenceCrossRef       = 0.9
	confidenceCrossRefTarget = 0.8
)

// ParsedProc is one job definition ready for graph construction.
type ParsedProc struct {
	Name string
	Data *procs.Data
}

// BuildStats counts what a build created. Re-running over an already built
// graph creates nothing.
type BuildStats struct {
	ProcsProcessed int            `json:"procs_processed"`
	NodesCreated   int            `json:"nodes_created"`
	EdgesCreated   int            `json:"edges_created"`
	NodesByType    map[string]int `json:"nodes_by_type"`
	EdgesByType    map[string]int `json:"edges_by_type"`
}

func (s *BuildStats) node(t NodeType, created bool) {
	if created {
		s.NodesCreated++
		s.NodesByType[string(t)]++
	}
}

func (s *BuildStats) edge(r RelType, created bool) {
	if created {
		s.EdgesCreated++
		s.EdgesByType[string(r)]++
	}
}

// Builder turns parsed job definitions into nodes and edges.
type Builder struct {
	store    Writer
	resolver *paths.Resolver
	logger   *slog.Logger
}

// NewBuilder creates a builder writing to store and resolving legacy paths
// with resolver.
func NewBuilder(store Writer, resolver *paths.Resolver) *Builder {
	return &Builder{
		store:    store,
		resolver: resolver,
		logger:   logging.Component("graph"),
	}
}

// Build adds every proc and its references to the graph.
func (b *Builder) Build(ctx context.Context, list []ParsedProc) (*BuildStats, error) {
	stats := &BuildStats{
		NodesByType: make(map[string]int),
		EdgesByType: make(map[string]int),
	}
	for _, p := range list {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := b.buildProc(ctx, p, stats); err != nil {
			return stats, fmt.Errorf("build graph for proc %s: %w", p.Name, err)
		}
		stats.ProcsProcessed++
	}
	b.logger.Info("graph built",
		"procs", stats.ProcsProcessed,
		"nodes_created", stats.NodesCreated,
		"edges_created", stats.EdgesCreated)
	return stats, nil
}

func (b *Builder) buildProc(ctx context.Context, p ParsedProc, stats *BuildStats) error {
	d := p.Data
	procFile := "procs/" + p.Name + ".procs"

	procID, created, err := b.store.InsertNode(ctx, Node{
		Type:          NodeProc,
		Key:           NodeKey(NodeProc, p.Name),
		DisplayName:   strings.ToUpper(d.CID) + " - " + d.AppType,
		CanonicalPath: procFile,
		Confidence:    1.0,
	})
	if err != nil {
		return err
	}
	stats.node(NodeProc, created)

	link := func(dst int64, rel RelType, conf float64, line *int, text string) error {
		ok, err := b.store.InsertEdge(ctx, Edge{
			Src:        procID,
			Dst:        dst,
			RelType:    rel,
			Confidence: conf,
			Evidence:   &Evidence{File: procFile, LineNo: line, LineText: text},
		})
		if err != nil {
			return err
		}
		stats.edge(rel, ok)
		return nil
	}

	mainScript, otherScripts := d.Scripts()
	if mainScript != "" {
		id, err := b.scriptNode(ctx, mainScript, stats)
		if err != nil {
			return err
		}
		if err := link(id, RelRuns, confidenceRuns, d.ShellScriptLine, "__Shell Script: "+mainScript); err != nil {
			return err
		}
	}

	if d.FileSetup != "" {
		id, err := b.resourceNode(ctx, d.FileSetup, NodeInsert, stats)
		if err != nil {
			return err
		}
		if err := link(id, RelReads, confidenceFileSetup, d.FileSetupLine, "__File Setup: "+d.FileSetup); err != nil {
			return err
		}
	}

	if d.LogFile != "" {
		id, err := b.resourceNode(ctx, d.LogFile, NodeLog, stats)
		if err != nil {
			return err
		}
		if err := link(id, RelReads, confidenceLogFile, d.LogFileLine, "__Log File: "+d.LogFile); err != nil {
			return err
		}
	}

	for _, ref := range d.CrossRefs {
		name := procs.CrossRefName(ref)
		id, created, err := b.store.InsertNode(ctx, Node{
			Type:          NodeProc,
			Key:           NodeKey(NodeProc, name),
			DisplayName:   name,
			CanonicalPath: "procs/" + name + ".procs",
			OriginalPath:  ref,
			Confidence:    confidenceCrossRefTarget,
		})
		if err != nil {
			return err
		}
		stats.node(NodeProc, created)
		if err := link(id, RelRefersTo, confidenceCrossRef, nil, "refer to "+ref); err != nil {
			return err
		}
	}

	for _, script := range otherScripts {
		id, err := b.scriptNode(ctx, script, stats)
		if err != nil {
			return err
		}
		if err := link(id, RelCalls, confidenceCalls, nil, "Referenced: "+script); err != nil {
			return err
		}
	}

	for _, res := range d.Resources() {
		if res.Path == d.FileSetup {
			continue
		}
		id, err := b.resourceNode(ctx, res.Path, NodeType(res.Type), stats)
		if err != nil {
			return err
		}
		if err := link(id, RelReads, confidenceReferenced, nil, "Referenced: "+res.Path); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) scriptNode(ctx context.Context, legacy string, stats *BuildStats) (int64, error) {
	name := path.Base(legacy)
	res := b.resolver.Resolve(legacy)
	id, created, err := b.store.InsertNode(ctx, Node{
		Type:          NodeScript,
		Key:           NodeKey(NodeScript, name),
		DisplayName:   name,
		CanonicalPath: res.Path,
		OriginalPath:  legacy,
		Confidence:    res.Confidence,
	})
	if err != nil {
		return 0, err
	}
	stats.node(NodeScript, created)
	return id, nil
}

// resourceNode creates a control, insert, docdef or log node. The file
// extension takes precedence over the suggested type.
func (b *Builder) resourceNode(ctx context.Context, legacy string, t NodeType, stats *BuildStats) (int64, error) {
	switch {
	case strings.HasSuffix(legacy, ".control"):
		t = NodeControl
	case strings.HasSuffix(legacy, ".dfa"), strings.HasSuffix(legacy, ".DFA"):
		t = NodeDocdef
	case strings.HasSuffix(legacy, ".ins"):
		t = NodeInsert
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}

	name := path.Base(legacy)
	res := b.resolver.Resolve(legacy)
	id, created, err := b.store.InsertNode(ctx, Node{
		Type:          t,
		Key:           NodeKey(t, name),
		DisplayName:   name,
		CanonicalPath: res.Path,
		OriginalPath:  legacy,
		Confidence:    res.Confidence,
	})
	if err != nil {
		return 0, err
	}
	stats.node(t, created)
	return id, nil
}
