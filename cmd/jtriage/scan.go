package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/snapshot"
	"github.com/rohankatakam/jobtriage/internal/storage"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <snapshot>",
	Short: "Index a snapshot and build its dependency graph",
	Long: `Walk the snapshot, record every file as an artifact, parse the job
definitions under procs/ and build the dependency graph.

The database is created at <snapshot>/.jtriage/jtriage.db unless --db or
storage.local_path says otherwise. Re-scanning is idempotent.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the scan summary as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := cfg.Require(config.ValidationContextScan); err != nil {
		return err
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return errors.FileSystemErrorf(err, "resolve snapshot path %s", args[0])
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return errors.ValidationErrorf("snapshot path does not exist: %s", root)
	}

	path := cfg.DBPath(root)
	if dbPath != "" {
		path = dbPath
	}
	store, err := storage.Open(cfg.Storage, path, logger)
	if err != nil {
		return errors.DatabaseError(err, "open triage database")
	}
	defer store.Close()

	logger.WithField("snapshot", root).Info("Scanning snapshot")
	scanner := snapshot.NewScanner(store, paths.NewResolver(root), cfg.Snapshot, logger)
	res, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "Scanned %s\n", root)
	fmt.Fprintf(out, "  Database:      %s\n", path)
	fmt.Fprintf(out, "  Files:         %d (%d with text)\n", res.FilesScanned, res.FilesWithContent)
	fmt.Fprintf(out, "  Procs parsed:  %d\n", res.ProcsParsed)
	if res.Graph != nil {
		fmt.Fprintf(out, "  Nodes created: %d\n", res.Graph.NodesCreated)
		printCounts(cmd, res.Graph.NodesByType)
		fmt.Fprintf(out, "  Edges created: %d\n", res.Graph.EdgesCreated)
		printCounts(cmd, res.Graph.EdgesByType)
	}
	if res.Errors > 0 {
		fmt.Fprintf(out, "  Errors:        %d (see log)\n", res.Errors)
	}
	fmt.Fprintf(out, "  Duration:      %s\n", res.Duration.Round(1e6))
	return nil
}

func printCounts(cmd *cobra.Command, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "    %-14s %d\n", k, counts[k])
	}
}
