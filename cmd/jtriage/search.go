package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/errors"
)

var (
	searchLimit int
	searchJSON  bool
	statsJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <snapshot> <query>",
	Short: "Search indexed snapshot files by path or content",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats <snapshot>",
	Short: "Show what the snapshot database holds",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of hits")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print hits as JSON")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchLimit <= 0 {
		return errors.ValidationErrorf("--limit must be positive, got %d", searchLimit)
	}
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	hits, err := svc.Store().Search(cmd.Context(), args[1], searchLimit)
	if err != nil {
		return errors.DatabaseError(err, "search artifacts")
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		fmt.Fprintf(out, "No matches for %q\n", args[1])
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%-8s %-7s %s\n", h.Kind, h.Match, h.Path)
		if h.Snippet != "" {
			fmt.Fprintf(out, "         %s\n", h.Snippet)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "Snapshot: %s\n\n", svc.SnapshotRoot())
	fmt.Fprintln(out, "Artifacts:")
	printCounts(cmd, st.Artifacts)
	fmt.Fprintf(out, "Procs:          %d\n", st.Procs)
	fmt.Fprintf(out, "Graph nodes:    %d\n", st.Graph.TotalNodes())
	printCounts(cmd, st.Graph.NodesByType)
	fmt.Fprintln(out, "Graph edges:")
	printCounts(cmd, st.Graph.EdgesByType)
	fmt.Fprintf(out, "Incidents:      %d\n", st.Incidents)
	fmt.Fprintf(out, "Case cards:     %d\n", st.CaseCards)
	fmt.Fprintf(out, "Message codes:  %d\n", st.MessageCodes)

	if len(st.TopNodes) > 0 {
		top := append(st.TopNodes[:0:0], st.TopNodes...)
		sort.SliceStable(top, func(i, j int) bool { return top[i].TotalIncidents > top[j].TotalIncidents })
		fmt.Fprintln(out, "\nMost failing nodes:")
		for _, n := range top {
			fmt.Fprintf(out, "  %-30s total=%d  last30d=%d  avg_conf=%.2f\n",
				n.NodeKey, n.TotalIncidents, n.Last30Days, n.AvgConfidence)
		}
	}
	return nil
}
