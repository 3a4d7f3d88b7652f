package main

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/incidents"
)

var (
	incidentLimit int
	incidentJSON  bool
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Manage analysed failure logs",
	Long: `Every 'jtriage explain' run is stored as an incident keyed by its log path.
These commands list, show, search and delete them.`,
}

var incidentsListCmd = &cobra.Command{
	Use:   "list <snapshot>",
	Short: "List recent incidents",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsList,
}

var incidentsShowCmd = &cobra.Command{
	Use:   "show <snapshot> <id>",
	Short: "Show one incident",
	Args:  cobra.ExactArgs(2),
	RunE:  runIncidentsShow,
}

var incidentsSearchCmd = &cobra.Command{
	Use:   "search <snapshot> <query>",
	Short: "Search incidents by log path, node, hypotheses or parsed content",
	Args:  cobra.ExactArgs(2),
	RunE:  runIncidentsSearch,
}

var incidentsDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot> <id>",
	Short: "Delete an incident",
	Args:  cobra.ExactArgs(2),
	RunE:  runIncidentsDelete,
}

func init() {
	incidentsListCmd.Flags().IntVarP(&incidentLimit, "limit", "n", incidents.DefaultListLimit, "maximum number of incidents")
	incidentsSearchCmd.Flags().IntVarP(&incidentLimit, "limit", "n", incidents.DefaultListLimit, "maximum number of results")
	for _, c := range []*cobra.Command{incidentsListCmd, incidentsShowCmd, incidentsSearchCmd} {
		c.Flags().BoolVar(&incidentJSON, "json", false, "print as JSON")
	}

	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsShowCmd)
	incidentsCmd.AddCommand(incidentsSearchCmd)
	incidentsCmd.AddCommand(incidentsDeleteCmd)
}

func runIncidentsList(cmd *cobra.Command, args []string) error {
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	list, err := svc.Incidents().List(cmd.Context(), incidentLimit)
	if err != nil {
		return errors.DatabaseError(err, "list incidents")
	}
	out := cmd.OutOrStdout()
	if incidentJSON {
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No incidents recorded yet")
		return nil
	}
	fmt.Fprintf(out, "%d incident(s):\n\n", len(list))
	for _, inc := range list {
		printIncidentLine(out, inc, "")
	}
	return nil
}

func runIncidentsShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[1])
	if err != nil {
		return errors.ValidationErrorf("invalid incident id %q: %v", args[1], err)
	}
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	inc, err := svc.Incidents().Get(cmd.Context(), id)
	if goerrors.Is(err, incidents.ErrNotFound) {
		return errors.ValidationErrorf("incident %s not found", id)
	}
	if err != nil {
		return errors.DatabaseError(err, "get incident")
	}

	out := cmd.OutOrStdout()
	if incidentJSON {
		return writeJSON(out, inc)
	}
	fmt.Fprintf(out, "Incident:    %s\n", inc.ID)
	fmt.Fprintf(out, "Log:         %s\n", inc.LogPath)
	fmt.Fprintf(out, "Node:        %s\n", inc.NodeKey())
	if inc.Confidence != nil {
		fmt.Fprintf(out, "Confidence:  %.0f%%\n", *inc.Confidence*100)
	}
	fmt.Fprintf(out, "Created:     %s\n", inc.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Analysed:    %s\n", inc.LastAnalyzed().Format("2006-01-02 15:04:05"))
	if inc.HypothesesJSON != nil {
		fmt.Fprintf(out, "\nHypotheses:\n%s\n", indentJSON(*inc.HypothesesJSON))
	}
	if inc.SimilarCasesJSON != nil {
		fmt.Fprintf(out, "\nSimilar cases:\n%s\n", indentJSON(*inc.SimilarCasesJSON))
	}
	return nil
}

func runIncidentsSearch(cmd *cobra.Command, args []string) error {
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	query := args[1]
	results, err := svc.Incidents().Search(cmd.Context(), query, incidentLimit)
	if err != nil {
		return errors.DatabaseError(err, "search incidents")
	}
	out := cmd.OutOrStdout()
	if incidentJSON {
		return writeJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(out, "No incidents found matching '%s'\n", query)
		return nil
	}
	fmt.Fprintf(out, "Found %d incident(s) matching '%s':\n\n", len(results), query)
	for _, r := range results {
		printIncidentLine(out, r.Incident, string(r.Relevance))
	}
	return nil
}

func runIncidentsDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[1])
	if err != nil {
		return errors.ValidationErrorf("invalid incident id %q: %v", args[1], err)
	}
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Incidents().Delete(cmd.Context(), id); err != nil {
		if goerrors.Is(err, incidents.ErrNotFound) {
			return errors.ValidationErrorf("incident %s not found", id)
		}
		return errors.DatabaseError(err, "delete incident")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted incident %s\n", id)
	return nil
}

func printIncidentLine(w io.Writer, inc incidents.Incident, relevance string) {
	conf := "  - "
	if inc.Confidence != nil {
		conf = fmt.Sprintf("%3.0f%%", *inc.Confidence*100)
	}
	fmt.Fprintf(w, "%s  %s  %s  %-24s %s", inc.ID, inc.LastAnalyzed().Format("2006-01-02 15:04"), conf, inc.NodeKey(), inc.LogPath)
	if relevance != "" {
		fmt.Fprintf(w, "  [%s]", relevance)
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indentJSON(s string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return s
	}
	return "  " + string(b)
}
