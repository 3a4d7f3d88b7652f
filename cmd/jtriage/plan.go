package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/cli"
	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/planner"
)

var (
	planCID    string
	planJobID  string
	planTitle  string
	planLimit  int
	planFormat string
	planLang   string
	planAll    bool
	planDebug  bool
)

var planCmd = &cobra.Command{
	Use:   "plan <snapshot>",
	Short: "Plan the file bundle for a change request",
	Long: `Rank the snapshot's procs against a customer id, job id and request title
and list the files a developer has to touch for the best candidate.

Use --format prompt to produce a Markdown brief for a coding agent.`,
	Example: `  jtriage plan ./snapshot --cid WCCU --job-id DS1
  jtriage plan ./snapshot --title "WCCU Letter 14 - new disclosure" --format prompt --lang ru`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planCID, "cid", "", "customer id, e.g. WCCU")
	planCmd.Flags().StringVar(&planJobID, "job-id", "", "job id, e.g. DS1")
	planCmd.Flags().StringVar(&planTitle, "title", "", "change request title")
	planCmd.Flags().IntVar(&planLimit, "limit", 0, "number of candidates to keep (default planner.default_limit)")
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "output format: text, json or prompt")
	planCmd.Flags().StringVar(&planLang, "lang", "", "prompt language: en or ru (default planner.language)")
	planCmd.Flags().BoolVar(&planAll, "all", false, "show the files of every candidate")
	planCmd.Flags().BoolVar(&planDebug, "debug", false, "show the rules behind each score")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planCID == "" && planJobID == "" && planTitle == "" {
		return errors.ValidationError("at least one of --cid, --job-id or --title is required")
	}
	if planLimit < 0 {
		return errors.ValidationErrorf("--limit must not be negative, got %d", planLimit)
	}
	format, err := output.ParseFormat(planFormat)
	if err != nil {
		return err
	}
	if err := cfg.Require(config.ValidationContextPlan); err != nil {
		return err
	}

	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	if warning, err := cli.CheckIndexed(cmd.Context(), svc.Store(), svc.SnapshotRoot()); err == nil && warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", warning)
	}

	res, err := svc.Plan(cmd.Context(), planner.Request{
		CID:   planCID,
		JobID: planJobID,
		Title: planTitle,
		Limit: planLimit,
	})
	if err != nil {
		return err
	}

	lang := planLang
	if lang == "" {
		lang = cfg.Planner.Language
	}
	return output.WritePlan(cmd.OutOrStdout(), &output.PlanReport{
		SnapshotRoot: svc.SnapshotRoot(),
		Result:       res,
		Lang:         lang,
		Debug:        planDebug,
		ShowAll:      planAll,
	}, format)
}
