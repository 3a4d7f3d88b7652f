package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/cli"
	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/output"
	"github.com/rohankatakam/jobtriage/internal/triage"
)

var (
	explainProc      string
	explainDebug     bool
	explainFormat    string
	explainNoPersist bool
)

var explainCmd = &cobra.Command{
	Use:   "explain <snapshot> <log>",
	Short: "Explain a failed job log",
	Long: `Parse a job log, match it to the failing node in the dependency graph and
print a context pack: decoded message codes, external signals, graph
neighbours, ranked hypotheses, similar past cases and the related files.

The analysis is stored as an incident keyed by the log path unless
--no-persist is given.`,
	Example: `  jtriage explain ./snapshot ./logs/wccuds1.log
  jtriage explain ./snapshot ./logs/run.log --proc wccuds1 --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().StringVar(&explainProc, "proc", "", "force the match to this proc name")
	explainCmd.Flags().BoolVar(&explainDebug, "debug", false, "list every scored candidate")
	explainCmd.Flags().StringVarP(&explainFormat, "format", "f", "", "output format: text or json (default $JTRIAGE_OUTPUT or text)")
	explainCmd.Flags().BoolVar(&explainNoPersist, "no-persist", false, "do not save the analysis as an incident")
}

func runExplain(cmd *cobra.Command, args []string) error {
	format := output.GetDefaultFormat()
	if explainFormat != "" {
		f, err := output.ParseFormat(explainFormat)
		if err != nil {
			return err
		}
		format = f
	}
	formatter, err := output.NewFormatter(format, output.DetectColor(os.Stdout))
	if err != nil {
		return err
	}
	if err := cfg.Require(config.ValidationContextExplain); err != nil {
		return err
	}

	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Explain(cmd.Context(), triage.ExplainRequest{
		LogPath: args[1],
		Proc:    explainProc,
		Debug:   explainDebug,
		Persist: !explainNoPersist,
	})
	if err != nil {
		return err
	}
	if explainProc != "" && !report.Match.Found() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", cli.HandleProcNotFound(cmd.Context(), svc.Store(), explainProc))
	}
	return formatter.Format(report, cmd.OutOrStdout())
}
