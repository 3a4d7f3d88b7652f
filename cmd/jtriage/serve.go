package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/mcp"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp <snapshot>",
	Short: "Serve explain_log and plan_bundle to editor agents over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout for one snapshot.

Tools:
  explain_log   explain a failed job log (same report as 'jtriage explain')
  plan_bundle   plan the file bundle for a change request

Diagnostics go to the log file, never to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runServeMCP,
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcp.Serve(ctx, svc, Version, os.Stdin, os.Stdout)
}
