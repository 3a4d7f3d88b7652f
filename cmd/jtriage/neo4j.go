package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/graph"
)

var exportNeo4jCmd = &cobra.Command{
	Use:   "export-neo4j <snapshot>",
	Short: "Copy the dependency graph into Neo4j",
	Long: `Export every node and edge of the snapshot graph to Neo4j with MERGE, so
repeated exports are idempotent.

Connection settings come from neo4j.* in the config file or NEO4J_URI,
NEO4J_USER and NEO4J_DATABASE. The password is read from NEO4J_PASSWORD,
the config file or the OS keychain (see 'jtriage neo4j-password set').`,
	Args: cobra.ExactArgs(1),
	RunE: runExportNeo4j,
}

var neo4jPasswordCmd = &cobra.Command{
	Use:   "neo4j-password",
	Short: "Manage the Neo4j password stored in the OS keychain",
}

var neo4jPasswordSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Prompt for the Neo4j password and store it in the keychain",
	Args:  cobra.NoArgs,
	RunE:  runNeo4jPasswordSet,
}

var neo4jPasswordDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the Neo4j password from the keychain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewKeyringManager().DeleteNeo4jPassword(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Neo4j password removed from keychain")
		return nil
	},
}

func init() {
	neo4jPasswordCmd.AddCommand(neo4jPasswordSetCmd)
	neo4jPasswordCmd.AddCommand(neo4jPasswordDeleteCmd)
}

func runExportNeo4j(cmd *cobra.Command, args []string) error {
	if cfg.Neo4j.Password == "" {
		km := config.NewKeyringManager()
		if km.IsAvailable() {
			if pw, err := km.GetNeo4jPassword(); err == nil && pw != "" {
				cfg.Neo4j.Password = pw
			}
		}
	}
	if err := cfg.Require(config.ValidationContextExport); err != nil {
		return err
	}

	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	logger.WithField("uri", cfg.Neo4j.URI).Info("Connecting to Neo4j")
	exporter, err := graph.NewNeo4jExporter(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database, cfg.Neo4j.BatchSize)
	if err != nil {
		return errors.ExternalError(err, "connect to Neo4j")
	}
	defer exporter.Close(ctx)

	stats, err := exporter.Export(ctx, svc.Store())
	if err != nil {
		return errors.ExternalError(err, "export graph to Neo4j")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d node(s) and %d edge(s) to %s in %d batch(es) (%s)\n",
		stats.Nodes, stats.Edges, cfg.Neo4j.URI, stats.Batches, stats.Duration.Round(1e6))
	return nil
}

func runNeo4jPasswordSet(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return errors.ConfigErrorf("OS keychain is not available, set NEO4J_PASSWORD instead")
	}

	fd := int(os.Stdin.Fd())
	var password string
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Neo4j password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return errors.FileSystemError(err, "read password")
		}
		password = string(b)
	} else {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return errors.ValidationError("no password given on stdin")
		}
		password = line
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return errors.ValidationError("password must not be empty")
	}

	if err := km.SetNeo4jPassword(password); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Neo4j password %s stored in keychain\n", config.MaskSecret(password))
	return nil
}
