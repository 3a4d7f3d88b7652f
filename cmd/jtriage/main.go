package main

import (
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/cli"
	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/logging"
	"github.com/rohankatakam/jobtriage/internal/storage"
	"github.com/rohankatakam/jobtriage/internal/triage"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	dbPath  string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if verbose {
			var e *errors.Error
			if goerrors.As(err, &e) {
				fmt.Fprintln(os.Stderr, e.DetailedString())
			}
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jtriage",
	Short: "jtriage - triage failed print-shop batch jobs",
	Long: `jtriage indexes a snapshot of a legacy Papyrus/DocExec print-processing
environment, explains failed job logs against its dependency graph and plans
the set of files a change request has to touch.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.WarnLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			if cfgFile != "" {
				return errors.ConfigErrorf("load config %s: %v", cfgFile, err)
			}
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		logCfg := logging.DefaultConfig(verbose)
		if !verbose && cfg.Logging.Level != "" {
			logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
		}
		logCfg.OutputFile = cfg.Logging.File
		logCfg.JSONFormat = cfg.Logging.JSON
		if err := logging.Initialize(logCfg); err != nil {
			logger.WithError(err).Warn("Failed to initialize log file, logging to stderr only")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .jtriage/config.yaml, ./config.yaml or ~/.jtriage/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: <snapshot>/.jtriage/jtriage.db)")

	rootCmd.SetVersionTemplate(`jtriage {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(importHistoriesCmd)
	rootCmd.AddCommand(importCodesCmd)
	rootCmd.AddCommand(exportNeo4jCmd)
	rootCmd.AddCommand(neo4jPasswordCmd)
	rootCmd.AddCommand(serveMCPCmd)
}

// openService opens the snapshot's database for commands that read it.
func openService(snapshot string) (*triage.Service, error) {
	if cfg.Storage.Type == "" || cfg.Storage.Type == storage.DialectSQLite {
		root, err := filepath.Abs(snapshot)
		if err == nil {
			path := cfg.DBPath(root)
			if dbPath != "" {
				path = dbPath
			}
			if info, err := os.Stat(root); err == nil && info.IsDir() {
				if _, err := os.Stat(path); os.IsNotExist(err) {
					return nil, errors.Wrap(cli.FormatDatabaseNotFound(snapshot, path), errors.KindValidation, errors.SeverityHigh, "snapshot not scanned")
				}
			}
		}
	}
	return triage.Open(cfg, snapshot, dbPath, logger)
}
