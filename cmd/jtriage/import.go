package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/history"
	"github.com/rohankatakam/jobtriage/internal/kb"
	"github.com/rohankatakam/jobtriage/internal/models"
)

var (
	historyPattern  string
	historyRedact   bool
	historyNoRedact bool
	codesFile       string
)

var importHistoriesCmd = &cobra.Command{
	Use:   "import-histories <snapshot> <dir|file>",
	Short: "Import past incident notes as case cards",
	Long: `Split troubleshooting notes into case cards (one per blank-line separated
chunk) and store them for similar-case lookup. A directory imports every
*.txt then *.md file, or the files matching --pattern.

Cards whose content is already stored are left unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: runImportHistories,
}

var importCodesCmd = &cobra.Command{
	Use:   "import-codes <snapshot>",
	Short: "Import Papyrus/DocExec message code definitions",
	Long: `Extract message code definitions from the messages manual and store them
so explain can decode the codes found in logs.

Without --file the first PDF under <snapshot>/refs/papyrus is used. Plain
text manuals are accepted too.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCodes,
}

func init() {
	importHistoriesCmd.Flags().StringVar(&historyPattern, "pattern", "", "glob of files to import from a directory (default *.txt and *.md)")
	importHistoriesCmd.Flags().BoolVar(&historyRedact, "redact", false, "redact personal data (default redaction.enabled)")
	importHistoriesCmd.Flags().BoolVar(&historyNoRedact, "no-redact", false, "keep personal data even if redaction is enabled")
	importCodesCmd.Flags().StringVar(&codesFile, "file", "", "manual to import (PDF or text)")
}

func runImportHistories(cmd *cobra.Command, args []string) error {
	redactPII := cfg.Redaction.Enabled || historyRedact
	if historyNoRedact {
		redactPII = false
	}

	src := args[1]
	info, err := os.Stat(src)
	if err != nil {
		return errors.FileSystemErrorf(err, "history source %s", src)
	}
	var cards []models.CaseCard
	if info.IsDir() {
		cards, err = history.ParseDir(src, historyPattern, redactPII)
	} else {
		cards, err = history.ParseFile(src, redactPII)
	}
	if err != nil {
		return err
	}

	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := history.Import(cmd.Context(), svc.Store(), cards)
	if err != nil {
		return errors.DatabaseError(err, "import case cards")
	}
	logger.WithField("cards", len(cards)).Debug("history import finished")

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d case card(s) from %s: %d new, %d updated, %d unchanged\n",
		len(cards), src, stats.Inserted, stats.Updated, stats.Unchanged)
	if redactPII {
		fmt.Fprintln(cmd.OutOrStdout(), "Personal data was redacted")
	}
	return nil
}

func runImportCodes(cmd *cobra.Command, args []string) error {
	svc, err := openService(args[0])
	if err != nil {
		return err
	}
	defer svc.Close()

	src, err := kb.FindSource(svc.SnapshotRoot(), codesFile)
	if err != nil {
		return err
	}
	entries, err := kb.ParseFile(src)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.ValidationErrorf("no message code definitions found in %s", src)
	}

	n, err := kb.Import(cmd.Context(), svc.Store(), entries, src)
	if err != nil {
		return errors.DatabaseError(err, "import message codes")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d message code(s) from %s\n", n, src)
	return nil
}
