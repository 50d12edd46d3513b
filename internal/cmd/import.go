// Package cmd implements the perfdb command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/suitedb"
)

var (
	importStrict  bool
	importDerived bool
	importMerge   bool
	importDryRun  bool
)

var importCmd = &cobra.Command{
	Use:   "import <suite> <report.json>...",
	Short: "Import result reports into a test suite",
	Long: `Import one or more JSON result reports into a test suite.

All reports are imported in a single transaction: if any report fails,
none are kept. A report identical to one already imported is reported as
REPEAT_OF_EXISTING_RUN and not stored again.

Examples:
  perfdb import nts report.json
  perfdb import nts --merge part1.json part2.json
  perfdb import nts --derived --dry-run report.json`,
	Args:    cobra.MinimumNArgs(2),
	GroupID: groupData,
	RunE:    runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "reject samples for metrics the suite does not define")
	importCmd.Flags().BoolVar(&importDerived, "derived", false, "store one derived sample per test")
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "merge all reports into a single run")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "import and roll back")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	suite, files := args[0], args[1:]

	reports := make([]*report.Report, 0, len(files))
	for _, f := range files {
		rep, err := report.LoadFile(f)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		reports = append(reports, rep)
	}
	if importMerge {
		merged, err := report.Merge(reports)
		if err != nil {
			return err
		}
		reports = []*report.Report{merged}
		files = []string{files[0]}
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := suitedb.ImportOptions{
		Strict:              importStrict || e.cfg.Import.Strict,
		ComputeDerivedValue: importDerived || e.cfg.Import.ComputeDerivedValue,
	}

	out := cmd.OutOrStdout()
	for i, rep := range reports {
		opts.ImportedFrom = files[i]
		run, status, err := e.handle.ImportIntoSchema(ctx, rep, suite, opts)
		if err != nil {
			_ = e.handle.Rollback()
			return fmt.Errorf("%s: %w", files[i], err)
		}
		color := colorGreen
		if status == suitedb.RepeatOfExistingRun {
			color = colorYellow
		}
		fmt.Fprintf(out, "%s: run %d %s%s%s\n", files[i], run.ID, color, status, colorReset)
	}

	if importDryRun {
		fmt.Fprintf(out, "%sdry run: nothing was stored%s\n", colorDim, colorReset)
		return e.handle.Rollback()
	}
	return e.handle.Commit()
}
