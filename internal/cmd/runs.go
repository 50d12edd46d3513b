package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/suitedb"
	"github.com/runger/perfdb/internal/testsuite"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs <suite>",
	Short: "List the most recent runs of a test suite",
	Long: `List runs of a test suite, newest start time first.

Examples:
  perfdb runs nts
  perfdb runs nts --limit 50`,
	Args:    cobra.ExactArgs(1),
	GroupID: groupData,
	RunE:    runRuns,
}

var runCmd = &cobra.Command{
	Use:   "run <suite> <id>",
	Short: "Show one run and its samples",
	Long: `Show one run of a test suite with every stored sample.

Examples:
  perfdb run nts 42`,
	Args:    cobra.ExactArgs(2),
	GroupID: groupData,
	RunE:    runShowRun,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs (0 = all)")
	rootCmd.AddCommand(runsCmd, runCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	a, err := e.handle.Suites().GetOrFail(ctx, args[0])
	if err != nil {
		return err
	}
	runs, err := a.Runs(ctx, runsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintf(out, "%sno runs%s\n", colorDim, colorReset)
		return nil
	}

	def := a.Definition()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"ID", "START", "DURATION"}
	for _, f := range def.RunFields {
		header = append(header, strings.ToUpper(f.Name))
	}
	header = append(header, "IMPORTED")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range runs {
		cols := []string{
			strconv.FormatInt(r.ID, 10),
			r.StartTime.Format(report.TimeLayout),
			r.EndTime.Sub(r.StartTime).String(),
		}
		for _, f := range def.RunFields {
			cols = append(cols, orDash(r.Fields[f.Name]))
		}
		imported := "-"
		if !r.ImportedAt.IsZero() {
			imported = humanize.Time(r.ImportedAt)
		}
		cols = append(cols, imported)
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

func runShowRun(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[1])
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	a, err := e.handle.Suites().GetOrFail(ctx, args[0])
	if err != nil {
		return err
	}
	run, err := a.Run(ctx, id)
	if err != nil {
		return err
	}
	samples, err := a.Samples(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printRunHeader(out, run)
	fmt.Fprintln(out)

	def := a.Definition()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"TEST"}
	for _, f := range def.Metrics {
		header = append(header, strings.ToUpper(f.Name))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, s := range samples {
		cols := []string{s.TestName}
		for _, f := range def.Metrics {
			cols = append(cols, formatValue(s.Values[f.Name]))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

func printRunHeader(out io.Writer, run *suitedb.Run) {
	fmt.Fprintf(out, "%sRun %d%s %s\n", colorBold, run.ID, colorReset, run.UUID)
	fmt.Fprintf(out, "  start:    %s\n", run.StartTime.Format(report.TimeLayout))
	fmt.Fprintf(out, "  end:      %s\n", run.EndTime.Format(report.TimeLayout))
	if run.ImportedFrom != "" {
		fmt.Fprintf(out, "  from:     %s\n", run.ImportedFrom)
	}
	fmt.Fprintf(out, "  hash:     %s\n", run.ContentHash)
	for name, value := range run.Fields {
		fmt.Fprintf(out, "  %s%s%s: %s\n", colorCyan, name, colorReset, value)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case testsuite.StatusKind:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
