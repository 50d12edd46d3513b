package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runger/perfdb/internal/sanitize"
	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/suitedb"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per test suite",
	Long: `Show how many machines, runs, tests and samples each test suite holds.

Every suite is opened, so suites declared only in schema files get their
tables created.

Examples:
  perfdb stats`,
	Args:    cobra.NoArgs,
	GroupID: groupData,
	RunE:    runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsEntities = []suitedb.Entity{
	suitedb.EntityMachine, suitedb.EntityRun, suitedb.EntityTest, suitedb.EntitySample,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%sDatabase:%s %s\n", colorBold, colorReset, sanitize.Path(e.handle.Path()))
	if target, err := sqlstore.ParsePath(e.handle.Path()); err == nil && target.File != "" {
		if info, err := os.Stat(target.File); err == nil {
			fmt.Fprintf(out, "%sSize:%s     %s\n", colorBold, colorReset, humanize.Bytes(uint64(info.Size())))
		}
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SUITE\tMACHINES\tRUNS\tTESTS\tSAMPLES\t")

	totals := make([]int64, len(statsEntities))
	err = e.handle.Suites().ForEach(ctx, func(name string, a *suitedb.Accessor) error {
		cols := []string{name}
		for i, entity := range statsEntities {
			n, err := a.Count(ctx, entity)
			if err != nil {
				return err
			}
			totals[i] += n
			cols = append(cols, humanize.Comma(n))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
		return nil
	})
	if err != nil {
		return err
	}

	cols := []string{"total"}
	for _, n := range totals {
		cols = append(cols, humanize.Comma(n))
	}
	fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
	if err := tw.Flush(); err != nil {
		return err
	}

	// Keep the catalog rows of suites whose tables were just created.
	return e.handle.Commit()
}
