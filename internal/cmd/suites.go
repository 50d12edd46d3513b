package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suitesCmd = &cobra.Command{
	Use:   "suites",
	Short: "List test suites",
	Long: `List the test suites of the database: suites already stored in it,
then suites declared in the schemas directory that have not been used yet.

Examples:
  perfdb suites
  perfdb suites --schemas-dir ./schemas`,
	Args:    cobra.NoArgs,
	GroupID: groupData,
	RunE:    runSuites,
}

func init() {
	rootCmd.AddCommand(suitesCmd)
}

func runSuites(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	names, err := e.handle.Suites().Names(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "%sno test suites%s\n", colorDim, colorReset)
		return nil
	}
	for _, name := range names {
		if _, ok := e.handle.Catalog().External(name); ok {
			fmt.Fprintf(out, "%s %s(schema file)%s\n", name, colorDim, colorReset)
			continue
		}
		fmt.Fprintln(out, name)
	}
	return nil
}
