package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/perfdb/internal/testsuite"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Inspect test suite schema files",
	GroupID: groupSetup,
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check suite schema files without opening a database",
	Long: `Parse and validate suite schema files.

Each file is reported as ok or with the reason it would be skipped when
the schemas directory is loaded.

Examples:
  perfdb schema validate schemas/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSchemaValidate,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <suite>",
	Short: "Print the definition of a test suite as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd, schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}

var errInvalidSchemas = errors.New("some schema files are invalid")

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, file := range args {
		def, err := testsuite.LoadFile(file)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%sFAIL%s %s: %v\n", colorRed, colorReset, file, err)
			continue
		}
		fmt.Fprintf(out, "%sok%s %s: suite %s, %d metrics\n", colorGreen, colorReset, file, def.Name, len(def.Metrics))
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalidSchemas, failed, len(args))
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
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
	data, err := testsuite.Marshal(a.Definition())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
