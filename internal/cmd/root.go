package cmd

import (
	"github.com/spf13/cobra"
)

// Command groups shown in help output.
const (
	groupData  = "data"
	groupSetup = "setup"
)

// Persistent flags shared by every command.
var (
	flagConfig     string
	flagDatabase   string
	flagSchemasDir string
	flagLogLevel   string
	flagEcho       bool
	flagNoColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "perfdb",
	Short: "performance test result database",
	Long: `perfdb - performance test result database
  - one database holds any number of test suites
  - suites are declared in YAML schema files and created on first use`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			disableColors()
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupData, Title: "Data Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.config/perfdb/config.yaml)")
	pf.StringVarP(&flagDatabase, "database", "d", "", "connection path (file, sqlite:// or postgres:// URL)")
	pf.StringVar(&flagSchemasDir, "schemas-dir", "", "directory of suite schema files")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagEcho, "echo", false, "log every SQL statement")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
}
