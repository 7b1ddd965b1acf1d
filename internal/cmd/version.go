package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// No config is needed to print the version.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"version":    versionInfo.Version,
				"commit":     versionInfo.Commit,
				"build_date": versionInfo.BuildDate,
				"go":         runtime.Version(),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ossbrowse %s (commit %s, built %s, %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate, runtime.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
