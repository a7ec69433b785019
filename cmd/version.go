package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/internal/version"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Long:        `Display the version, commit and build platform of installerx.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "text" {
			return printStructured(cmd.OutOrStdout(), version.Get())
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
