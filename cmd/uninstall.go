package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

var uninstallKeepData bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <package>",
	Short: "Uninstall a package from the device",
	Long: `Uninstall a package for the configured target user. With --keep-data the
app data and cache directories stay on the device.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		t, err := connect(ctx)
		if err != nil {
			return err
		}
		defaults, err := sessionDefaults()
		if err != nil {
			return err
		}
		d := newDriver(newEngine(t, defaults))
		defer d.Close()

		if err := d.engine.Dispatch(ctx, session.UninstallReady{PackageName: args[0]}); err != nil {
			return err
		}
		if uninstallKeepData {
			if err := d.engine.Dispatch(ctx, session.ToggleUninstallFlag{Flag: models.DeleteKeepData, On: true}); err != nil {
				return err
			}
		}
		s, err := d.do(ctx, session.Uninstall{})
		if err != nil {
			return err
		}

		if outputFormat != "text" {
			if err := printStructured(cmd.OutOrStdout(), s); err != nil {
				return err
			}
		}
		switch s.State.Phase {
		case session.PhaseUninstallSuccess:
			if outputFormat == "text" {
				fmt.Printf("✓ %s uninstalled\n", args[0])
			}
			return nil
		case session.PhaseUninstallFailed:
			if outputFormat == "text" {
				printSuggestions(s)
			}
			return s.State.Failure
		}
		return fmt.Errorf("uninstall ended in %s", s.State)
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)

	uninstallCmd.Flags().BoolVarP(&uninstallKeepData, "keep-data", "k", false, "keep the app data")
}
