package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

var (
	analyzeOffline bool
	analyzeSDK     int
	analyzeABIs    []string
	analyzeDensity int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source>...",
	Short: "Analyse packages and show what would be installed",
	Long: `Resolve and analyse APK, APKS, APKM, XAPK and zip sources and print the
packages found, the default selection and the warnings an install would show.
Sources may be files, directories, http(s) URLs or - for standard input.

With --offline no device is contacted; --sdk, --abi and --density describe
the device the selection is made for.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var t *target
		if analyzeOffline {
			adb, err := newADB()
			if err != nil {
				return err
			}
			t = &target{adb: adb, offline: true}
			t.platform.SDK = analyzeSDK
			t.platform.ABIs = analyzeABIs
			t.platform.Density = analyzeDensity
			t.platform.Authorizer = adb.Authorizer()
		} else {
			var err error
			if t, err = connect(ctx); err != nil {
				return err
			}
		}

		defaults, err := sessionDefaults()
		if err != nil {
			return err
		}
		d := newDriver(newEngine(t, defaults))
		defer d.Close()

		if outputFormat == "text" {
			fmt.Println(i18n.T("cli.analyzing", map[string]interface{}{"Count": len(args)}))
		}
		s, err := d.do(ctx, session.Resolve{Sources: args})
		if err != nil {
			return err
		}

		if outputFormat != "text" {
			return printStructured(cmd.OutOrStdout(), s)
		}
		if f := s.State.Failure; f != nil {
			return f
		}
		printAnalysis(s)
		switch {
		case s.State.Phase == session.PhaseInstallPrepare && s.State.Prepare != session.PrepareReady:
			fmt.Printf("selection: %s\n", s.State.Prepare)
		case s.State.Phase == session.PhaseInstallPrepare:
			printPrepares(s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeOffline, "offline", false, "analyse without a device")
	analyzeCmd.Flags().IntVar(&analyzeSDK, "sdk", 0, "device SDK level for --offline")
	analyzeCmd.Flags().StringSliceVar(&analyzeABIs, "abi", nil, "device ABIs in preference order for --offline")
	analyzeCmd.Flags().IntVar(&analyzeDensity, "density", 0, "device screen density for --offline")
}
