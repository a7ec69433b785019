package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

var (
	suggestUninstall    bool
	suggestSDK          int
	suggestManufacturer string
	suggestFlags        []string
)

type suggestReport struct {
	Failure     *ierrors.Failure     `json:"failure" yaml:"failure"`
	Suggestions []ierrors.Suggestion `json:"suggestions" yaml:"suggestions"`
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <package manager output>",
	Short: "Classify an install failure and list its remedies",
	Long: `Classify the output of pm install, adb install or pm uninstall, for example
"Failure [INSTALL_FAILED_VERSION_DOWNGRADE]", and list the remedies that apply
on the described device. No device is contacted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authorizer, err := models.ParseAuthorizer(appConfig.Installer.Authorizer)
		if err != nil {
			return err
		}
		flags, err := models.ParseInstallFlags(suggestFlags)
		if err != nil {
			return err
		}

		output := strings.Join(args, " ")
		failure := ierrors.Classify(output)
		if suggestUninstall {
			failure = ierrors.ClassifyUninstall(output)
		}
		ctx := ierrors.SuggestionContext{
			Platform: models.PlatformContext{
				SDK:          suggestSDK,
				Manufacturer: models.NormalizeManufacturer(suggestManufacturer),
				Authorizer:   authorizer,
			},
			Flags: flags,
		}
		report := suggestReport{Failure: failure, Suggestions: ierrors.DeriveSuggestions(failure, ctx)}

		if outputFormat != "text" {
			return printStructured(cmd.OutOrStdout(), report)
		}
		fmt.Print(failure.FormatDetailed())
		if len(report.Suggestions) == 0 {
			fmt.Println(i18n.T("cli.no_suggestions"))
			return nil
		}
		fmt.Println(i18n.T("cli.suggestions"))
		for _, s := range report.Suggestions {
			fmt.Printf("  %-32s %s\n", s.ID, i18n.T(s.Label))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().BoolVar(&suggestUninstall, "uninstall", false, "classify as uninstall output")
	suggestCmd.Flags().IntVar(&suggestSDK, "sdk", 0, "device SDK level")
	suggestCmd.Flags().StringVar(&suggestManufacturer, "manufacturer", "", "device manufacturer")
	suggestCmd.Flags().StringSliceVar(&suggestFlags, "flags", nil, "install flags already in effect")
}
