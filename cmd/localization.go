package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/internal/i18n"
)

// applyCommandLocalization replaces command and flag descriptions with the
// catalog text for the chosen language. Entries missing from the catalog
// keep their built-in English text.
func applyCommandLocalization() {
	for id, c := range map[string]*cobra.Command{
		"cmd.root":         rootCmd,
		"cmd.analyze":      analyzeCmd,
		"cmd.install":      installCmd,
		"cmd.uninstall":    uninstallCmd,
		"cmd.suggest":      suggestCmd,
		"cmd.devices":      devicesCmd,
		"cmd.devices_info": devicesInfoCmd,
		"cmd.devices_wait": devicesWaitCmd,
		"cmd.doctor":       doctorCmd,
		"cmd.config":       configCmd,
		"cmd.config_init":  configInitCmd,
		"cmd.config_show":  configShowCmd,
		"cmd.version":      versionCmd,
	} {
		localize(&c.Short, id+".short")
	}

	for name, id := range map[string]string{
		"config":    "flags.config",
		"lang":      "flags.lang",
		"device":    "flags.device",
		"output":    "flags.output",
		"log-level": "flags.log_level",
		"verbose":   "flags.verbose",
	} {
		if flag := rootCmd.PersistentFlags().Lookup(name); flag != nil {
			localize(&flag.Usage, id)
		}
	}
}

func localize(field *string, id string) {
	if text := i18n.T(id); text != id {
		*field = text
	}
}
