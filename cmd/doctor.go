package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/internal/config"
	"github.com/wxxsfxyzm/installerx/pkg/system"
)

// minStagingSpace is what doctor expects to be free for staging bundles
const minStagingSpace = 512 << 20

var doctorSkipDevice bool

type doctorCheck struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	// Warning marks a failed check that does not block installs
	Warning bool   `json:"warning,omitempty" yaml:"warning,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Hint    string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

type doctorReport struct {
	Checks []doctorCheck       `json:"checks" yaml:"checks"`
	Tools  []system.ToolStatus `json:"tools" yaml:"tools"`
	Disk   *system.DiskUsage   `json:"disk,omitempty" yaml:"disk,omitempty"`
}

func (r doctorReport) failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Passed && !c.Warning {
			n++
		}
	}
	return n
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the host and device are ready",
	Long: `Check the configuration, the tools installerx runs (adb, aapt2, aapt),
the free space in the cache directory and the device connection.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var report doctorReport

		cfg, err := config.Load(cfgFile)
		if err != nil {
			report.Checks = append(report.Checks, doctorCheck{
				Name:   "config",
				Detail: err.Error(),
				Hint:   "run 'installerx config init' for a commented template",
			})
		} else {
			if deviceFlag != "" {
				cfg.ADB.Device = deviceFlag
			}
			appConfig = cfg
			report.Checks = append(report.Checks, doctorCheck{Name: "config", Passed: true})
		}

		checker := system.NewChecker(map[string]string{
			"adb":   appConfig.ADB.Path,
			"aapt2": appConfig.Installer.AAPTPath,
		})
		report.Tools = checker.CheckAll(ctx)
		for _, st := range report.Tools {
			c := doctorCheck{
				Name:    "tool " + st.Name,
				Passed:  st.Available,
				Warning: !st.Required,
				Detail:  st.Version,
			}
			if !st.Available {
				c.Detail = st.Error
				c.Hint = st.Tool.Hint
			}
			report.Checks = append(report.Checks, c)
		}

		dir := appConfig.Cache.Dir
		if usage, err := system.DiskUsageOf(dir); err != nil {
			report.Checks = append(report.Checks, doctorCheck{Name: "cache dir", Detail: err.Error()})
		} else {
			report.Disk = &usage
			c := doctorCheck{
				Name:   "cache dir",
				Passed: usage.Available >= minStagingSpace,
				Detail: fmt.Sprintf("%s available at %s (%.1f%% used)", system.FormatBytes(usage.Available), usage.Path, usage.UsedPercent()),
			}
			if !c.Passed {
				c.Hint = "free some space or point cache.dir elsewhere"
			}
			report.Checks = append(report.Checks, c)
		}

		if !doctorSkipDevice {
			report.Checks = append(report.Checks, checkDevice(ctx))
		}

		if outputFormat != "text" {
			if err := printStructured(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			printDoctor(cmd, report)
		}
		if n := report.failed(); n > 0 {
			return fmt.Errorf("%d check(s) failed", n)
		}
		return nil
	},
}

func checkDevice(ctx context.Context) doctorCheck {
	c := doctorCheck{Name: "device"}
	adb, err := newADB()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	device, err := adb.SelectDevice(ctx)
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "enable USB debugging and accept the authorization prompt, or pass --device"
		return c
	}
	platform, err := adb.Platform(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("%s %s %s, Android SDK %d", device.ID, platform.Manufacturer, platform.Model, platform.SDK)
	return c
}

func printDoctor(cmd *cobra.Command, report doctorReport) {
	w := cmd.OutOrStdout()
	for _, c := range report.Checks {
		mark := "✓"
		switch {
		case c.Passed:
		case c.Warning:
			mark = "!"
		default:
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s", mark, c.Name)
		if c.Detail != "" {
			line += ": " + c.Detail
		}
		fmt.Fprintln(w, line)
		if !c.Passed && c.Hint != "" {
			fmt.Fprintf(w, "    %s\n", c.Hint)
		}
	}
	if report.failed() == 0 {
		fmt.Fprintln(w, "All required checks passed.")
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipDevice, "no-device", false, "skip the device connection check")
}
