package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wxxsfxyzm/installerx/internal/config"
	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/internal/telemetry"
	"github.com/wxxsfxyzm/installerx/internal/version"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// skipConfig marks commands that must run without a valid configuration
const skipConfig = "skip-config"

var (
	cfgFile      string
	langFlag     string
	deviceFlag   string
	outputFormat string
	logLevel     string
	verbose      bool

	appConfig *models.Config
	logger    = telemetry.Nop()
	metrics   = telemetry.NewMetrics(models.MetricsConfig{})
)

var rootCmd = &cobra.Command{
	Use:   "installerx",
	Short: "Install APK, split bundles and root modules on Android devices",
	Long: `installerx analyses APK, APKS, APKM, XAPK and zip containers, lets you
pick what to install and drives the installation on a device over adb.
Failures are classified and come with remedies that can be applied directly.`,
	Version:           version.Short(),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./installerx.yaml or ~/.config/installerx/installerx.yaml)")
	flags.StringVar(&langFlag, "lang", "", "message language, e.g. en or zh")
	flags.StringVarP(&deviceFlag, "device", "s", "", "serial of the target device")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml")
	flags.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVarP(&verbose, "verbose", "v", false, "shortcut for --log-level debug")
}

func setup(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}

	if cmd.Annotations[skipConfig] == "true" {
		def := config.Default()
		appConfig = &def
	} else {
		v := viper.New()
		flags := cmd.Flags()
		for key, flag := range map[string]string{"adb.device": "device", "lang": "lang", "log.level": "log-level"} {
			if f := flags.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		cfg, err := config.LoadWith(v, cfgFile)
		if err != nil {
			return err
		}
		if verbose && logLevel == "" {
			cfg.Log.Level = "debug"
		}
		appConfig = cfg
	}

	if err := i18n.Init(appConfig.Lang); err != nil {
		return err
	}
	applyCommandLocalization()

	l, err := telemetry.NewLogger(appConfig.Log)
	if err != nil {
		return err
	}
	logger = l
	metrics = telemetry.NewMetrics(appConfig.Metrics)
	logger.Debug("installerx %s, language %s", version.Short(), i18n.Current())
	return nil
}

func teardown() error {
	defer logger.Close()
	if appConfig == nil || appConfig.Metrics.Path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(appConfig.Metrics.Path); err != nil {
		logger.Warn("Failed to write metrics to %s: %v", appConfig.Metrics.Path, err)
	}
	return nil
}
