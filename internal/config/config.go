package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

var defaultConfig = models.Config{
	Log: models.LogConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	},
	ADB: models.ADBConfig{
		Path: "adb",
	},
	Installer: models.InstallerConfig{
		// adb shell runs with the shell uid, the same identity Shizuku grants
		Authorizer:          "shizuku",
		Flags:               []string{"replace-existing"},
		TargetUser:          0,
		EnableModuleInstall: false,
		ModuleBackend:       "magisk",
	},
	Metrics: models.MetricsConfig{
		Enabled: false,
	},
}

// Default returns a copy of the built-in configuration
func Default() models.Config {
	cfg := defaultConfig
	cfg.Installer.Flags = append([]string(nil), defaultConfig.Installer.Flags...)
	cfg.Cache.Dir = defaultCacheDir()
	return cfg
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "installerx")
	}
	return filepath.Join(os.TempDir(), "installerx")
}

// Load loads configuration from file and environment
func Load(configPath string) (*models.Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith loads configuration using the given viper instance
func LoadWith(v *viper.Viper, configPath string) (*models.Config, error) {
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.output", def.Log.Output)
	v.SetDefault("adb.path", def.ADB.Path)
	v.SetDefault("adb.device", def.ADB.Device)
	v.SetDefault("installer.authorizer", def.Installer.Authorizer)
	v.SetDefault("installer.flags", def.Installer.Flags)
	v.SetDefault("installer.installer_package", def.Installer.InstallerPackage)
	v.SetDefault("installer.target_user", def.Installer.TargetUser)
	v.SetDefault("installer.confirm_before_commit", def.Installer.ConfirmBeforeCommit)
	v.SetDefault("installer.enable_module_install", def.Installer.EnableModuleInstall)
	v.SetDefault("installer.module_backend", def.Installer.ModuleBackend)
	v.SetDefault("installer.aapt_path", def.Installer.AAPTPath)
	v.SetDefault("installer.blacklist", []string{})
	v.SetDefault("installer.shared_user_blacklist", []string{})
	v.SetDefault("installer.shared_user_exemptions", []string{})
	v.SetDefault("cache.dir", def.Cache.Dir)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.path", def.Metrics.Path)
	v.SetDefault("lang", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("installerx")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "installerx"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is not an error, we'll use defaults
	}

	v.SetEnvPrefix("INSTALLERX")
	v.AutomaticEnv()

	var config models.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Cache.Dir == "" {
		config.Cache.Dir = def.Cache.Dir
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks field constraints and flag names
func Validate(cfg *models.Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := models.ParseInstallFlags(cfg.Installer.Flags); err != nil {
		return fmt.Errorf("invalid configuration: installer.flags: %w", err)
	}
	if _, err := models.ParseAuthorizer(cfg.Installer.Authorizer); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SaveTemplate saves a configuration template
func SaveTemplate(path string) error {
	templateContent := `# installerx configuration file

log:
  # trace, debug, info, warn, error
  level: info
  # console or json
  format: console
  # stderr, stdout or a file path
  output: stderr

adb:
  path: adb
  # serial of the device to use, empty = the only connected device
  device: ""

installer:
  # none, root, shizuku, dhizuku, customize
  authorizer: shizuku

  # install flags applied to every new session, see 'installerx install --help'
  flags:
    - replace-existing

  # package name reported as the installer, empty = shell default
  installer_package: ""

  target_user: 0

  # create the device session, then wait for approval before committing
  confirm_before_commit: false

  # allow flashing Magisk/KernelSU/APatch modules
  enable_module_install: false
  # magisk, ksu or apatch
  module_backend: magisk

  # aapt2 or aapt used when the built-in manifest parser fails, empty = PATH
  aapt_path: ""

  # packages that may never be installed
  blacklist: []
  # shared user ids that may never be installed, unless the package is exempt
  shared_user_blacklist: []
  shared_user_exemptions: []

cache:
  # staging directory for downloaded and extracted parts
  dir: ""

metrics:
  enabled: false
  # prometheus textfile written when the command exits
  path: ""
`

	return os.WriteFile(path, []byte(templateContent), 0644)
}
