package models

// Config represents the application configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log" json:"log" yaml:"log"`
	ADB       ADBConfig       `mapstructure:"adb" json:"adb" yaml:"adb"`
	Installer InstallerConfig `mapstructure:"installer" json:"installer" yaml:"installer"`
	Cache     CacheConfig     `mapstructure:"cache" json:"cache" yaml:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Lang      string          `mapstructure:"lang" json:"lang,omitempty" yaml:"lang,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" json:"format" yaml:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output" json:"output" yaml:"output" validate:"required"`
}

// ADBConfig contains adb settings
type ADBConfig struct {
	Path   string `mapstructure:"path" json:"path" yaml:"path" validate:"required"`
	Device string `mapstructure:"device" json:"device,omitempty" yaml:"device,omitempty"`
}

// InstallerConfig contains the defaults a new session starts from
type InstallerConfig struct {
	Authorizer           string   `mapstructure:"authorizer" json:"authorizer" yaml:"authorizer" validate:"oneof=none root shizuku dhizuku customize"`
	Flags                []string `mapstructure:"flags" json:"flags" yaml:"flags"`
	InstallerPackage     string   `mapstructure:"installer_package" json:"installer_package,omitempty" yaml:"installer_package,omitempty"`
	TargetUser           int      `mapstructure:"target_user" json:"target_user" yaml:"target_user" validate:"gte=0"`
	ConfirmBeforeCommit  bool     `mapstructure:"confirm_before_commit" json:"confirm_before_commit" yaml:"confirm_before_commit"`
	EnableModuleInstall  bool     `mapstructure:"enable_module_install" json:"enable_module_install" yaml:"enable_module_install"`
	ModuleBackend        string   `mapstructure:"module_backend" json:"module_backend" yaml:"module_backend" validate:"oneof=magisk ksu apatch"`
	AAPTPath             string   `mapstructure:"aapt_path" json:"aapt_path,omitempty" yaml:"aapt_path,omitempty"`
	Blacklist            []string `mapstructure:"blacklist" json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	SharedUserBlacklist  []string `mapstructure:"shared_user_blacklist" json:"shared_user_blacklist,omitempty" yaml:"shared_user_blacklist,omitempty"`
	SharedUserExemptions []string `mapstructure:"shared_user_exemptions" json:"shared_user_exemptions,omitempty" yaml:"shared_user_exemptions,omitempty"`
}

// CacheConfig contains staging directory settings
type CacheConfig struct {
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" json:"path,omitempty" yaml:"path,omitempty"`
}
