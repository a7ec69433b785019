package errors

import (
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// InstallerPackageMIUI is the installer identity that passes the HyperOS
// isolation check
const InstallerPackageMIUI = "com.miui.packageinstaller"

// Followup is what the session does after a remedy is applied
type Followup int

const (
	FollowNone Followup = iota
	FollowInstall
	FollowClose
)

func (f Followup) String() string {
	switch f {
	case FollowInstall:
		return "install"
	case FollowClose:
		return "close"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Followup) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Remedy describes a session mutation. It is data only: the session
// applies it when the caller dispatches the suggestion.
type Remedy struct {
	SetFlag           models.InstallFlags `json:"set_flag,omitempty" yaml:"set_flag,omitempty"`
	InstallerPackage  string              `json:"installer_package,omitempty" yaml:"installer_package,omitempty"`
	BypassBlacklist   bool                `json:"bypass_blacklist,omitempty" yaml:"bypass_blacklist,omitempty"`
	UninstallAndRetry bool                `json:"uninstall_and_retry,omitempty" yaml:"uninstall_and_retry,omitempty"`
	KeepData          bool                `json:"keep_data,omitempty" yaml:"keep_data,omitempty"`
	OpenSettings      string              `json:"open_settings,omitempty" yaml:"open_settings,omitempty"`
	Then              Followup            `json:"then" yaml:"then"`
}

// Suggestion is one remediation offered for a failure. Label is a message id.
type Suggestion struct {
	ID     string `json:"id" yaml:"id"`
	Label  string `json:"label" yaml:"label"`
	Remedy Remedy `json:"remedy" yaml:"remedy"`
}

// SuggestionContext is what the gating predicates may look at. Flags are
// the install flags already in effect; a remedy setting one of them is
// not offered again.
type SuggestionContext struct {
	Platform models.PlatformContext
	Flags    models.InstallFlags
}

type suggestionRule struct {
	types      []FailureType
	applicable func(SuggestionContext) bool
	suggestion Suggestion
}

func always(SuggestionContext) bool { return true }

func privileged(ctx SuggestionContext) bool {
	return ctx.Platform.Authorizer == models.AuthorizerRoot || ctx.Platform.Authorizer == models.AuthorizerShizuku
}

// rules is ordered by priority
var rules = []suggestionRule{
	{
		types:      []FailureType{TestOnlyRejected},
		applicable: always,
		suggestion: Suggestion{
			ID:     "allow_test",
			Label:  "suggestion.allow_test",
			Remedy: Remedy{SetFlag: models.InstallAllowTest, Then: FollowInstall},
		},
	},
	{
		types:      []FailureType{UpdateIncompatible, VersionDowngrade, ConflictingProvider},
		applicable: always,
		suggestion: Suggestion{
			ID:     "uninstall_and_retry",
			Label:  "suggestion.uninstall_and_retry",
			Remedy: Remedy{UninstallAndRetry: true, KeepData: false},
		},
	},
	{
		types: []FailureType{VersionDowngrade},
		applicable: func(ctx SuggestionContext) bool {
			p := ctx.Platform
			if p.SDK < models.SDKUpsideDownCake {
				return false
			}
			if p.SDK >= models.SDKVanillaIceCream && p.IsManufacturer(models.ManufacturerSamsung, models.ManufacturerRealme) {
				return false
			}
			return privileged(ctx)
		},
		suggestion: Suggestion{
			ID:     "uninstall_keep_data_and_retry",
			Label:  "suggestion.uninstall_keep_data_and_retry",
			Remedy: Remedy{UninstallAndRetry: true, KeepData: true},
		},
	},
	{
		types: []FailureType{VersionDowngrade},
		applicable: func(ctx SuggestionContext) bool {
			return ctx.Platform.SDK < models.SDKUpsideDownCake && privileged(ctx)
		},
		suggestion: Suggestion{
			ID:     "allow_downgrade",
			Label:  "suggestion.allow_downgrade",
			Remedy: Remedy{SetFlag: models.InstallAllowDowngrade, Then: FollowInstall},
		},
	},
	{
		types:      []FailureType{PlatformIsolationViolation},
		applicable: always,
		suggestion: Suggestion{
			ID:     "installer_miui",
			Label:  "suggestion.installer_miui",
			Remedy: Remedy{InstallerPackage: InstallerPackageMIUI, Then: FollowInstall},
		},
	},
	{
		types:      []FailureType{UserRestricted},
		applicable: always,
		suggestion: Suggestion{
			ID:     "open_developer_settings",
			Label:  "suggestion.open_developer_settings",
			Remedy: Remedy{OpenSettings: "developer", Then: FollowClose},
		},
	},
	{
		types:      []FailureType{DeprecatedSdkVersion},
		applicable: always,
		suggestion: Suggestion{
			ID:     "bypass_low_target_sdk",
			Label:  "suggestion.bypass_low_target_sdk",
			Remedy: Remedy{SetFlag: models.InstallBypassLowTargetSdkBlock, Then: FollowInstall},
		},
	},
	{
		types:      []FailureType{BlacklistedPackage},
		applicable: always,
		suggestion: Suggestion{
			ID:     "bypass_blacklist",
			Label:  "suggestion.bypass_blacklist",
			Remedy: Remedy{BypassBlacklist: true, Then: FollowInstall},
		},
	},
}

func (r suggestionRule) matches(t FailureType) bool {
	for _, rt := range r.types {
		if rt == t {
			return true
		}
	}
	return false
}

// redundant reports whether the flag the remedy would set is already on
func (r suggestionRule) redundant(ctx SuggestionContext) bool {
	f := r.suggestion.Remedy.SetFlag
	return f != 0 && ctx.Flags.Has(f)
}

// DeriveSuggestions returns the applicable remediations for failure in
// priority order. An unknown or nil failure yields an empty list.
func DeriveSuggestions(failure *Failure, ctx SuggestionContext) []Suggestion {
	if failure == nil {
		return nil
	}

	var out []Suggestion
	for _, rule := range rules {
		if rule.matches(failure.Type) && rule.applicable(ctx) && !rule.redundant(ctx) {
			out = append(out, rule.suggestion)
		}
	}
	return out
}

// FindSuggestion looks a suggestion up by id among those applicable to failure
func FindSuggestion(failure *Failure, ctx SuggestionContext, id string) (Suggestion, bool) {
	for _, s := range DeriveSuggestions(failure, ctx) {
		if s.ID == id {
			return s, true
		}
	}
	return Suggestion{}, false
}
