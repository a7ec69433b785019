package session

import (
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// Label is the primary action offered in InstallPrepare. Values are message ids.
type Label string

const (
	LabelInstall        Label = "prepare.install"
	LabelUpgrade        Label = "prepare.upgrade"
	LabelReinstall      Label = "prepare.reinstall"
	LabelUnarchive      Label = "prepare.unarchive"
	LabelInstallAnyway  Label = "prepare.install_anyway"
	LabelIncompatible   Label = "prepare.incompatible"
	LabelInstallModule  Label = "prepare.install_module"
	LabelNothingToCheck Label = "prepare.nothing"
)

// WarningKind orders warnings; lower values are more severe
type WarningKind int

const (
	WarnSDKIncompatible WarningKind = iota
	WarnEmulatedABI
	WarnSignatureMismatch
	WarnSignatureUnknown
	WarnDowngrade
	WarnABI32Bit
)

// Warning is one notice shown before installing. Message is a message id.
type Warning struct {
	Kind     WarningKind `json:"kind" yaml:"kind"`
	Message  string      `json:"message" yaml:"message"`
	Blocking bool        `json:"blocking" yaml:"blocking"`
}

// Prepare is the derived warning set and label for one package
type Prepare struct {
	PackageName string    `json:"package_name" yaml:"package_name"`
	Label       Label     `json:"label" yaml:"label"`
	Warnings    []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Blocked     bool      `json:"blocked" yaml:"blocked"`
}

// signatureChecked lists the containers whose signer can be compared
func signatureChecked(container models.DataType) bool {
	return container == models.DataTypeAPK || container == models.DataTypeAPKS
}

// PrepareInput is what the prepare view of one package is derived from
type PrepareInput struct {
	Base      *entity.BaseEntity
	Installed *models.InstalledAppInfo
	Signature models.SignatureMatchStatus
	// DeviceSDK <= 0 disables the SDK check
	DeviceSDK int
	// DeviceABIs are the device ABIs, preferred first
	DeviceABIs []string
	// SplitUpdate is set when only splits of an installed app are selected;
	// the signer is then the one already on the device
	SplitUpdate bool
}

// DerivePrepare computes warnings and the primary label for installing the
// base over the installed app. Warnings come out in priority order:
//   - an incompatible SDK blocks the install
//   - a base built for the other CPU family runs emulated
//   - a signature mismatch forces "install anyway" even over an upgrade
//   - a downgrade also asks for "install anyway"
//   - a 32-bit base on a 64-bit device is only noted
//
// Only then is the plain upgrade, unarchive, reinstall or install label chosen.
func DerivePrepare(in PrepareInput) Prepare {
	base, installed := in.Base, in.Installed
	if base == nil {
		return Prepare{Label: LabelNothingToCheck}
	}

	p := Prepare{PackageName: base.Package}
	var forced, blocked bool

	if minSDK, ok := base.MinSDKLevel(); ok && in.DeviceSDK > 0 && minSDK > in.DeviceSDK {
		p.Warnings = append(p.Warnings, Warning{Kind: WarnSDKIncompatible, Message: "warning.sdk_incompatible", Blocking: true})
		blocked = true
	}

	app, device := abiFamily(base.Arch), ""
	if len(in.DeviceABIs) > 0 {
		device = abiFamily(in.DeviceABIs[0])
	}
	if app != "" && device != "" && app != device {
		p.Warnings = append(p.Warnings, Warning{Kind: WarnEmulatedABI, Message: "warning.abi_emulated"})
	}

	if installed != nil && !in.SplitUpdate && signatureChecked(base.Container) {
		switch in.Signature {
		case models.SignatureMismatch:
			p.Warnings = append(p.Warnings, Warning{Kind: WarnSignatureMismatch, Message: "warning.signature_mismatch"})
			forced = true
		case models.SignatureUnknownError:
			p.Warnings = append(p.Warnings, Warning{Kind: WarnSignatureUnknown, Message: "warning.signature_unknown"})
		}
	}

	if installed != nil && base.VersionCode < installed.VersionCode {
		p.Warnings = append(p.Warnings, Warning{Kind: WarnDowngrade, Message: "warning.downgrade"})
		forced = true
	}

	if app != "" && app == device && !is64BitABI(base.Arch) && is64BitABI(in.DeviceABIs[0]) {
		p.Warnings = append(p.Warnings, Warning{Kind: WarnABI32Bit, Message: "warning.abi_32bit"})
	}

	switch {
	case blocked:
		p.Label = LabelIncompatible
		p.Blocked = true
	case forced:
		p.Label = LabelInstallAnyway
	case installed == nil:
		p.Label = LabelInstall
	case base.VersionCode > installed.VersionCode:
		p.Label = LabelUpgrade
	case installed.IsArchived:
		p.Label = LabelUnarchive
	case base.VersionName == installed.VersionName:
		p.Label = LabelReinstall
	default:
		p.Label = LabelInstall
	}
	return p
}

// abiFamily returns "arm" or "x86" for a known ABI and "" otherwise
func abiFamily(abi string) string {
	switch entity.NormalizeABI(abi) {
	case "arm64-v8a", "armeabi-v7a", "armeabi":
		return "arm"
	case "x86", "x86_64":
		return "x86"
	}
	return ""
}

func is64BitABI(abi string) bool {
	switch entity.NormalizeABI(abi) {
	case "arm64-v8a", "x86_64":
		return true
	}
	return false
}

// prepareFor derives the prepare view of one analysis result
func prepareFor(r entity.PackageAnalysisResult, platform models.PlatformContext) Prepare {
	var base *entity.BaseEntity
	var module bool
	for _, e := range r.Entities {
		if !e.Selected {
			continue
		}
		switch v := e.App.(type) {
		case *entity.BaseEntity:
			if base == nil {
				base = v
			}
		case *entity.ModuleEntity:
			module = true
		}
	}

	splitUpdate := false
	if base == nil {
		if module {
			return Prepare{PackageName: r.PackageName, Label: LabelInstallModule}
		}
		// a split-only update is checked against the best base on offer
		base = r.PrimaryBase()
		splitUpdate = r.InstalledAppInfo != nil
	}
	p := DerivePrepare(PrepareInput{
		Base:        base,
		Installed:   r.InstalledAppInfo,
		Signature:   r.SignatureMatchStatus,
		DeviceSDK:   platform.SDK,
		DeviceABIs:  platform.ABIs,
		SplitUpdate: splitUpdate,
	})
	if p.PackageName == "" {
		p.PackageName = r.PackageName
	}
	return p
}
