package models

import (
	"fmt"
	"sort"
	"strings"
)

// InstallFlags is the platform install flag bitmask
type InstallFlags int

const (
	InstallReplaceExisting              InstallFlags = 0x00000002
	InstallAllowTest                    InstallFlags = 0x00000004
	InstallExternal                     InstallFlags = 0x00000008
	InstallInternal                     InstallFlags = 0x00000010
	InstallFromAdb                      InstallFlags = 0x00000020
	InstallAllUsers                     InstallFlags = 0x00000040
	InstallAllowDowngrade               InstallFlags = 0x00000080 | 0x00100000
	InstallGrantAllRequestedPermissions InstallFlags = 0x00000100
	InstallInstantApp                   InstallFlags = 0x00000800
	InstallDontKillApp                  InstallFlags = 0x00001000
	InstallFullApp                      InstallFlags = 0x00004000
	InstallAllocateAggressive           InstallFlags = 0x00008000
	InstallVirtualPreload               InstallFlags = 0x00010000
	InstallApex                         InstallFlags = 0x00020000
	InstallEnableRollback               InstallFlags = 0x00040000
	InstallDisableVerification          InstallFlags = 0x00080000
	InstallStaged                       InstallFlags = 0x00200000
	InstallDryRun                       InstallFlags = 0x00800000
	InstallBypassLowTargetSdkBlock      InstallFlags = 0x01000000
	InstallRequestUpdateOwnership       InstallFlags = 1 << 25
	InstallUnArchive                    InstallFlags = 1 << 30
)

var installFlagNames = map[string]InstallFlags{
	"replace-existing":         InstallReplaceExisting,
	"allow-test":               InstallAllowTest,
	"external":                 InstallExternal,
	"internal":                 InstallInternal,
	"from-adb":                 InstallFromAdb,
	"all-users":                InstallAllUsers,
	"allow-downgrade":          InstallAllowDowngrade,
	"grant-permissions":        InstallGrantAllRequestedPermissions,
	"instant-app":              InstallInstantApp,
	"dont-kill-app":            InstallDontKillApp,
	"full-app":                 InstallFullApp,
	"allocate-aggressive":      InstallAllocateAggressive,
	"virtual-preload":          InstallVirtualPreload,
	"apex":                     InstallApex,
	"enable-rollback":          InstallEnableRollback,
	"disable-verification":     InstallDisableVerification,
	"staged":                   InstallStaged,
	"dry-run":                  InstallDryRun,
	"bypass-low-target-sdk":    InstallBypassLowTargetSdkBlock,
	"request-update-ownership": InstallRequestUpdateOwnership,
	"unarchive":                InstallUnArchive,
}

// Has reports whether every bit of f is set
func (i InstallFlags) Has(f InstallFlags) bool {
	return i&f == f
}

// With returns the mask with f switched on or off
func (i InstallFlags) With(f InstallFlags, on bool) InstallFlags {
	if on {
		return i | f
	}
	return i &^ f
}

// Names returns the names of the flags that are set, sorted
func (i InstallFlags) Names() []string {
	var names []string
	for name, f := range installFlagNames {
		if i.Has(f) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (i InstallFlags) String() string {
	if i == 0 {
		return "none"
	}
	return strings.Join(i.Names(), ",")
}

// ParseInstallFlag resolves a single flag name
func ParseInstallFlag(name string) (InstallFlags, error) {
	f, ok := installFlagNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown install flag %q", name)
	}
	return f, nil
}

// ParseInstallFlags ORs together a list of flag names
func ParseInstallFlags(names []string) (InstallFlags, error) {
	var mask InstallFlags
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := ParseInstallFlag(name)
		if err != nil {
			return 0, err
		}
		mask |= f
	}
	return mask, nil
}

// InstallFlagNames lists every known flag name, sorted
func InstallFlagNames() []string {
	names := make([]string, 0, len(installFlagNames))
	for name := range installFlagNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UninstallFlags is the platform delete flag bitmask
type UninstallFlags int

const (
	DeleteKeepData UninstallFlags = 0x00000001
	DeleteAllUsers UninstallFlags = 0x00000002
)

// Has reports whether every bit of f is set
func (u UninstallFlags) Has(f UninstallFlags) bool {
	return u&f == f
}

func (u UninstallFlags) String() string {
	var parts []string
	if u.Has(DeleteKeepData) {
		parts = append(parts, "keep-data")
	}
	if u.Has(DeleteAllUsers) {
		parts = append(parts, "all-users")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
