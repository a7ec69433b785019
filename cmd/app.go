package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/pkg/apk"
	"github.com/wxxsfxyzm/installerx/pkg/client"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

// target is a selected device together with what it reported about itself
type target struct {
	adb      *client.ADB
	device   client.Device
	platform models.PlatformContext
	// offline targets have no device behind them
	offline bool
}

func newADB() (*client.ADB, error) {
	authorizer, err := models.ParseAuthorizer(appConfig.Installer.Authorizer)
	if err != nil {
		return nil, err
	}
	return client.New(client.Options{
		Path:          appConfig.ADB.Path,
		Serial:        appConfig.ADB.Device,
		Authorizer:    authorizer,
		ModuleBackend: appConfig.Installer.ModuleBackend,
		TempDir:       cacheDir("installed"),
		Logger:        logger.Component("adb"),
	}), nil
}

// connect selects the device and reads its platform
func connect(ctx context.Context) (*target, error) {
	adb, err := newADB()
	if err != nil {
		return nil, err
	}
	device, err := adb.SelectDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select device: %w", err)
	}
	platform, err := adb.Platform(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Device %s: %s %s, SDK %d, ABIs %v", device.ID, platform.Manufacturer, platform.Model, platform.SDK, platform.ABIs)
	if outputFormat == "text" {
		fmt.Println(i18n.T("cli.device_selected", map[string]interface{}{"Device": device.ID, "Model": platform.Model}))
	}
	return &target{adb: adb, device: device, platform: platform}, nil
}

func cacheDir(name string) string {
	return filepath.Join(appConfig.Cache.Dir, name)
}

func sessionDefaults() (session.Defaults, error) {
	flags, err := models.ParseInstallFlags(appConfig.Installer.Flags)
	if err != nil {
		return session.Defaults{}, err
	}
	return session.Defaults{
		InstallFlags:        flags,
		TargetUserID:        appConfig.Installer.TargetUser,
		InstallerPackage:    appConfig.Installer.InstallerPackage,
		ConfirmBeforeCommit: appConfig.Installer.ConfirmBeforeCommit,
		Blacklist: session.Blacklist{
			Packages:    appConfig.Installer.Blacklist,
			SharedUsers: appConfig.Installer.SharedUserBlacklist,
			Exemptions:  appConfig.Installer.SharedUserExemptions,
		},
	}, nil
}

func newAnalyzer(t *target) *apk.Analyzer {
	opts := apk.Options{
		Platform:      t.platform,
		EnableModules: appConfig.Installer.EnableModuleInstall,
		TempDir:       cacheDir("analyze"),
		AAPTPath:      appConfig.Installer.AAPTPath,
		Logger:        logger.Component("analyzer"),
	}
	if !t.offline {
		opts.Installed = t.adb
	}
	return apk.NewAnalyzer(opts)
}

func newEngine(t *target, defaults session.Defaults) *session.Engine {
	return session.NewEngine(session.Config{
		Platform: t.platform,
		Defaults: defaults,
		Resolver: session.NewSourceResolver(cacheDir("downloads")),
		Provider: newAnalyzer(t),
		Stager:   session.NewDirStager(cacheDir("staging")),
		Backend:  t.adb,
		Logger:   logger,
		Metrics:  metrics,
	})
}
