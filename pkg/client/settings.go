package client

import (
	"context"
	"fmt"
	"strings"
)

// settingsActions maps settings surfaces onto intent actions
var settingsActions = map[string]string{
	"developer":       "android.settings.APPLICATION_DEVELOPMENT_SETTINGS",
	"unknown_sources": "android.settings.MANAGE_UNKNOWN_APP_SOURCES",
	"storage":         "android.settings.INTERNAL_STORAGE_SETTINGS",
	"security":        "android.settings.SECURITY_SETTINGS",
}

// OpenSettings starts the settings activity for surface on the device
func (a *ADB) OpenSettings(ctx context.Context, surface string) error {
	action, ok := settingsActions[surface]
	if !ok {
		return fmt.Errorf("unknown settings surface %q", surface)
	}
	output, err := a.shell(ctx, "am", "start", "-a", action)
	if err != nil || strings.Contains(string(output), "Error:") {
		return fmt.Errorf("failed to open %s settings: %v %s", surface, err, strings.TrimSpace(string(output)))
	}
	return nil
}
