package client

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// moduleCommands are the flashing commands of the root solutions
var moduleCommands = map[string][]string{
	"magisk": {"magisk", "--install-module"},
	"ksu":    {"ksud", "module", "install"},
	"apatch": {"apd", "module", "install"},
}

// ModuleCommand returns the device command that flashes remote with the
// configured backend. It runs through su when the authorizer is root.
func (a *ADB) ModuleCommand(remote string) ([]string, error) {
	cmd, ok := moduleCommands[a.moduleBackend]
	if !ok {
		return nil, fmt.Errorf("unknown module backend %q", a.moduleBackend)
	}
	args := append(append([]string(nil), cmd...), remote)
	if a.authorizer == models.AuthorizerRoot {
		quoted := make([]string, len(args))
		for i, arg := range args {
			quoted[i] = shellQuote(arg)
		}
		return []string{"su", "-c", strings.Join(quoted, " ")}, nil
	}
	return args, nil
}

// FlashModule pushes a module zip and installs it with the module backend
func (a *ADB) FlashModule(ctx context.Context, local string) error {
	remote := path.Join(remoteStaging, "modules", filepath.Base(local))
	cmd, err := a.ModuleCommand(remote)
	if err != nil {
		return ierrors.Wrap(err, ierrors.ModuleInstallFailed, err.Error())
	}

	if output, err := a.shell(ctx, "mkdir", "-p", path.Dir(remote)); err != nil {
		return ierrors.Wrap(err, ierrors.ModuleInstallFailed, fmt.Sprintf("mkdir command failed: %s", strings.TrimSpace(string(output))))
	}
	if err := a.push(ctx, local, remote); err != nil {
		return ierrors.Wrap(err, ierrors.ModuleInstallFailed, "failed to push module")
	}
	defer a.removeRemote(context.WithoutCancel(ctx), remote)

	a.logger.Info("Flashing %s with %s", filepath.Base(local), a.moduleBackend)
	output, err := a.shell(ctx, cmd...)
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		return ierrors.Wrap(err, ierrors.ModuleInstallFailed, fmt.Sprintf("%s failed: %s", a.moduleBackend, lines[len(lines)-1])).
			WithContext("backend", a.moduleBackend)
	}
	return nil
}
