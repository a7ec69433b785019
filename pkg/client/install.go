package client

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

// flagArgs maps install flags onto the options pm install-create and
// adb install share. Flags without a shell option are dropped.
var flagArgs = []struct {
	flag models.InstallFlags
	arg  string
}{
	{models.InstallReplaceExisting, "-r"},
	{models.InstallAllowTest, "-t"},
	{models.InstallAllowDowngrade, "-d"},
	{models.InstallGrantAllRequestedPermissions, "-g"},
	{models.InstallInternal, "-f"},
	{models.InstallInstantApp, "--instant"},
	{models.InstallFullApp, "--full"},
	{models.InstallDontKillApp, "--dont-kill"},
	{models.InstallVirtualPreload, "--preload"},
	{models.InstallApex, "--apex"},
	{models.InstallEnableRollback, "--enable-rollback"},
	{models.InstallDisableVerification, "--skip-verification"},
	{models.InstallStaged, "--staged"},
	{models.InstallBypassLowTargetSdkBlock, "--bypass-low-target-sdk-block"},
	{models.InstallRequestUpdateOwnership, "--update-ownership"},
}

var createdSession = regexp.MustCompile(`Success: created install session \[(\d+)\]`)

// InstallArgs returns the command line options for a request
func InstallArgs(req session.InstallRequest) []string {
	var args []string
	for _, f := range flagArgs {
		if req.Flags.Has(f.flag) {
			args = append(args, f.arg)
		}
	}
	if req.Flags.Has(models.InstallAllUsers) {
		args = append(args, "--user", "all")
	} else {
		args = append(args, "--user", strconv.Itoa(req.TargetUserID))
	}
	if req.InstallerPackage != "" {
		args = append(args, "-i", req.InstallerPackage)
	}
	return args
}

// outcome turns pm output into nil or a classified failure
func outcome(output []byte, err error) error {
	text := string(output)
	if strings.Contains(text, "Success") && !strings.Contains(text, "Failure") {
		return nil
	}
	if err == nil && strings.TrimSpace(text) == "" {
		return nil
	}
	f := ierrors.Classify(text)
	if err != nil && f.Type == ierrors.Unclassified {
		f.Cause = err
		if f.Message == "" {
			f.Message = err.Error()
		}
	}
	return f
}

// Install installs one package unit. Modules are flashed through the
// configured module backend; APKs go through adb install, or a pm session
// held for approval when ConfirmBeforeCommit is set.
func (a *ADB) Install(ctx context.Context, req session.InstallRequest) ([]entity.InstallResult, error) {
	if len(req.Paths) == 0 {
		return nil, ierrors.New(ierrors.InvalidAPK, "nothing to install")
	}
	if isModuleUnit(req.Entities) {
		for _, p := range req.Paths {
			if err := a.FlashModule(ctx, p); err != nil {
				return nil, err
			}
		}
		return entity.ResultsFor(req.Entities, nil), nil
	}

	args := InstallArgs(req)
	if req.ConfirmBeforeCommit {
		return nil, a.installSession(ctx, req, args)
	}

	var output []byte
	var err error
	if len(req.Paths) == 1 {
		output, err = a.adb(ctx, append(append([]string{"install"}, args...), req.Paths[0])...)
	} else {
		output, err = a.adb(ctx, append(append([]string{"install-multiple"}, args...), req.Paths...)...)
	}
	if err := outcome(output, err); err != nil {
		return nil, withPackage(err, req.PackageName)
	}
	a.logger.Info("Installed %s (%d files)", req.PackageName, len(req.Paths))
	return entity.ResultsFor(req.Entities, nil), nil
}

func isModuleUnit(entities []entity.SelectableEntity) bool {
	if len(entities) == 0 {
		return false
	}
	for _, e := range entities {
		if e.App.Kind() != entity.KindModule {
			return false
		}
	}
	return true
}

func withPackage(err error, pkg string) error {
	if f, ok := err.(*ierrors.Failure); ok {
		return f.WithContext("package", pkg)
	}
	return err
}

// installSession creates a pm session, writes every file into it and
// leaves the commit to Approve
func (a *ADB) installSession(ctx context.Context, req session.InstallRequest, args []string) error {
	output, err := a.shell(ctx, append([]string{"pm", "install-create"}, args...)...)
	m := createdSession.FindStringSubmatch(string(output))
	if m == nil {
		if err := outcome(output, err); err != nil {
			return withPackage(err, req.PackageName)
		}
		return fmt.Errorf("unexpected install-create output: %s", strings.TrimSpace(string(output)))
	}
	id := m[1]
	remoteDir := path.Join(remoteStaging, "sessions", id)

	write := func() error {
		if output, err := a.shell(ctx, "mkdir", "-p", remoteDir); err != nil {
			return fmt.Errorf("mkdir command failed: %w %s", err, output)
		}
		for i, local := range req.Paths {
			name := fmt.Sprintf("%d_%s", i, filepath.Base(local))
			remote := path.Join(remoteDir, name)
			if err := a.push(ctx, local, remote); err != nil {
				return err
			}
			output, err := a.shell(ctx, "pm", "install-write", id, name, remote)
			if err := outcome(output, err); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(); err != nil {
		a.logger.Warn("Abandoning session %s for %s: %v", id, req.PackageName, err)
		a.shell(context.WithoutCancel(ctx), "pm", "install-abandon", id)
		a.removeRemote(context.WithoutCancel(ctx), remoteDir)
		return withPackage(err, req.PackageName)
	}

	a.mu.Lock()
	a.sessions[id] = remoteDir
	a.mu.Unlock()
	a.logger.Info("Session %s for %s written, waiting for approval", id, req.PackageName)
	return &ierrors.PendingApproval{SessionID: id, PackageName: req.PackageName}
}

// Approve commits or abandons a session held by installSession
func (a *ADB) Approve(ctx context.Context, sessionID string, approve bool) error {
	a.mu.Lock()
	remoteDir, ok := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.mu.Unlock()
	if ok {
		defer a.removeRemote(context.WithoutCancel(ctx), remoteDir)
	}

	if !approve {
		output, err := a.shell(ctx, "pm", "install-abandon", sessionID)
		if err != nil {
			return fmt.Errorf("abandon session %s: %w %s", sessionID, err, strings.TrimSpace(string(output)))
		}
		return nil
	}
	output, err := a.shell(ctx, "pm", "install-commit", sessionID)
	return outcome(output, err)
}

// UninstallArgs returns the pm command line for a request
func UninstallArgs(req session.UninstallRequest) []string {
	args := []string{"pm", "uninstall"}
	if req.Flags.Has(models.DeleteKeepData) {
		args = append(args, "-k")
	}
	if !req.Flags.Has(models.DeleteAllUsers) {
		args = append(args, "--user", strconv.Itoa(req.TargetUserID))
	}
	return append(args, req.PackageName)
}

// Uninstall removes a package for the requested user, or every user when
// DeleteAllUsers is set
func (a *ADB) Uninstall(ctx context.Context, req session.UninstallRequest) error {
	packageName, flags := req.PackageName, req.Flags
	args := UninstallArgs(req)

	output, err := a.shell(ctx, args...)
	if strings.Contains(string(output), "Success") {
		a.logger.Info("Uninstalled %s (%s)", packageName, flags)
		return nil
	}
	f := ierrors.ClassifyUninstall(string(output)).WithContext("package", packageName)
	if err != nil {
		f.Cause = err
	}
	return f
}
