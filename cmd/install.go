package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/pkg/client"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

var (
	installWith        []string
	installWithout     []string
	installUser        int
	installInstaller   string
	installConfirm     bool
	installYes         bool
	installOnly        []string
	installToggle      []string
	installBypass      bool
	installFix         []string
	installCaptureLogs bool
)

var installCmd = &cobra.Command{
	Use:   "install <source>...",
	Short: "Install packages on the connected device",
	Long: `Analyse the given sources and install the selection on the device.

A single APK or bundle is installed directly. Several packages, or a
container offering alternatives, can be narrowed with --only and --toggle
(package:index as listed by 'installerx analyze').

When an install fails the remedies that apply are listed; pass their ids
with --fix to apply them and retry in the same run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		t, err := connect(ctx)
		if err != nil {
			return err
		}
		defaults, err := sessionDefaults()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("confirm") {
			defaults.ConfirmBeforeCommit = installConfirm
		}

		d := newDriver(newEngine(t, defaults))
		defer d.Close()

		if err := applySettings(cmd, d); err != nil {
			return err
		}

		s, err := d.do(ctx, session.Resolve{Sources: args})
		if err != nil {
			return err
		}
		if f := s.State.Failure; f != nil {
			return f
		}
		if s.State.Phase == session.PhaseReady {
			return errors.New(i18n.T("cli.cancelled"))
		}

		if err := applySelection(ctx, d, s); err != nil {
			return err
		}
		s = d.engine.Snapshot()
		if outputFormat == "text" {
			printAnalysis(s)
		}
		if s.State.Prepare != session.PrepareReady {
			return fmt.Errorf("cannot install: selection is %s", s.State.Prepare)
		}
		if outputFormat == "text" {
			printPrepares(s)
		}
		for _, p := range s.Prepares {
			if p.Blocked {
				return fmt.Errorf("%s: %s", p.PackageName, i18n.T(string(session.LabelIncompatible)))
			}
		}
		if !installYes && !ask("Proceed?") {
			return errors.New(i18n.T("cli.cancelled"))
		}

		s, err = d.do(ctx, session.Install{})
		if err != nil {
			return err
		}
		s, err = finishInstall(cmd, d, s)
		if err != nil {
			return err
		}

		if installCaptureLogs && s.State.Failure != nil {
			captureFailureLogs(cmd, t.adb, s)
		}
		if outputFormat != "text" {
			if err := printStructured(cmd.OutOrStdout(), s); err != nil {
				return err
			}
		}
		if f := s.State.Failure; f != nil {
			return f
		}
		return nil
	},
}

// applySettings dispatches the session adjustments given on the command line
func applySettings(cmd *cobra.Command, d *driver) error {
	ctx := cmd.Context()
	var actions []session.Action
	for _, toggle := range []struct {
		names []string
		on    bool
	}{{installWith, true}, {installWithout, false}} {
		for _, name := range toggle.names {
			flag, err := models.ParseInstallFlag(name)
			if err != nil {
				return err
			}
			actions = append(actions, session.ToggleInstallFlag{Flag: flag, On: toggle.on})
		}
	}
	if cmd.Flags().Changed("user") {
		actions = append(actions, session.SetTargetUser{UserID: installUser})
	}
	if cmd.Flags().Changed("installer") {
		actions = append(actions, session.SetInstallerPackage{Package: installInstaller})
	}
	if installBypass {
		actions = append(actions, session.SetBypassBlacklist{Bypass: true})
	}
	for _, a := range actions {
		if err := d.engine.Dispatch(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// applySelection narrows the default selection and moves the session to
// InstallPrepare
func applySelection(ctx context.Context, d *driver, s session.Session) error {
	if len(installOnly) > 0 {
		keep := make(map[string]bool, len(installOnly))
		for _, p := range installOnly {
			keep[p] = true
		}
		for _, r := range s.Results {
			if keep[r.PackageName] {
				continue
			}
			for i, e := range r.Entities {
				if !e.Selected {
					continue
				}
				if err := d.engine.Dispatch(ctx, session.ToggleSelection{PackageName: r.PackageName, Index: i, IsMultiSelect: true}); err != nil {
					return err
				}
			}
		}
	}
	for _, spec := range installToggle {
		pkg, idx, ok := strings.Cut(spec, ":")
		index, err := strconv.Atoi(idx)
		if !ok || err != nil {
			return fmt.Errorf("invalid --toggle %q, want package:index", spec)
		}
		if err := d.engine.Dispatch(ctx, session.ToggleSelection{PackageName: pkg, Index: index, IsMultiSelect: true}); err != nil {
			return err
		}
	}
	if d.engine.Snapshot().State.Phase == session.PhaseInstallChoice {
		return d.engine.Dispatch(ctx, session.InstallPrepare{})
	}
	return nil
}

// finishInstall answers approvals and applies --fix remedies until the
// session reaches a final state
func finishInstall(cmd *cobra.Command, d *driver, s session.Session) (session.Session, error) {
	ctx := cmd.Context()
	fixes := append([]string(nil), installFix...)
	var err error
	for {
		switch s.State.Phase {
		case session.PhaseInstallConfirm:
			approve := installYes || ask(i18n.T("cli.approve_prompt", map[string]interface{}{
				"Session": s.Approval.SessionID,
				"Package": s.Approval.PackageName,
			}))
			if s, err = d.do(ctx, session.ApproveSession{SessionID: s.Approval.SessionID, Approve: approve}); err != nil {
				return s, err
			}
			continue
		case session.PhaseInstallComplete:
			if outputFormat == "text" {
				printOutcome(s)
			}
			fix, rest := nextFix(s, fixes)
			fixes = rest
			if fix == "" {
				if outputFormat == "text" {
					printSuggestions(s)
				}
				return s, nil
			}
			logger.Info("Applying %s after %s", fix, ierrors.TypeOf(s.State.Failure))
			if s, err = d.do(ctx, session.ApplySuggestion{ID: fix}); err != nil {
				return s, err
			}
			continue
		case session.PhaseClosed, session.PhaseReady:
			if outputFormat == "text" {
				fmt.Println(i18n.T("cli.cancelled"))
			}
		}
		return s, nil
	}
}

// nextFix pops the first requested remedy the session offers
func nextFix(s session.Session, fixes []string) (string, []string) {
	if s.State.Failure == nil {
		return "", nil
	}
	for i, id := range fixes {
		for _, sg := range s.Suggestions {
			if sg.ID == id {
				return id, append(fixes[:i:i], fixes[i+1:]...)
			}
		}
	}
	return "", fixes
}

func captureFailureLogs(cmd *cobra.Command, adb *client.ADB, s session.Session) {
	pkg := ""
	if failed := failedResults(s); len(failed) > 0 {
		pkg = failed[0].Entity.App.PackageName()
	}
	res, err := adb.CaptureLogs(cmd.Context(), client.LogCaptureOptions{PackageName: pkg, Level: "W"})
	if err != nil {
		logger.Warn("Failed to capture device logs: %v", err)
		return
	}
	fmt.Fprintln(os.Stderr, i18n.T("cli.logs_captured", map[string]interface{}{"Path": res.OutputPath}))
}

// ask prompts on stderr and reads a yes/no answer from stdin
func ask(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	rootCmd.AddCommand(installCmd)

	flags := installCmd.Flags()
	flags.StringSliceVar(&installWith, "with", nil, "install flags to switch on, e.g. allow-downgrade")
	flags.StringSliceVar(&installWithout, "without", nil, "install flags to switch off")
	flags.IntVar(&installUser, "user", 0, "target user id")
	flags.StringVar(&installInstaller, "installer", "", "installer package name reported to the system")
	flags.BoolVar(&installConfirm, "confirm", false, "hold the device session and ask before committing")
	flags.BoolVarP(&installYes, "yes", "y", false, "do not ask before installing or committing")
	flags.StringSliceVar(&installOnly, "only", nil, "install only these packages")
	flags.StringSliceVar(&installToggle, "toggle", nil, "flip the selection of package:index")
	flags.BoolVar(&installBypass, "bypass-blacklist", false, "ignore the configured blacklist")
	flags.StringSliceVar(&installFix, "fix", nil, "remedy ids to apply when the install fails")
	flags.BoolVar(&installCaptureLogs, "capture-logs", false, "save package manager logcat when the install fails")
}
