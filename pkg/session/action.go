package session

import (
	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// Action is a request to change the session
type Action interface {
	actionName() string
}

// Resolve starts a session over the given sources
type Resolve struct{ Sources []string }

// Analyse re-runs analysis over the already resolved sources
type Analyse struct{}

// InstallChoice returns to entity selection. From ResolveFailed or
// AnalyseFailed it restarts resolution of the same sources.
type InstallChoice struct{}

// InstallPrepare validates the selection and derives warnings
type InstallPrepare struct{}

// ToggleSelection flips one entity inside a package's result
type ToggleSelection struct {
	PackageName   string
	Index         int
	IsMultiSelect bool
}

// ToggleInstallFlag switches one install flag
type ToggleInstallFlag struct {
	Flag models.InstallFlags
	On   bool
}

// ToggleUninstallFlag switches one uninstall flag
type ToggleUninstallFlag struct {
	Flag models.UninstallFlags
	On   bool
}

// SetInstallerPackage sets the installer identity passed to the backend
type SetInstallerPackage struct{ Package string }

// SetTargetUser sets the user the install is made for
type SetTargetUser struct{ UserID int }

// SetBypassBlacklist switches the blacklist check off or on
type SetBypassBlacklist struct{ Bypass bool }

// Install starts installing the selection. Retry must be set when
// re-entering from InstallComplete.
type Install struct{ Retry bool }

// ApproveSession answers a pending device session
type ApproveSession struct {
	SessionID string
	Approve   bool
}

// UninstallReady starts an uninstall flow for a package
type UninstallReady struct{ PackageName string }

// Uninstall runs the uninstall prepared by UninstallReady
type Uninstall struct{}

// UninstallAndRetryInstall removes the failed package and installs again
type UninstallAndRetryInstall struct{ KeepData bool }

// ApplySuggestion applies one of the suggestions offered for the last failure
type ApplySuggestion struct{ ID string }

// Cancel stops in-flight work
type Cancel struct{}

// Close discards the session
type Close struct{}

// Background detaches observers without stopping in-flight work
type Background struct{}

// Reset returns to Ready with a fresh session
type Reset struct{}

func (Resolve) actionName() string                  { return "Resolve" }
func (Analyse) actionName() string                  { return "Analyse" }
func (InstallChoice) actionName() string            { return "InstallChoice" }
func (InstallPrepare) actionName() string           { return "InstallPrepare" }
func (ToggleSelection) actionName() string          { return "ToggleSelection" }
func (ToggleInstallFlag) actionName() string        { return "ToggleInstallFlag" }
func (ToggleUninstallFlag) actionName() string      { return "ToggleUninstallFlag" }
func (SetInstallerPackage) actionName() string      { return "SetInstallerPackage" }
func (SetTargetUser) actionName() string            { return "SetTargetUser" }
func (SetBypassBlacklist) actionName() string       { return "SetBypassBlacklist" }
func (Install) actionName() string                  { return "Install" }
func (ApproveSession) actionName() string           { return "ApproveSession" }
func (UninstallReady) actionName() string           { return "UninstallReady" }
func (Uninstall) actionName() string                { return "Uninstall" }
func (UninstallAndRetryInstall) actionName() string { return "UninstallAndRetryInstall" }
func (ApplySuggestion) actionName() string          { return "ApplySuggestion" }
func (Cancel) actionName() string                   { return "Cancel" }
func (Close) actionName() string                    { return "Close" }
func (Background) actionName() string               { return "Background" }
func (Reset) actionName() string                    { return "Reset" }

// Completions posted back by effects. Token must match Session.Token or
// the completion is stale and dropped.

type resolved struct {
	Token int
	Paths []string
	Err   error
}

type analysed struct {
	Token   int
	Results []entity.PackageAnalysisResult
	Err     error
}

type progressed struct {
	Token    int
	Progress progress.Progress
}

type installed struct {
	Token   int
	Results []entity.InstallResult
}

// approvalRequired carries the results so far. Remaining[0] is the unit
// whose device session waits for approval.
type approvalRequired struct {
	Token     int
	Results   []entity.InstallResult
	Approval  *ierrors.PendingApproval
	Remaining []InstallUnit
}

type uninstalled struct {
	Token int
	Err   error
}

func (resolved) actionName() string         { return "resolved" }
func (analysed) actionName() string         { return "analysed" }
func (progressed) actionName() string       { return "progressed" }
func (installed) actionName() string        { return "installed" }
func (approvalRequired) actionName() string { return "approvalRequired" }
func (uninstalled) actionName() string      { return "uninstalled" }

// InstallUnit is one backend call: the selected entities of one package
type InstallUnit struct {
	PackageName string                    `json:"package_name" yaml:"package_name"`
	Container   models.DataType           `json:"container" yaml:"container"`
	Base        *entity.BaseEntity        `json:"-" yaml:"-"`
	Entities    []entity.SelectableEntity `json:"entities" yaml:"entities"`
}

// InstallParams are the session settings an install runs with
type InstallParams struct {
	SessionID           string
	Flags               models.InstallFlags
	TargetUserID        int
	InstallerPackage    string
	ConfirmBeforeCommit bool
	BypassBlacklist     bool
	Blacklist           Blacklist
}

// Effect is work the engine performs outside the reducer
type Effect interface {
	effectName() string
}

type ResolveEffect struct {
	Token   int
	Sources []string
}

type AnalyseEffect struct {
	Token int
	Paths []string
}

type InstallEffect struct {
	Token  int
	Units  []InstallUnit
	Params InstallParams
}

type ApproveEffect struct {
	Token     int
	Approval  ierrors.PendingApproval
	Approve   bool
	Remaining []InstallUnit
	Params    InstallParams
}

type UninstallEffect struct {
	Token        int
	PackageName  string
	Flags        models.UninstallFlags
	TargetUserID int
}

// OpenSettingsEffect asks the device to show a settings surface
type OpenSettingsEffect struct{ Surface string }

// CancelEffect cancels every in-flight effect
type CancelEffect struct{}

// CleanupEffect removes staged files of the session
type CleanupEffect struct{ SessionID string }

func (ResolveEffect) effectName() string      { return "resolve" }
func (AnalyseEffect) effectName() string      { return "analyse" }
func (InstallEffect) effectName() string      { return "install" }
func (ApproveEffect) effectName() string      { return "approve" }
func (UninstallEffect) effectName() string    { return "uninstall" }
func (OpenSettingsEffect) effectName() string { return "open_settings" }
func (CancelEffect) effectName() string       { return "cancel" }
func (CleanupEffect) effectName() string      { return "cleanup" }
