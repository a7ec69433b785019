// Package session drives an install or uninstall attempt through its
// states. Reduce is the only code that changes a Session; the Engine feeds
// it actions one at a time and runs the effects it returns.
package session

import (
	"fmt"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// Phase is the coarse state of a session
type Phase int

const (
	PhaseReady Phase = iota
	PhaseResolving
	PhaseResolveFailed
	PhaseAnalysing
	PhaseAnalyseFailed
	PhaseInstallChoice
	PhaseInstallPrepare
	PhaseInstallConfirm
	PhaseInstalling
	PhaseInstallComplete
	PhaseUninstallReady
	PhaseUninstalling
	PhaseUninstallSuccess
	PhaseUninstallFailed
	PhaseClosed
)

var phaseNames = map[Phase]string{
	PhaseReady:            "Ready",
	PhaseResolving:        "Resolving",
	PhaseResolveFailed:    "ResolveFailed",
	PhaseAnalysing:        "Analysing",
	PhaseAnalyseFailed:    "AnalyseFailed",
	PhaseInstallChoice:    "InstallChoice",
	PhaseInstallPrepare:   "InstallPrepare",
	PhaseInstallConfirm:   "InstallConfirm",
	PhaseInstalling:       "Installing",
	PhaseInstallComplete:  "InstallComplete",
	PhaseUninstallReady:   "UninstallReady",
	PhaseUninstalling:     "Uninstalling",
	PhaseUninstallSuccess: "UninstallSuccess",
	PhaseUninstallFailed:  "UninstallFailed",
	PhaseClosed:           "Closed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Busy reports whether an effect owns the session
func (p Phase) Busy() bool {
	switch p {
	case PhaseResolving, PhaseAnalysing, PhaseInstalling, PhaseUninstalling:
		return true
	}
	return false
}

// PrepareStatus qualifies PhaseInstallPrepare
type PrepareStatus int

const (
	PrepareReady PrepareStatus = iota
	PrepareEmpty
	PrepareTooMany
)

func (s PrepareStatus) String() string {
	switch s {
	case PrepareEmpty:
		return "Empty"
	case PrepareTooMany:
		return "TooMany"
	default:
		return "Ready"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s PrepareStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CompleteStatus qualifies PhaseInstallComplete
type CompleteStatus int

const (
	CompleteSuccess CompleteStatus = iota
	CompleteFailed
	CompleteBatchSummary
)

func (s CompleteStatus) String() string {
	switch s {
	case CompleteFailed:
		return "Failed"
	case CompleteBatchSummary:
		return "BatchSummary"
	default:
		return "Success"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s CompleteStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the phase plus the qualifier and failure that go with it
type State struct {
	Phase    Phase            `json:"phase" yaml:"phase"`
	Prepare  PrepareStatus    `json:"prepare,omitempty" yaml:"prepare,omitempty"`
	Complete CompleteStatus   `json:"complete,omitempty" yaml:"complete,omitempty"`
	Failure  *ierrors.Failure `json:"failure,omitempty" yaml:"failure,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseInstallPrepare:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Prepare)
	case PhaseInstallComplete:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Complete)
	}
	return s.Phase.String()
}

// Defaults seed the user-adjustable fields of a new session
type Defaults struct {
	InstallFlags        models.InstallFlags
	TargetUserID        int
	InstallerPackage    string
	ConfirmBeforeCommit bool
	Blacklist           Blacklist
}

// Session is everything one install or uninstall attempt knows
type Session struct {
	ID    string `json:"id" yaml:"id"`
	State State  `json:"state" yaml:"state"`

	Sources  []string                       `json:"sources,omitempty" yaml:"sources,omitempty"`
	Resolved []string                       `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Mode     models.SessionMode             `json:"mode" yaml:"mode"`
	Results  []entity.PackageAnalysisResult `json:"results,omitempty" yaml:"results,omitempty"`
	Prepares []Prepare                      `json:"prepares,omitempty" yaml:"prepares,omitempty"`
	Platform models.PlatformContext         `json:"platform" yaml:"platform"`

	InstallFlags        models.InstallFlags   `json:"install_flags" yaml:"install_flags"`
	UninstallFlags      models.UninstallFlags `json:"uninstall_flags" yaml:"uninstall_flags"`
	TargetUserID        int                   `json:"target_user_id" yaml:"target_user_id"`
	InstallerPackage    string                `json:"installer_package,omitempty" yaml:"installer_package,omitempty"`
	ConfirmBeforeCommit bool                  `json:"confirm_before_commit" yaml:"confirm_before_commit"`
	BypassBlacklist     bool                  `json:"bypass_blacklist" yaml:"bypass_blacklist"`
	Blacklist           Blacklist             `json:"-" yaml:"-"`

	// Retrying is set while an uninstall runs on the way back to Installing
	Retrying         bool   `json:"retrying" yaml:"retrying"`
	RetryPackage     string `json:"retry_package,omitempty" yaml:"retry_package,omitempty"`
	UninstallPackage string `json:"uninstall_package,omitempty" yaml:"uninstall_package,omitempty"`

	// Approval is the device session waiting in PhaseInstallConfirm
	Approval *ierrors.PendingApproval `json:"approval,omitempty" yaml:"approval,omitempty"`
	// pending is the work left behind the approval
	pending []InstallUnit

	Detached    bool                   `json:"detached" yaml:"detached"`
	Cancelling  bool                   `json:"cancelling" yaml:"cancelling"`
	Progress    progress.Progress      `json:"progress" yaml:"progress"`
	Outcome     []entity.InstallResult `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Suggestions []ierrors.Suggestion   `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`

	// Token ties effect completions to the request that started them
	Token int `json:"-" yaml:"-"`
}

// NewSession creates a session in PhaseReady
func NewSession(id string, platform models.PlatformContext, d Defaults) Session {
	return Session{
		ID:                  id,
		State:               State{Phase: PhaseReady},
		Platform:            platform,
		InstallFlags:        d.InstallFlags,
		TargetUserID:        d.TargetUserID,
		InstallerPackage:    d.InstallerPackage,
		ConfirmBeforeCommit: d.ConfirmBeforeCommit,
		Blacklist:           d.Blacklist,
	}
}

// Clone returns a copy that shares no mutable state with s
func (s Session) Clone() Session {
	out := s
	out.Sources = append([]string(nil), s.Sources...)
	out.Resolved = append([]string(nil), s.Resolved...)
	out.Prepares = append([]Prepare(nil), s.Prepares...)
	out.Outcome = append([]entity.InstallResult(nil), s.Outcome...)
	out.Suggestions = append([]ierrors.Suggestion(nil), s.Suggestions...)
	out.pending = append([]InstallUnit(nil), s.pending...)
	if s.Results != nil {
		out.Results = make([]entity.PackageAnalysisResult, len(s.Results))
		for i, r := range s.Results {
			out.Results[i] = r.Clone()
		}
	}
	if s.Approval != nil {
		a := *s.Approval
		out.Approval = &a
	}
	return out
}

// Result returns the analysis result for a package
func (s Session) Result(packageName string) (int, bool) {
	for i, r := range s.Results {
		if r.PackageName == packageName {
			return i, true
		}
	}
	return -1, false
}

// Defaults returns the user-adjustable fields so a reset keeps them
func (s Session) Defaults() Defaults {
	return Defaults{
		InstallFlags:        s.InstallFlags,
		TargetUserID:        s.TargetUserID,
		InstallerPackage:    s.InstallerPackage,
		ConfirmBeforeCommit: s.ConfirmBeforeCommit,
		Blacklist:           s.Blacklist,
	}
}

// SuggestionContext is the gating input for the suggestion engine
func (s Session) SuggestionContext() ierrors.SuggestionContext {
	return ierrors.SuggestionContext{Platform: s.Platform, Flags: s.InstallFlags}
}
