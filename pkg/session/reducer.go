package session

import (
	"errors"
	"fmt"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// ErrContractViolation is wrapped by every *ContractViolation
var ErrContractViolation = errors.New("contract violation")

// ContractViolation is a caller bug: an action that is not valid in the
// current state, or a selection that reaches a non-installable entity
type ContractViolation struct {
	Action string
	State  State
	Reason string
}

func (v *ContractViolation) Error() string {
	return fmt.Sprintf("%s not allowed in %s: %s", v.Action, v.State, v.Reason)
}

// Unwrap returns ErrContractViolation
func (v *ContractViolation) Unwrap() error {
	return ErrContractViolation
}

func violation(s Session, a Action, format string, args ...interface{}) error {
	return &ContractViolation{Action: a.actionName(), State: s.State, Reason: fmt.Sprintf(format, args...)}
}

// Reduce applies a to s and returns the next session with the effects to
// run. It never mutates s. On error s is returned unchanged.
func Reduce(s Session, a Action) (Session, []Effect, error) {
	if s.State.Phase == PhaseClosed {
		if _, ok := a.(Reset); !ok {
			if isCompletion(a) {
				return s, nil, nil
			}
			return s, nil, violation(s, a, "session is closed")
		}
	}

	next, effects, err := reduce(s.Clone(), a)
	if err != nil {
		return s, nil, err
	}
	return next, effects, nil
}

func isCompletion(a Action) bool {
	switch a.(type) {
	case resolved, analysed, progressed, installed, approvalRequired, uninstalled:
		return true
	}
	return false
}

func reduce(s Session, a Action) (Session, []Effect, error) {
	switch act := a.(type) {
	case Resolve:
		return reduceResolve(s, a, act.Sources)
	case Analyse:
		return reduceAnalyse(s, a)
	case InstallChoice:
		return reduceInstallChoice(s, a)
	case InstallPrepare:
		switch s.State.Phase {
		case PhaseInstallChoice, PhaseInstallPrepare:
			return prepare(s, a)
		}
		return s, nil, violation(s, a, "no selection to prepare")
	case ToggleSelection:
		return reduceToggle(s, act)
	case ToggleInstallFlag:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		s.InstallFlags = s.InstallFlags.With(act.Flag, act.On)
		return s, nil, nil
	case ToggleUninstallFlag:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		if act.On {
			s.UninstallFlags |= act.Flag
		} else {
			s.UninstallFlags &^= act.Flag
		}
		return s, nil, nil
	case SetInstallerPackage:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		s.InstallerPackage = act.Package
		return s, nil, nil
	case SetTargetUser:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		if act.UserID < 0 {
			return s, nil, violation(s, a, "negative user id %d", act.UserID)
		}
		s.TargetUserID = act.UserID
		return s, nil, nil
	case SetBypassBlacklist:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		s.BypassBlacklist = act.Bypass
		return s, nil, nil
	case Install:
		return reduceInstall(s, a, act.Retry)
	case ApproveSession:
		return reduceApprove(s, act)
	case UninstallReady:
		if err := requireIdle(s, a); err != nil {
			return s, nil, err
		}
		if act.PackageName == "" {
			return s, nil, violation(s, a, "empty package name")
		}
		s.UninstallPackage = act.PackageName
		s.Retrying = false
		s.RetryPackage = ""
		s.State = State{Phase: PhaseUninstallReady}
		return s, nil, nil
	case Uninstall:
		if s.State.Phase != PhaseUninstallReady {
			return s, nil, violation(s, a, "no uninstall prepared")
		}
		return startUninstall(s), []Effect{UninstallEffect{Token: s.Token + 1, PackageName: s.UninstallPackage, Flags: s.UninstallFlags, TargetUserID: s.TargetUserID}}, nil
	case UninstallAndRetryInstall:
		return reduceUninstallAndRetry(s, a, act.KeepData)
	case ApplySuggestion:
		return reduceApplySuggestion(s, act)
	case Cancel:
		return reduceCancel(s)
	case Close:
		return closeSession(s), discardEffects(s), nil
	case Background:
		s.Detached = true
		return s, nil, nil
	case Reset:
		effects := discardEffects(s)
		next := NewSession(s.ID, s.Platform, s.Defaults())
		next.Token = s.Token + 1
		return next, effects, nil

	case resolved:
		if stale(s, act.Token, PhaseResolving) {
			return s, nil, nil
		}
		if act.Err != nil {
			s.State = State{Phase: PhaseResolveFailed, Failure: typed(act.Err, ierrors.ResolveError)}
			return s, nil, nil
		}
		s.Resolved = act.Paths
		s.Progress = progressZero
		s.State = State{Phase: PhaseAnalysing}
		return s, []Effect{AnalyseEffect{Token: s.Token, Paths: act.Paths}}, nil
	case analysed:
		if stale(s, act.Token, PhaseAnalysing) {
			return s, nil, nil
		}
		if act.Err != nil {
			s.State = State{Phase: PhaseAnalyseFailed, Failure: typed(act.Err, ierrors.ParseError)}
			return s, nil, nil
		}
		return reduceAnalysed(s, a, act.Results)
	case progressed:
		if s.Token == act.Token && s.State.Phase.Busy() {
			s.Progress = act.Progress
		}
		return s, nil, nil
	case installed:
		if stale(s, act.Token, PhaseInstalling) {
			return s, nil, nil
		}
		return reduceInstalled(s, act.Results), []Effect{CleanupEffect{SessionID: s.ID}}, nil
	case approvalRequired:
		if stale(s, act.Token, PhaseInstalling) {
			return s, nil, nil
		}
		s.Outcome = mergeOutcome(s.Outcome, act.Results, s.RetryPackage)
		s.Approval = act.Approval
		s.pending = act.Remaining
		s.State = State{Phase: PhaseInstallConfirm}
		return s, nil, nil
	case uninstalled:
		if stale(s, act.Token, PhaseUninstalling) {
			return s, nil, nil
		}
		return reduceUninstalled(s, act.Err)
	}

	return s, nil, violation(s, a, "unknown action %T", a)
}

var progressZero = progress.Progress{}

func stale(s Session, token int, phase Phase) bool {
	return s.Token != token || s.State.Phase != phase
}

func typed(err error, fallback ierrors.FailureType) *ierrors.Failure {
	f := ierrors.AsFailure(err)
	if f.Type == ierrors.Unclassified {
		f = &ierrors.Failure{Type: fallback, Code: f.Code, Message: f.Message, Cause: f.Cause, Context: f.Context}
	}
	return f
}

func requireIdle(s Session, a Action) error {
	if s.State.Phase.Busy() {
		return violation(s, a, "work in flight")
	}
	return nil
}

func reduceResolve(s Session, a Action, sources []string) (Session, []Effect, error) {
	switch s.State.Phase {
	case PhaseReady, PhaseResolveFailed, PhaseAnalyseFailed:
	default:
		return s, nil, violation(s, a, "session already resolved")
	}
	if len(sources) == 0 {
		return s, nil, violation(s, a, "no sources")
	}

	s.Sources = append([]string(nil), sources...)
	s.Resolved = nil
	s.Results = nil
	s.Prepares = nil
	s.Outcome = nil
	s.Suggestions = nil
	s.Progress = progressZero
	s.Token++
	s.State = State{Phase: PhaseResolving}
	return s, []Effect{ResolveEffect{Token: s.Token, Sources: s.Sources}}, nil
}

func reduceAnalyse(s Session, a Action) (Session, []Effect, error) {
	switch s.State.Phase {
	case PhaseAnalyseFailed, PhaseInstallChoice, PhaseInstallPrepare, PhaseInstallComplete:
	default:
		return s, nil, violation(s, a, "nothing to analyse")
	}
	if len(s.Resolved) == 0 {
		return s, nil, violation(s, a, "sources are not resolved")
	}
	s.Token++
	s.Results = nil
	s.Prepares = nil
	s.State = State{Phase: PhaseAnalysing}
	return s, []Effect{AnalyseEffect{Token: s.Token, Paths: s.Resolved}}, nil
}

func reduceInstallChoice(s Session, a Action) (Session, []Effect, error) {
	switch s.State.Phase {
	case PhaseResolveFailed, PhaseAnalyseFailed:
		return reduceResolve(s, a, s.Sources)
	case PhaseInstallChoice:
		return s, nil, nil
	case PhaseInstallPrepare, PhaseInstallComplete:
		if len(s.Results) == 0 {
			return s, nil, violation(s, a, "nothing to choose from")
		}
		s.Suggestions = nil
		s.State = State{Phase: PhaseInstallChoice}
		return s, nil, nil
	}
	return s, nil, violation(s, a, "no analysis to choose from")
}

// declaredMode is the multiplicity the request allows: several sources or
// a multi-app container may yield several packages, one plain package
// source may not
func declaredMode(paths []string, results []entity.PackageAnalysisResult) models.SessionMode {
	if len(paths) > 1 {
		return models.SessionModeBatch
	}
	for _, r := range results {
		if r.ContainerType.IsMultiApp() {
			return models.SessionModeBatch
		}
	}
	return models.SessionModeSingle
}

// resultMode is Batch when the analysis produced more than one package
func resultMode(results []entity.PackageAnalysisResult) models.SessionMode {
	if len(results) > 0 {
		return results[0].SessionMode
	}
	return models.SessionModeSingle
}

func reduceAnalysed(s Session, a Action, results []entity.PackageAnalysisResult) (Session, []Effect, error) {
	s.Results = make([]entity.PackageAnalysisResult, len(results))
	for i, r := range results {
		r = r.Clone()
		r.ApplyDefaultSelection(s.Platform)
		s.Results[i] = r
	}
	s.Results = entity.WithSessionMode(s.Results)
	s.Mode = resultMode(s.Results)

	switch err := entity.Validate(s.Results, declaredMode(s.Resolved, s.Results)); {
	case errors.Is(err, entity.ErrEmptyAnalysis):
		s.State = State{Phase: PhaseInstallPrepare, Prepare: PrepareEmpty}
		return s, nil, nil
	case errors.Is(err, entity.ErrTooManyPackages) && !mixedContainer(s.Results):
		// a module and its bundled app are offered side by side; the
		// selection check below still allows only one of them
		s.State = State{Phase: PhaseInstallPrepare, Prepare: PrepareTooMany}
		return s, nil, nil
	}

	first := s.Results[0]
	if len(s.Results) > 1 || len(first.Entities) > 1 || first.ContainerType.IsMixedModule() {
		s.State = State{Phase: PhaseInstallChoice}
		return s, nil, nil
	}
	return prepare(s, a)
}

func mixedContainer(results []entity.PackageAnalysisResult) bool {
	for _, r := range results {
		if r.ContainerType.IsMixedModule() {
			return true
		}
	}
	return false
}

// prepare validates the selection and enters InstallPrepare
func prepare(s Session, a Action) (Session, []Effect, error) {
	if err := checkInstallable(s, a); err != nil {
		return s, nil, err
	}

	s.Prepares = nil
	status := PrepareReady
	switch err := entity.ValidateSelection(s.Results, declaredMode(s.Resolved, s.Results)); {
	case errors.Is(err, entity.ErrEmptyAnalysis):
		status = PrepareEmpty
	case errors.Is(err, entity.ErrTooManyPackages):
		status = PrepareTooMany
	default:
		for _, r := range s.Results {
			if len(r.Selected()) > 0 {
				s.Prepares = append(s.Prepares, prepareFor(r, s.Platform))
			}
		}
	}
	s.State = State{Phase: PhaseInstallPrepare, Prepare: status}
	return s, nil, nil
}

func checkInstallable(s Session, a Action) error {
	for _, r := range s.Results {
		for _, e := range r.Selected() {
			if _, err := entity.AsInstallable(e.App); err != nil {
				return violation(s, a, "%v", err)
			}
		}
	}
	return nil
}

func reduceToggle(s Session, act ToggleSelection) (Session, []Effect, error) {
	phase := s.State.Phase
	if phase != PhaseInstallChoice && phase != PhaseInstallPrepare {
		return s, nil, violation(s, act, "selection is not open")
	}
	idx, ok := s.Result(act.PackageName)
	if !ok {
		return s, nil, violation(s, act, "unknown package %q", act.PackageName)
	}

	r := &s.Results[idx]
	if act.Index < 0 || act.Index >= len(r.Entities) {
		return s, nil, violation(s, act, "index %d out of range", act.Index)
	}
	if _, isCollection := r.Entities[act.Index].App.(*entity.CollectionEntity); isCollection {
		return s, nil, violation(s, act, "collection entities cannot be selected")
	}
	if err := r.ToggleSelection(act.Index, act.IsMultiSelect); err != nil {
		return s, nil, violation(s, act, "%v", err)
	}

	if phase == PhaseInstallPrepare {
		return prepare(s, act)
	}
	if r.ContainerType.IsMixedModule() && !act.IsMultiSelect && r.Entities[act.Index].Selected {
		return prepare(s, act)
	}
	return s, nil, nil
}

func buildUnits(s Session, a Action) ([]InstallUnit, error) {
	var units []InstallUnit
	for _, r := range s.Results {
		if s.RetryPackage != "" && r.PackageName != s.RetryPackage {
			continue
		}
		selected := r.Selected()
		if len(selected) == 0 {
			continue
		}
		unit := InstallUnit{PackageName: r.PackageName, Container: r.ContainerType, Entities: selected}
		for _, e := range selected {
			if _, err := entity.AsInstallable(e.App); err != nil {
				return nil, violation(s, a, "%v", err)
			}
			if b, ok := e.App.(*entity.BaseEntity); ok && unit.Base == nil {
				unit.Base = b
			}
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		return nil, violation(s, a, "nothing selected")
	}
	return units, nil
}

func (s Session) params() InstallParams {
	return InstallParams{
		SessionID:           s.ID,
		Flags:               s.InstallFlags,
		TargetUserID:        s.TargetUserID,
		InstallerPackage:    s.InstallerPackage,
		ConfirmBeforeCommit: s.ConfirmBeforeCommit,
		BypassBlacklist:     s.BypassBlacklist,
		Blacklist:           s.Blacklist,
	}
}

func startInstall(s Session, a Action) (Session, []Effect, error) {
	units, err := buildUnits(s, a)
	if err != nil {
		return s, nil, err
	}
	if s.RetryPackage == "" {
		s.Outcome = nil
	}
	s.Suggestions = nil
	s.Approval = nil
	s.pending = nil
	s.Cancelling = false
	s.Progress = progressZero
	s.Token++
	s.State = State{Phase: PhaseInstalling}
	return s, []Effect{InstallEffect{Token: s.Token, Units: units, Params: s.params()}}, nil
}

func reduceInstall(s Session, a Action, retry bool) (Session, []Effect, error) {
	switch s.State.Phase {
	case PhaseInstallPrepare:
		if s.State.Prepare != PrepareReady {
			return s, nil, violation(s, a, "selection is %s", s.State.Prepare)
		}
		for _, p := range s.Prepares {
			if p.Blocked {
				return s, nil, violation(s, a, "%s cannot be installed on SDK %d", p.PackageName, s.Platform.SDK)
			}
		}
	case PhaseInstallComplete:
		if !retry {
			return s, nil, violation(s, a, "use a retry to install again")
		}
	default:
		return s, nil, violation(s, a, "nothing prepared")
	}
	s.Retrying = false
	s.RetryPackage = ""
	return startInstall(s, a)
}

// mergeOutcome appends results, or replaces those of pkg in place when
// a single package is being retried
func mergeOutcome(outcome, results []entity.InstallResult, pkg string) []entity.InstallResult {
	if pkg == "" {
		return append(outcome, results...)
	}
	if len(results) == 0 {
		return outcome
	}

	var merged []entity.InstallResult
	inserted := false
	for _, r := range outcome {
		if r.Entity.App.PackageName() == pkg {
			if !inserted {
				merged = append(merged, results...)
				inserted = true
			}
			continue
		}
		merged = append(merged, r)
	}
	if !inserted {
		merged = append(merged, results...)
	}
	return merged
}

func firstFailure(results []entity.InstallResult) *ierrors.Failure {
	for _, r := range results {
		if !r.Success {
			if r.Error != nil {
				return r.Error
			}
			return ierrors.New(ierrors.Unclassified, "install failed")
		}
	}
	return nil
}

func reduceInstalled(s Session, results []entity.InstallResult) Session {
	s.Outcome = mergeOutcome(s.Outcome, results, s.RetryPackage)
	s.Retrying = false
	s.RetryPackage = ""
	s.Cancelling = false
	s.Approval = nil
	s.pending = nil

	failure := firstFailure(s.Outcome)
	status := CompleteSuccess
	switch {
	case s.Mode == models.SessionModeBatch:
		status = CompleteBatchSummary
	case failure != nil:
		status = CompleteFailed
	}
	if failure == nil {
		s.Progress = progress.Progress{Fraction: 1}
	}
	s.Suggestions = ierrors.DeriveSuggestions(failure, s.SuggestionContext())
	s.State = State{Phase: PhaseInstallComplete, Complete: status, Failure: failure}
	return s
}

func reduceApprove(s Session, act ApproveSession) (Session, []Effect, error) {
	if s.State.Phase != PhaseInstallConfirm || s.Approval == nil {
		return s, nil, violation(s, act, "no session awaits approval")
	}
	if s.Approval.SessionID != act.SessionID {
		return s, nil, violation(s, act, "session %q is not pending", act.SessionID)
	}

	pending := *s.Approval
	effect := ApproveEffect{
		Token:     s.Token,
		Approval:  pending,
		Approve:   act.Approve,
		Remaining: s.pending,
		Params:    s.params(),
	}
	if !act.Approve {
		return closeSession(s), []Effect{effect, CleanupEffect{SessionID: s.ID}}, nil
	}

	s.Approval = nil
	s.pending = nil
	s.State = State{Phase: PhaseInstalling}
	return s, []Effect{effect}, nil
}

func startUninstall(s Session) Session {
	s.Token++
	s.Cancelling = false
	s.State = State{Phase: PhaseUninstalling}
	return s
}

func reduceUninstalled(s Session, err error) (Session, []Effect, error) {
	s.Cancelling = false
	if s.Retrying {
		if err != nil {
			s.Retrying = false
			s.RetryPackage = ""
			failure := typed(err, ierrors.UninstallFailed)
			s.Suggestions = ierrors.DeriveSuggestions(failure, s.SuggestionContext())
			s.State = State{Phase: PhaseInstallComplete, Complete: CompleteFailed, Failure: failure}
			return s, nil, nil
		}
		return startInstall(s, Install{Retry: true})
	}

	if err != nil {
		failure := typed(err, ierrors.UninstallFailed)
		s.Suggestions = ierrors.DeriveSuggestions(failure, s.SuggestionContext())
		s.State = State{Phase: PhaseUninstallFailed, Failure: failure}
		return s, nil, nil
	}
	s.State = State{Phase: PhaseUninstallSuccess}
	return s, nil, nil
}

func failedPackage(s Session) string {
	for _, r := range s.Outcome {
		if !r.Success {
			return r.Entity.App.PackageName()
		}
	}
	return ""
}

func reduceUninstallAndRetry(s Session, a Action, keepData bool) (Session, []Effect, error) {
	if s.State.Phase != PhaseInstallComplete || s.State.Failure == nil {
		return s, nil, violation(s, a, "no failed install to retry")
	}
	pkg := failedPackage(s)
	if pkg == "" {
		return s, nil, violation(s, a, "no failed package")
	}

	flags := s.UninstallFlags &^ models.DeleteKeepData
	if keepData {
		flags |= models.DeleteKeepData
	}
	s.UninstallFlags = flags
	s.Retrying = true
	s.RetryPackage = pkg
	s.UninstallPackage = pkg
	s.Suggestions = nil
	s = startUninstall(s)
	return s, []Effect{UninstallEffect{Token: s.Token, PackageName: pkg, Flags: flags, TargetUserID: s.TargetUserID}}, nil
}

func reduceApplySuggestion(s Session, act ApplySuggestion) (Session, []Effect, error) {
	if s.State.Phase != PhaseInstallComplete && s.State.Phase != PhaseUninstallFailed {
		return s, nil, violation(s, act, "no failure to remedy")
	}

	var found *ierrors.Suggestion
	for i := range s.Suggestions {
		if s.Suggestions[i].ID == act.ID {
			found = &s.Suggestions[i]
			break
		}
	}
	if found == nil {
		return s, nil, violation(s, act, "suggestion %q is not offered", act.ID)
	}

	remedy := found.Remedy
	if remedy.SetFlag != 0 {
		s.InstallFlags = s.InstallFlags.With(remedy.SetFlag, true)
	}
	if remedy.InstallerPackage != "" {
		s.InstallerPackage = remedy.InstallerPackage
	}
	if remedy.BypassBlacklist {
		s.BypassBlacklist = true
	}
	if remedy.UninstallAndRetry {
		return reduceUninstallAndRetry(s, act, remedy.KeepData)
	}

	var effects []Effect
	if remedy.OpenSettings != "" {
		effects = append(effects, OpenSettingsEffect{Surface: remedy.OpenSettings})
	}

	switch remedy.Then {
	case ierrors.FollowInstall:
		if s.State.Phase != PhaseInstallComplete {
			return s, nil, violation(s, act, "nothing to install")
		}
		next, more, err := startInstall(s, act)
		if err != nil {
			return s, nil, err
		}
		return next, append(effects, more...), nil
	case ierrors.FollowClose:
		return closeSession(s), append(effects, discardEffects(s)...), nil
	}
	return s, effects, nil
}

func reduceCancel(s Session) (Session, []Effect, error) {
	switch s.State.Phase {
	case PhaseInstalling, PhaseUninstalling:
		s.Cancelling = true
		return s, []Effect{CancelEffect{}}, nil
	case PhaseResolving, PhaseAnalysing, PhaseInstallConfirm:
		effects := discardEffects(s)
		next := NewSession(s.ID, s.Platform, s.Defaults())
		next.Token = s.Token + 1
		next.Detached = s.Detached
		return next, effects, nil
	}
	return s, nil, nil
}

// discardEffects stops whatever the session still owns
func discardEffects(s Session) []Effect {
	var effects []Effect
	if s.State.Phase.Busy() {
		effects = append(effects, CancelEffect{})
	}
	if s.Approval != nil {
		effects = append(effects, ApproveEffect{Token: s.Token, Approval: *s.Approval, Approve: false})
	}
	return append(effects, CleanupEffect{SessionID: s.ID})
}

func closeSession(s Session) Session {
	s.Token++
	s.Approval = nil
	s.pending = nil
	s.Retrying = false
	s.RetryPackage = ""
	s.State = State{Phase: PhaseClosed}
	return s
}
