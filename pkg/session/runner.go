package session

import (
	"context"
	"errors"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// progressSink maps the progress of step index out of count into the
// session-wide fraction and posts it
func (e *Engine) progressSink(token, index, count int) progress.Sink {
	return weighted(progress.SinkFunc(func(p progress.Progress) {
		e.post(progressed{Token: token, Progress: p})
	}), index, count)
}

func cancelled(err error) *ierrors.Failure {
	if err == nil {
		err = context.Canceled
	}
	return ierrors.Wrap(err, ierrors.Cancelled, "install cancelled")
}

// runInstall installs units in order. A failing unit does not stop the
// ones after it; a cancelled context marks every unit left as Cancelled.
// prefix holds results the caller already collected for this run.
func (e *Engine) runInstall(ctx context.Context, token int, units []InstallUnit, params InstallParams, prefix []entity.InstallResult) {
	results := append([]entity.InstallResult(nil), prefix...)

	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			for _, rest := range units[i:] {
				results = append(results, entity.ResultsFor(rest.Entities, cancelled(err))...)
			}
			break
		}

		unitResults, approval := e.installUnit(ctx, i, len(units), token, unit, params)
		if approval != nil {
			e.logger.Info("Device session %s for %s waits for approval", approval.SessionID, unit.PackageName)
			e.post(approvalRequired{Token: token, Results: results, Approval: approval, Remaining: units[i:]})
			return
		}
		results = append(results, unitResults...)
	}

	e.post(installed{Token: token, Results: results})
}

func (e *Engine) installUnit(ctx context.Context, index, count, token int, unit InstallUnit, params InstallParams) ([]entity.InstallResult, *ierrors.PendingApproval) {
	logger := e.logger.WithField("package", unit.PackageName)

	if !params.BypassBlacklist {
		if failure := params.Blacklist.Check(unit.Base); failure != nil {
			logger.Warn("Refusing blacklisted package: %v", failure)
			return entity.ResultsFor(unit.Entities, failure), nil
		}
	}

	paths, err := e.cfg.Stager.Stage(ctx, params.SessionID, unit.Entities, e.progressSink(token, index, count))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, progress.ErrCancelled) {
			return entity.ResultsFor(unit.Entities, cancelled(err)), nil
		}
		logger.Error("Failed to stage %d entities: %v", len(unit.Entities), err)
		return entity.ResultsFor(unit.Entities, typed(err, ierrors.InvalidAPK)), nil
	}

	req := InstallRequest{
		SessionID:           params.SessionID,
		PackageName:         unit.PackageName,
		Container:           unit.Container,
		Entities:            unit.Entities,
		Paths:               paths,
		Flags:               params.Flags,
		TargetUserID:        params.TargetUserID,
		InstallerPackage:    params.InstallerPackage,
		ConfirmBeforeCommit: params.ConfirmBeforeCommit,
	}
	logger.Info("Installing %d entities with flags %s", len(unit.Entities), params.Flags)

	results, err := e.cfg.Backend.Install(ctx, req)
	var pending *ierrors.PendingApproval
	switch {
	case errors.As(err, &pending):
		return nil, pending
	case err != nil && ctx.Err() != nil:
		return entity.ResultsFor(unit.Entities, cancelled(err)), nil
	case err != nil:
		return entity.ResultsFor(unit.Entities, ierrors.AsFailure(err)), nil
	case len(results) == 0:
		return entity.ResultsFor(unit.Entities, nil), nil
	}
	return results, nil
}

// runApproved commits the device session of Remaining[0] and installs the
// units after it
func (e *Engine) runApproved(ctx context.Context, eff ApproveEffect) {
	if len(eff.Remaining) == 0 {
		e.post(installed{Token: eff.Token})
		return
	}

	unit := eff.Remaining[0]
	var failure *ierrors.Failure
	if approver, ok := e.cfg.Backend.(Approver); !ok {
		failure = ierrors.New(ierrors.Aborted, "backend cannot commit held sessions")
	} else if err := approver.Approve(ctx, eff.Approval.SessionID, true); err != nil {
		if ctx.Err() != nil {
			failure = cancelled(err)
		} else {
			failure = ierrors.AsFailure(err)
		}
	}

	e.runInstall(ctx, eff.Token, eff.Remaining[1:], eff.Params, entity.ResultsFor(unit.Entities, failure))
}
