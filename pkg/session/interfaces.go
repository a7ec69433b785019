package session

import (
	"context"

	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// Resolver turns user sources into local files
type Resolver interface {
	Resolve(ctx context.Context, sessionID string, sources []string, sink progress.Sink) ([]string, error)
	// Cleanup removes whatever Resolve downloaded for the session
	Cleanup(sessionID string) error
}

// MetadataProvider parses resolved files into per-package results
type MetadataProvider interface {
	Analyze(ctx context.Context, paths []string) ([]entity.PackageAnalysisResult, error)
}

// Stager materializes installable entities as files a backend can read
type Stager interface {
	Stage(ctx context.Context, sessionID string, entities []entity.SelectableEntity, sink progress.Sink) ([]string, error)
	Cleanup(sessionID string) error
}

// InstallRequest is one backend install call. Paths is parallel to Entities.
type InstallRequest struct {
	SessionID           string
	PackageName         string
	Container           models.DataType
	Entities            []entity.SelectableEntity
	Paths               []string
	Flags               models.InstallFlags
	TargetUserID        int
	InstallerPackage    string
	ConfirmBeforeCommit bool
}

// UninstallRequest is one backend uninstall call. TargetUserID is ignored
// when Flags has DeleteAllUsers.
type UninstallRequest struct {
	PackageName  string
	Flags        models.UninstallFlags
	TargetUserID int
}

// Backend talks to the package service of the device. Install returns one
// result per entity, or an error that applies to all of them. A
// *errors.PendingApproval error means the commit waits for an Approver.
type Backend interface {
	Install(ctx context.Context, req InstallRequest) ([]entity.InstallResult, error)
	Uninstall(ctx context.Context, req UninstallRequest) error
}

// Approver commits or abandons a device session held for approval
type Approver interface {
	Approve(ctx context.Context, sessionID string, approve bool) error
}

// SettingsOpener shows a settings surface on the device
type SettingsOpener interface {
	OpenSettings(ctx context.Context, surface string) error
}
