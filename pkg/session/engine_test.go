package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

type fakeResolver struct{ stager *fakeStager }

func (r fakeResolver) Cleanup(sessionID string) error {
	r.stager.mu.Lock()
	r.stager.sources = append(r.stager.sources, sessionID)
	r.stager.mu.Unlock()
	return nil
}

func (fakeResolver) Resolve(ctx context.Context, sessionID string, sources []string, sink progress.Sink) ([]string, error) {
	sink.Progress(progress.Progress{Fraction: 1})
	return sources, nil
}

type fakeProvider struct {
	results []entity.PackageAnalysisResult
}

func (p fakeProvider) Analyze(ctx context.Context, paths []string) ([]entity.PackageAnalysisResult, error) {
	return p.results, nil
}

type fakeStager struct {
	mu       sync.Mutex
	cleanups []string
	sources  []string
}

func (s *fakeStager) Stage(ctx context.Context, sessionID string, entities []entity.SelectableEntity, sink progress.Sink) ([]string, error) {
	paths := make([]string, len(entities))
	for i, e := range entities {
		paths[i] = e.App.PackageName() + ".apk"
	}
	sink.Progress(progress.Progress{Fraction: 1})
	return paths, nil
}

func (s *fakeStager) Cleanup(sessionID string) error {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, sessionID)
	s.mu.Unlock()
	return nil
}

type fakeBackend struct {
	mu        sync.Mutex
	installs  []string
	approvals []bool
	failures  map[string]error
	hold      map[string]bool
	block     bool
}

func (b *fakeBackend) Install(ctx context.Context, req InstallRequest) ([]entity.InstallResult, error) {
	b.mu.Lock()
	b.installs = append(b.installs, req.PackageName)
	err := b.failures[req.PackageName]
	hold := b.hold[req.PackageName] && req.ConfirmBeforeCommit
	block := b.block
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if hold {
		return nil, &ierrors.PendingApproval{SessionID: "7", PackageName: req.PackageName}
	}
	return nil, err
}

func (b *fakeBackend) Uninstall(ctx context.Context, req UninstallRequest) error {
	return nil
}

func (b *fakeBackend) Approve(ctx context.Context, sessionID string, approve bool) error {
	b.mu.Lock()
	b.approvals = append(b.approvals, approve)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.installs...)
}

func newTestEngine(backend *fakeBackend, defaults Defaults, results ...entity.PackageAnalysisResult) (*Engine, *fakeStager) {
	stager := &fakeStager{}
	e := NewEngine(Config{
		ID:       "session-1",
		Platform: models.PlatformContext{SDK: 33},
		Defaults: defaults,
		Resolver: fakeResolver{stager: stager},
		Provider: fakeProvider{results: results},
		Stager:   stager,
		Backend:  backend,
	})
	return e, stager
}

func waitPhase(t *testing.T, e *Engine, phase Phase) Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.Snapshot().State.Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s, at %s", phase, e.Snapshot().State)
	return e.Snapshot()
}

func threePackages() []entity.PackageAnalysisResult {
	return []entity.PackageAnalysisResult{
		resultOf(models.DataTypeAPK, apk("com.a", 1)),
		resultOf(models.DataTypeAPK, apk("com.b", 1)),
		resultOf(models.DataTypeAPK, apk("com.c", 1)),
	}
}

func TestEngineBatchInstallKeepsOrder(t *testing.T) {
	backend := &fakeBackend{failures: map[string]error{"com.b": ierrors.Classify("Failure [INSTALL_FAILED_VERSION_DOWNGRADE]")}}
	e, stager := newTestEngine(backend, Defaults{}, threePackages()...)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Dispatch(ctx, Resolve{Sources: []string{"a.apk", "b.apk", "c.apk"}}))
	waitPhase(t, e, PhaseInstallChoice)
	require.NoError(t, e.Dispatch(ctx, InstallPrepare{}))
	require.NoError(t, e.Dispatch(ctx, Install{}))

	s := waitPhase(t, e, PhaseInstallComplete)
	assert.Equal(t, []string{"com.a", "com.b", "com.c"}, backend.calls())
	assert.Equal(t, CompleteBatchSummary, s.State.Complete)
	assert.Equal(t, []string{"com.a:ok", "com.b:VERSION_DOWNGRADE", "com.c:ok"}, outcomeOf(s))
	assert.Equal(t, 1, e.FailureStats().ByType[ierrors.VersionDowngrade])

	require.Eventually(t, func() bool {
		stager.mu.Lock()
		defer stager.mu.Unlock()
		return len(stager.cleanups) > 0 && len(stager.sources) > 0
	}, time.Second, 5*time.Millisecond)
	stager.mu.Lock()
	assert.Contains(t, stager.sources, "session-1")
	stager.mu.Unlock()
}

func TestEngineBlacklistAndBypass(t *testing.T) {
	backend := &fakeBackend{}
	defaults := Defaults{Blacklist: Blacklist{Packages: []string{"com.b"}}}
	e, _ := newTestEngine(backend, defaults, threePackages()...)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Dispatch(ctx, Resolve{Sources: []string{"a.apk", "b.apk", "c.apk"}}))
	waitPhase(t, e, PhaseInstallChoice)
	require.NoError(t, e.Dispatch(ctx, InstallPrepare{}))
	require.NoError(t, e.Dispatch(ctx, Install{}))

	s := waitPhase(t, e, PhaseInstallComplete)
	assert.Equal(t, []string{"com.a", "com.c"}, backend.calls())
	assert.Equal(t, ierrors.BlacklistedPackage, s.State.Failure.Type)
	require.NotEmpty(t, s.Suggestions)
	assert.Equal(t, "bypass_blacklist", s.Suggestions[0].ID)

	require.NoError(t, e.Dispatch(ctx, ApplySuggestion{ID: "bypass_blacklist"}))
	require.Eventually(t, func() bool {
		return len(backend.calls()) == 5
	}, 2*time.Second, 5*time.Millisecond)
	s = waitPhase(t, e, PhaseInstallComplete)
	assert.Nil(t, s.State.Failure)
	assert.True(t, s.BypassBlacklist)
}

func TestEngineCancelMarksRemainingUnits(t *testing.T) {
	backend := &fakeBackend{block: true}
	e, _ := newTestEngine(backend, Defaults{}, threePackages()...)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Dispatch(ctx, Resolve{Sources: []string{"a.apk", "b.apk", "c.apk"}}))
	waitPhase(t, e, PhaseInstallChoice)
	require.NoError(t, e.Dispatch(ctx, InstallPrepare{}))
	require.NoError(t, e.Dispatch(ctx, Install{}))
	waitPhase(t, e, PhaseInstalling)
	require.NoError(t, e.Dispatch(ctx, Cancel{}))

	s := waitPhase(t, e, PhaseInstallComplete)
	assert.Equal(t, []string{"com.a:CANCELLED", "com.b:CANCELLED", "com.c:CANCELLED"}, outcomeOf(s))
	assert.False(t, s.Cancelling)
}

func TestEngineApproval(t *testing.T) {
	backend := &fakeBackend{hold: map[string]bool{"com.a": true}}
	e, _ := newTestEngine(backend, Defaults{ConfirmBeforeCommit: true}, resultOf(models.DataTypeAPK, apk("com.a", 1)))
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.Dispatch(ctx, Resolve{Sources: []string{"a.apk"}}))
	waitPhase(t, e, PhaseInstallPrepare)
	require.NoError(t, e.Dispatch(ctx, Install{}))

	s := waitPhase(t, e, PhaseInstallConfirm)
	require.NotNil(t, s.Approval)
	assert.Equal(t, "7", s.Approval.SessionID)

	err := e.Dispatch(ctx, ApproveSession{SessionID: "8", Approve: true})
	assert.True(t, errors.Is(err, ErrContractViolation))

	require.NoError(t, e.Dispatch(ctx, ApproveSession{SessionID: "7", Approve: true}))
	s = waitPhase(t, e, PhaseInstallComplete)
	assert.Equal(t, CompleteSuccess, s.State.Complete)
	assert.Equal(t, []string{"com.a:ok"}, outcomeOf(s))

	backend.mu.Lock()
	assert.Equal(t, []bool{true}, backend.approvals)
	backend.mu.Unlock()
}

func TestEngineSubscribeAndStop(t *testing.T) {
	backend := &fakeBackend{}
	e, _ := newTestEngine(backend, Defaults{}, resultOf(models.DataTypeAPK, apk("com.a", 1)))
	ctx := context.Background()

	updates, unsubscribe := e.Subscribe()
	first := <-updates
	assert.Equal(t, PhaseReady, first.State.Phase)

	require.NoError(t, e.Dispatch(ctx, Resolve{Sources: []string{"a.apk"}}))
	waitPhase(t, e, PhaseInstallPrepare)

	var last Session
	require.Eventually(t, func() bool {
		select {
		case s := <-updates:
			last = s
		default:
		}
		return last.State.Phase == PhaseInstallPrepare
	}, 2*time.Second, 5*time.Millisecond)
	unsubscribe()

	require.NoError(t, e.Close())
	assert.Equal(t, PhaseClosed, e.Snapshot().State.Phase)
	assert.ErrorIs(t, e.Dispatch(ctx, Reset{}), ErrEngineStopped)
	require.NoError(t, e.Close())
}
