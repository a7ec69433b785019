package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/internal/telemetry"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// ErrEngineStopped is returned by Dispatch once the engine has been closed
var ErrEngineStopped = errors.New("session engine stopped")

// Config wires an Engine to its collaborators. Resolver, Provider, Stager
// and Backend are required; the rest may be left nil.
type Config struct {
	ID       string
	Platform models.PlatformContext
	Defaults Defaults

	Resolver Resolver
	Provider MetadataProvider
	Stager   Stager
	Backend  Backend

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

type request struct {
	action Action
	reply  chan error
}

// Engine owns one Session. Actions are applied one at a time by a single
// loop goroutine; effects run concurrently and report back through the
// same queue.
type Engine struct {
	cfg     Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	handler *ierrors.Handler

	requests chan request
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	group *errgroup.Group

	mu          sync.Mutex
	session     Session
	cancels     map[int]context.CancelFunc
	nextEffect  int
	subscribers map[int]chan Session
	nextSub     int
}

// NewEngine creates an engine and starts its loop
func NewEngine(cfg Config) *Engine {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	logger = logger.Component("session").WithSession(cfg.ID)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(models.MetricsConfig{})
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		requests:    make(chan request, 64),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
		group:       new(errgroup.Group),
		session:     NewSession(cfg.ID, cfg.Platform, cfg.Defaults),
		cancels:     make(map[int]context.CancelFunc),
		subscribers: make(map[int]chan Session),
	}
	e.handler = ierrors.NewHandler(logger, func(t ierrors.FailureType) {
		metrics.Failure(t.String())
	})

	go e.loop()
	return e
}

// ID returns the session id
func (e *Engine) ID() string {
	return e.cfg.ID
}

// Snapshot returns a copy of the current session
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// FailureStats returns what the failure handler has seen so far
func (e *Engine) FailureStats() ierrors.Stats {
	return e.handler.Stats()
}

// Subscribe returns a channel that receives the session after every
// change. Slow readers only see the latest session. The returned func
// unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = ch
	ch <- e.session.Clone()
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			if _, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(ch)
			}
			e.mu.Unlock()
		})
	}
}

// Dispatch applies a and waits until it took effect. It returns a
// *ContractViolation when a is not valid in the current state.
func (e *Engine) Dispatch(ctx context.Context, a Action) error {
	reply := make(chan error, 1)
	select {
	case e.requests <- request{action: a, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return ErrEngineStopped
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// Close discards the session, stops the loop and waits for running effects
func (e *Engine) Close() error {
	err := e.Dispatch(context.Background(), Close{})
	if errors.Is(err, ErrContractViolation) || errors.Is(err, ErrEngineStopped) {
		err = nil
	}

	e.stopOnce.Do(func() {
		close(e.stopCh)
		<-e.stopped
		e.cancelAll()
		_ = e.group.Wait()

		e.mu.Lock()
		for id, ch := range e.subscribers {
			delete(e.subscribers, id)
			close(ch)
		}
		e.mu.Unlock()
	})
	return err
}

// post queues a completion. It never blocks once the engine stopped.
func (e *Engine) post(a Action) {
	select {
	case e.requests <- request{action: a}:
	case <-e.stopCh:
	}
}

func (e *Engine) loop() {
	defer close(e.stopped)
	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.requests:
			err := e.apply(req.action)
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

func (e *Engine) apply(a Action) error {
	e.mu.Lock()
	prev := e.session
	next, effects, err := Reduce(prev, a)
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("Rejected %s in %s: %v", a.actionName(), prev.State, err)
		return err
	}
	e.session = next
	e.mu.Unlock()

	if prev.State != next.State {
		e.observe(prev, next)
	}
	e.publish(next)

	for _, effect := range effects {
		e.run(next, effect)
	}
	return nil
}

// observe logs and records a state change
func (e *Engine) observe(prev, next Session) {
	e.logger.Debug("%s -> %s", prev.State, next.State)
	e.metrics.Transition(next.State.Phase.String())

	switch next.State.Phase {
	case PhaseResolveFailed, PhaseAnalyseFailed, PhaseUninstallFailed:
		e.handler.Handle(next.State.Failure)
		e.metrics.SessionFinished(next.State.Phase.String())
	case PhaseInstallComplete:
		for _, r := range next.Outcome {
			e.metrics.InstallResult(r.Success)
			if !r.Success && r.Error != nil {
				e.handler.Handle(r.Error)
			}
		}
		if next.State.Failure != nil && len(next.Outcome) == 0 {
			e.handler.Handle(next.State.Failure)
		}
		e.metrics.SessionFinished(next.State.String())
	case PhaseUninstallSuccess:
		e.metrics.SessionFinished(next.State.Phase.String())
	case PhaseClosed:
		if prev.State.Phase.Busy() {
			e.metrics.SessionFinished("Abandoned")
		}
	}
}

func (e *Engine) publish(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subscribers {
		snap := s.Clone()
		select {
		case ch <- snap:
			continue
		default:
		}
		// drop the stale session the reader has not taken yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// spawn runs fn in the effect group with a context CancelEffect can reach
func (e *Engine) spawn(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	id := e.nextEffect
	e.nextEffect++
	e.cancels[id] = cancel
	e.mu.Unlock()

	e.group.Go(func() error {
		defer func() {
			e.mu.Lock()
			delete(e.cancels, id)
			e.mu.Unlock()
			cancel()
		}()
		fn(ctx)
		return nil
	})
}

func (e *Engine) cancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.cancels {
		cancel()
		delete(e.cancels, id)
	}
}

func (e *Engine) run(s Session, effect Effect) {
	switch eff := effect.(type) {
	case ResolveEffect:
		e.spawn(func(ctx context.Context) {
			paths, err := e.cfg.Resolver.Resolve(ctx, s.ID, eff.Sources, e.progressSink(eff.Token, 0, 1))
			e.post(resolved{Token: eff.Token, Paths: paths, Err: err})
		})
	case AnalyseEffect:
		e.spawn(func(ctx context.Context) {
			results, err := e.cfg.Provider.Analyze(ctx, eff.Paths)
			e.post(analysed{Token: eff.Token, Results: results, Err: err})
		})
	case InstallEffect:
		e.spawn(func(ctx context.Context) {
			e.runInstall(ctx, eff.Token, eff.Units, eff.Params, nil)
		})
	case ApproveEffect:
		if !eff.Approve {
			// abandoning must survive the cancel that usually comes with it
			e.group.Go(func() error {
				e.abandon(eff.Approval)
				return nil
			})
			return
		}
		e.spawn(func(ctx context.Context) {
			e.runApproved(ctx, eff)
		})
	case UninstallEffect:
		e.spawn(func(ctx context.Context) {
			e.logger.Info("Uninstalling %s (%s)", eff.PackageName, eff.Flags)
			err := e.cfg.Backend.Uninstall(ctx, UninstallRequest{
				PackageName:  eff.PackageName,
				Flags:        eff.Flags,
				TargetUserID: eff.TargetUserID,
			})
			if err != nil && ctx.Err() != nil {
				err = ierrors.Wrap(err, ierrors.Cancelled, "uninstall cancelled")
			}
			e.post(uninstalled{Token: eff.Token, Err: err})
		})
	case OpenSettingsEffect:
		opener, ok := e.cfg.Backend.(SettingsOpener)
		if !ok {
			e.logger.Warn("Backend cannot open settings surface %s", eff.Surface)
			return
		}
		e.spawn(func(ctx context.Context) {
			if err := opener.OpenSettings(ctx, eff.Surface); err != nil {
				e.logger.Warn("Failed to open %s: %v", eff.Surface, err)
			}
		})
	case CancelEffect:
		e.cancelAll()
	case CleanupEffect:
		e.group.Go(func() error {
			if err := e.cfg.Stager.Cleanup(eff.SessionID); err != nil {
				e.logger.Warn("Failed to clean staged files: %v", err)
			}
			if err := e.cfg.Resolver.Cleanup(eff.SessionID); err != nil {
				e.logger.Warn("Failed to clean downloaded sources: %v", err)
			}
			return nil
		})
	default:
		e.logger.Error("Unknown effect %T", effect)
	}
}

func (e *Engine) abandon(approval ierrors.PendingApproval) {
	approver, ok := e.cfg.Backend.(Approver)
	if !ok {
		return
	}
	if err := approver.Approve(context.Background(), approval.SessionID, false); err != nil {
		e.logger.Warn("Failed to abandon device session %s: %v", approval.SessionID, err)
	}
}
