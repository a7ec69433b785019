package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wxxsfxyzm/installerx/internal/i18n"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
	"github.com/wxxsfxyzm/installerx/pkg/session"
)

// driver feeds actions into an engine and waits for it to settle,
// rendering progress while an effect runs
type driver struct {
	engine      *session.Engine
	updates     <-chan session.Session
	unsubscribe func()
	bar         *progress.Bar
	barPhase    session.Phase
}

func newDriver(engine *session.Engine) *driver {
	updates, unsubscribe := engine.Subscribe()
	d := &driver{engine: engine, updates: updates, unsubscribe: unsubscribe, barPhase: -1}
	if outputFormat == "text" {
		d.bar = progress.NewBar(os.Stderr, "")
	}
	return d
}

func (d *driver) Close() error {
	d.unsubscribe()
	return d.engine.Close()
}

// do dispatches a and waits until no effect owns the session anymore.
// Cancelling ctx cancels the running effect; do then waits for the
// session to settle on its cancelled outcome.
func (d *driver) do(ctx context.Context, a session.Action) (session.Session, error) {
	if err := d.engine.Dispatch(ctx, a); err != nil {
		return d.engine.Snapshot(), err
	}
	token := d.engine.Snapshot().Token

	done := ctx.Done()
	for {
		select {
		case s, ok := <-d.updates:
			if !ok {
				return d.engine.Snapshot(), session.ErrEngineStopped
			}
			d.render(s)
			if s.Token >= token && !s.State.Phase.Busy() {
				d.endBar()
				return s, nil
			}
		case <-done:
			done = nil
			logger.Info("Interrupted, cancelling %s", d.engine.Snapshot().State)
			if err := d.engine.Dispatch(context.Background(), session.Cancel{}); err != nil {
				return d.engine.Snapshot(), err
			}
			token = d.engine.Snapshot().Token
		}
	}
}

func (d *driver) render(s session.Session) {
	if d.bar == nil {
		return
	}
	if !s.State.Phase.Busy() {
		return
	}
	if s.State.Phase != d.barPhase {
		d.endBar()
		d.barPhase = s.State.Phase
		d.bar.SetDescription(s.State.Phase.String())
	}
	d.bar.Progress(s.Progress)
}

func (d *driver) endBar() {
	if d.bar != nil && d.barPhase >= 0 {
		d.bar.Finish()
	}
	d.barPhase = -1
}

// printAnalysis lists every package with its entities; selected entities
// are marked with an asterisk next to their index
func printAnalysis(s session.Session) {
	for _, r := range s.Results {
		version := ""
		if base := r.PrimaryBase(); base != nil {
			version = fmt.Sprintf("%s (%d)", base.VersionName, base.VersionCode)
		}
		fmt.Println(i18n.T("cli.package_header", map[string]interface{}{
			"Package":   r.PackageName,
			"Version":   version,
			"Container": r.ContainerType,
		}))
		if r.InstalledAppInfo != nil {
			fmt.Printf("  installed: %s (%d), signature %s\n", r.InstalledAppInfo.VersionName, r.InstalledAppInfo.VersionCode, r.SignatureMatchStatus)
		}
		for i, e := range r.Entities {
			mark := " "
			if e.Selected {
				mark = "*"
			}
			fmt.Printf("  %s%2d %-10s %s\n", mark, i, e.App.Kind(), e.App.Name())
		}
	}
}

func printPrepares(s session.Session) {
	for _, p := range s.Prepares {
		fmt.Printf("%s: %s\n", p.PackageName, i18n.T(string(p.Label)))
		for _, w := range p.Warnings {
			fmt.Printf("  ! %s\n", i18n.T(w.Message))
		}
	}
}

func printOutcome(s session.Session) {
	var ok, failed int
	for _, r := range s.Outcome {
		name := r.Entity.App.PackageName()
		if n := r.Entity.App.Name(); n != "" && n != name {
			name += " " + n
		}
		if r.Success {
			ok++
			fmt.Printf("✓ %s\n", name)
			continue
		}
		failed++
		reason := "failed"
		if r.Error != nil {
			reason = strings.TrimSpace(r.Error.FormatDetailed())
		}
		fmt.Printf("✗ %s: %s\n", name, reason)
	}
	if ok > 0 {
		fmt.Println(i18n.T("cli.installed", map[string]interface{}{"Count": ok}))
	}
	if failed > 0 {
		fmt.Println(i18n.T("cli.failed", map[string]interface{}{"Count": failed}))
	}
	if f := s.State.Failure; f != nil && len(s.Outcome) == 0 {
		fmt.Println(strings.TrimSpace(f.FormatDetailed()))
	}
}

func printSuggestions(s session.Session) {
	if s.State.Failure == nil {
		return
	}
	if len(s.Suggestions) == 0 {
		fmt.Println(i18n.T("cli.no_suggestions"))
		return
	}
	fmt.Println(i18n.T("cli.suggestions"))
	for _, sg := range s.Suggestions {
		fmt.Printf("  --fix %-32s %s\n", sg.ID, i18n.T(sg.Label))
	}
}

// failedResults returns the results that did not install
func failedResults(s session.Session) []entity.InstallResult {
	var out []entity.InstallResult
	for _, r := range s.Outcome {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}
