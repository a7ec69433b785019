package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Bar renders progress on a terminal line
type Bar struct {
	mu          sync.Mutex
	out         io.Writer
	description string
	startTime   time.Time
	width       int
	showETA     bool
	last        Progress
}

// NewBar creates a bar writing to out
func NewBar(out io.Writer, description string) *Bar {
	return &Bar{
		out:         out,
		description: description,
		startTime:   time.Now(),
		width:       30,
		showETA:     true,
	}
}

// SetDescription updates the description and restarts the ETA clock
func (b *Bar) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
	b.startTime = time.Now()
	b.last = Progress{}
}

// Progress implements Sink
func (b *Bar) Progress(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = p
	b.render()
}

// Finish ends the line
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out)
}

func (b *Bar) render() {
	if b.last.Indeterminate {
		fmt.Fprintf(b.out, "\r%s [%s]", b.description, strings.Repeat("~", b.width))
		return
	}

	filled := int(float64(b.width) * b.last.Fraction)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", b.width-filled)

	var eta string
	if b.showETA && b.last.Fraction > 0 && b.last.Fraction < 1 {
		elapsed := time.Since(b.startTime)
		remaining := time.Duration(float64(elapsed)/b.last.Fraction) - elapsed
		if remaining > 0 {
			eta = fmt.Sprintf(" ETA: %v", remaining.Round(time.Second))
		}
	}

	fmt.Fprintf(b.out, "\r%s [%s] %.1f%%%s", b.description, bar, b.last.Fraction*100, eta)
}
