// Package progress moves install sources into place while reporting
// throttled progress. Both primitives honour context cancellation at every
// read or chunk boundary and never resume: a cancelled transfer has to be
// restarted from the beginning.
package progress

import (
	"errors"
	"time"
)

const (
	// StreamBufferSize is the read size of StreamCopy
	StreamBufferSize = 1 << 20
	// StreamMinStep is the smallest byte delta between two StreamCopy emissions
	StreamMinStep = 128 << 10
	// ChunkSize is the length handed to one zero-copy call
	ChunkSize = 16 << 20
	// ChunkStep is the byte delta between two Transfer emissions
	ChunkStep = ChunkSize / 2
	// MinInterval is the smallest wall-clock gap between two emissions
	MinInterval = 200 * time.Millisecond
)

// ErrCancelled is returned when the context ends mid-transfer
var ErrCancelled = errors.New("transfer cancelled")

// Progress is one emission. Fraction is only meaningful when Indeterminate is false.
type Progress struct {
	Fraction      float64 `json:"fraction" yaml:"fraction"`
	Indeterminate bool    `json:"indeterminate" yaml:"indeterminate"`
}

// Sink receives progress
type Sink interface {
	Progress(p Progress)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Progress)

// Progress implements Sink
func (f SinkFunc) Progress(p Progress) { f(p) }

// Discard drops every emission
var Discard Sink = SinkFunc(func(Progress) {})

// TransferFunc moves up to count bytes from src at offset to the current
// position of dst and returns how many bytes moved
type TransferFunc func(dst, src FileDescriptor, offset int64, count int) (int, error)

type options struct {
	now        func() time.Time
	transfer   TransferFunc
	bufferSize int
}

// Option configures a transfer
type Option func(*options)

// WithClock replaces time.Now for throttling
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTransferFunc replaces the zero-copy primitive used by Transfer
func WithTransferFunc(fn TransferFunc) Option {
	return func(o *options) { o.transfer = fn }
}

// WithBufferSize overrides the StreamCopy read size
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		transfer:   zeroCopy,
		bufferSize: StreamBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// emitter clamps values into [0,1], keeps them non-decreasing and
// applies the byte and time throttle
type emitter struct {
	sink     Sink
	now      func() time.Time
	total    int64
	step     int64
	nextEmit int64
	lastAt   time.Time
	last     float64
}

func newEmitter(sink Sink, now func() time.Time, total, step int64) *emitter {
	if sink == nil {
		sink = Discard
	}
	return &emitter{sink: sink, now: now, total: total, step: step, nextEmit: step, last: -1}
}

func (e *emitter) send(f float64) {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	if f < e.last {
		f = e.last
	}
	e.last = f
	e.sink.Progress(Progress{Fraction: f})
}

func (e *emitter) start() {
	if e.total <= 0 {
		e.sink.Progress(Progress{Indeterminate: true})
		return
	}
	e.lastAt = e.now()
	e.send(0)
}

// advance emits when both the byte threshold and the time gap are met
func (e *emitter) advance(moved int64) {
	if e.total <= 0 || moved < e.nextEmit {
		return
	}
	now := e.now()
	if now.Sub(e.lastAt) < MinInterval {
		return
	}
	e.lastAt = now
	e.nextEmit = moved + e.step
	e.send(float64(moved) / float64(e.total))
}

func (e *emitter) finish() {
	if e.total > 0 && e.last < 1 {
		e.send(1)
	}
}
