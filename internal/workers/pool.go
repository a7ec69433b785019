// Package workers runs independent jobs on a bounded set of goroutines.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is executed once per input string (a path, a device serial)
type TaskFunc[T any] func(ctx context.Context, input string) (T, error)

// Result is the outcome of one task. Index is the position of Input in the
// slice handed to Run.
type Result[T any] struct {
	Index int
	Input string
	Value T
	Err   error
}

// Pool bounds how many tasks run at once
type Pool[T any] struct {
	workerLimit int
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithWorkerLimit sets the maximum number of concurrent workers
func WithWorkerLimit[T any](limit int) Option[T] {
	return func(p *Pool[T]) {
		p.workerLimit = limit
	}
}

// NewPool creates a pool sized to the CPU count unless configured otherwise
func NewPool[T any](opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		workerLimit: runtime.NumCPU(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.workerLimit <= 0 {
		p.workerLimit = runtime.NumCPU()
	}

	return p
}

// Run executes task for every input and returns the results in input
// order. Inputs not started before ctx is done get ctx.Err().
func (p *Pool[T]) Run(ctx context.Context, inputs []string, task TaskFunc[T]) []Result[T] {
	results := make([]Result[T], len(inputs))
	if len(inputs) == 0 {
		return results
	}
	for i, in := range inputs {
		results[i] = Result[T]{Index: i, Input: in}
	}

	workerCount := p.workerLimit
	if workerCount > len(inputs) {
		workerCount = len(inputs)
	}

	// tasks report through results, so the group never sees an error
	var g errgroup.Group
	g.SetLimit(workerCount)
	for i := range inputs {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			results[i].Value, results[i].Err = task(ctx, inputs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FirstError returns the error of the earliest failed input
func FirstError[T any](results []Result[T]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
