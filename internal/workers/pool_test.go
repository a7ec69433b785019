package workers

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsInputOrder(t *testing.T) {
	pool := NewPool[string](WithWorkerLimit[string](3))
	inputs := []string{"c", "a", "d", "b", "e"}

	results := pool.Run(context.Background(), inputs, func(ctx context.Context, in string) (string, error) {
		// later inputs finish first
		time.Sleep(time.Duration(5-strings.Index("abcde", in)) * time.Millisecond)
		return strings.ToUpper(in), nil
	})

	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, inputs[i], r.Input)
		assert.Equal(t, strings.ToUpper(inputs[i]), r.Value)
		assert.NoError(t, r.Err)
	}
	assert.NoError(t, FirstError(results))
}

func TestRunBoundsConcurrency(t *testing.T) {
	pool := NewPool[int](WithWorkerLimit[int](2))
	var running, peak int32

	pool.Run(context.Background(), []string{"1", "2", "3", "4", "5", "6"}, func(ctx context.Context, in string) (int, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 0, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunFirstError(t *testing.T) {
	pool := NewPool[int]()
	boom := errors.New("boom")

	results := pool.Run(context.Background(), []string{"ok", "bad", "worse"}, func(ctx context.Context, in string) (int, error) {
		switch in {
		case "bad":
			return 0, boom
		case "worse":
			return 0, errors.New("worse")
		}
		return 1, nil
	})

	assert.ErrorIs(t, FirstError(results), boom)
	assert.Equal(t, 1, results[0].Value)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool[int](WithWorkerLimit[int](1))
	results := pool.Run(ctx, []string{"a", "b"}, func(ctx context.Context, in string) (int, error) {
		return 0, ctx.Err()
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunEmpty(t *testing.T) {
	assert.Empty(t, NewPool[int]().Run(context.Background(), nil, nil))
}
