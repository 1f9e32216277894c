package worker

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Run_ProcessesEveryItem(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	results, dispatched := Run(context.Background(), 3, items, func(_ context.Context, n int) int {
		return n * n
	}, nil)

	sort.Ints(results)
	assert.Equal(t, 7, dispatched)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, results)
}

func Test_Run_BoundsConcurrency(t *testing.T) {
	var (
		active int32
		peak   int32
	)
	items := make([]int, 20)

	Run(context.Background(), 4, items, func(context.Context, int) struct{} {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}
	}, nil)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func Test_Run_StopsDispatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	results, dispatched := Run(ctx, 1, items, func(_ context.Context, n int) int {
		if n == 3 {
			cancel()
		}
		return n
	}, nil)

	assert.Less(t, dispatched, len(items))
	assert.Len(t, results, dispatched)
	assert.Contains(t, results, 3)
}

func Test_Run_Empty(t *testing.T) {
	results, dispatched := Run(context.Background(), 4, []int(nil), func(_ context.Context, n int) int { return n }, nil)
	assert.Empty(t, results)
	assert.Zero(t, dispatched)
}

func Test_Run_RecoversPanickingItem(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	results, dispatched := Run(context.Background(), 2, items, func(_ context.Context, n int) string {
		if n == 3 {
			panic("bad item")
		}
		return fmt.Sprintf("ok %d", n)
	}, func(n int, recovered any) string {
		return fmt.Sprintf("panic %d: %v", n, recovered)
	})

	sort.Strings(results)
	assert.Equal(t, 5, dispatched)
	require.Len(t, results, 5)
	assert.Equal(t, []string{"ok 1", "ok 2", "ok 4", "ok 5", "panic 3: bad item"}, results)
}

func Test_Run_NilPanicHandlerPropagates(t *testing.T) {
	assert.Panics(t, func() {
		call(context.Background(), 1, func(context.Context, int) int { panic("boom") }, nil)
	})
}
