package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatches_PreservesOrder(t *testing.T) {
	items := []int{10, 20, 30, 40, 50, 60, 70}
	results := runBatches(context.Background(), items, 3,
		func(_ context.Context, n int) int { return n * 2 },
		func(n int, _ any) int { return -1 })

	require.Len(t, results, len(items))
	for i, n := range items {
		assert.Equal(t, n*2, results[i], "result %d must pair with input %d", i, i)
	}
}

func TestRunBatches_SettlesBatchBeforeNext(t *testing.T) {
	var inFlight, peak int64
	items := make([]int, 12)
	results := runBatches(context.Background(), items, 5,
		func(_ context.Context, _ int) int {
			cur := atomic.AddInt64(&inFlight, 1)
			defer atomic.AddInt64(&inFlight, -1)
			for {
				prev := atomic.LoadInt64(&peak)
				if cur <= prev || atomic.CompareAndSwapInt64(&peak, prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return 0
		},
		func(_ int, _ any) int { return -1 })

	require.Len(t, results, 12)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(5))
}

func TestRunBatches_PanicIsSubstitutedInPlace(t *testing.T) {
	items := []string{"a", "boom", "c"}
	results := runBatches(context.Background(), items, 5,
		func(_ context.Context, s string) string {
			if s == "boom" {
				panic("kaboom")
			}
			return s + "!"
		},
		func(s string, recovered any) string { return "recovered:" + s })

	assert.Equal(t, []string{"a!", "recovered:boom", "c!"}, results)
}

func TestRunBatches_ZeroAndNegativeBatchSize(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	results := runBatches(context.Background(), []int{1, 2, 3}, 0,
		func(_ context.Context, n int) int {
			mu.Lock()
			seen = append(seen, n)
			mu.Unlock()
			return n
		},
		func(n int, _ any) int { return -1 })

	assert.Equal(t, []int{1, 2, 3}, results)
	assert.Len(t, seen, 3)
}

func TestRunBatches_EmptyInput(t *testing.T) {
	results := runBatches(context.Background(), nil, 5,
		func(_ context.Context, n int) int { return n },
		func(n int, _ any) int { return -1 })
	assert.Empty(t, results)
}
