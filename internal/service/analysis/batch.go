package analysis

import (
	"context"
	"fmt"
	"sync"
)

// runBatches executes fn over items in fixed-size groups. A batch fully
// settles before the next one starts, so peak concurrency never exceeds
// batchSize. Results keep the input order via index pairing. A panicking fn
// is converted into an error result instead of tearing down the worker group.
func runBatches[T, R any](ctx context.Context, items []T, batchSize int, fn func(ctx context.Context, item T) R, onPanic func(item T, recovered any) R) []R {
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]R, len(items))
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						results[idx] = onPanic(items[idx], r)
					}
				}()
				results[idx] = fn(ctx, items[idx])
			}(i)
		}
		wg.Wait()
	}
	return results
}

func panicMessage(recovered any) string {
	return fmt.Sprintf("panic during evaluation: %v", recovered)
}
