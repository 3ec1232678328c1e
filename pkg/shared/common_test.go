package shared

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForEachWithBoundedGoroutinesLimit(t *testing.T) {
	values := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var running, peak int32
	var mu sync.Mutex
	seen := map[int]bool{}

	skipped := ForEachWithBoundedGoroutines(context.Background(), 3, values, func(ctx context.Context, i int, v int) {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)

		mu.Lock()
		seen[v] = true
		mu.Unlock()
	})

	assert.Empty(t, skipped)
	assert.Len(t, seen, len(values))
	assert.LessOrEqual(t, int(peak), 3)
}

func TestForEachWithBoundedGoroutinesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	values := []string{"a", "b", "c", "d"}
	release := make(chan struct{})

	var skipped []int
	done := make(chan struct{})
	go func() {
		skipped = ForEachWithBoundedGoroutines(ctx, 1, values, func(ctx context.Context, i int, v string) {
			if i == 0 {
				cancel()
				<-release
			}
		})
		close(done)
	}()

	close(release)
	<-done
	assert.Equal(t, []int{1, 2, 3}, skipped)
}
