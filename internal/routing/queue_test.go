package routing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionQueues_FIFOPerKey(t *testing.T) {
	q := newSessionQueues()
	gate := make(chan struct{})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		q.enqueue("irc:#bao", func() {
			defer wg.Done()
			if i == 0 {
				<-gate
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	close(gate)
	wg.Wait()

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
	assert.Eventually(t, func() bool { return q.pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionQueues_KeysRunInParallel(t *testing.T) {
	q := newSessionQueues()
	block := make(chan struct{})
	defer close(block)

	q.enqueue("irc:#slow", func() { <-block })

	var done atomic.Bool
	q.enqueue("irc:#fast", func() { done.Store(true) })

	assert.Eventually(t, done.Load, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return q.pending() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionQueues_RestartsAfterIdle(t *testing.T) {
	q := newSessionQueues()
	for round := range 3 {
		ran := make(chan struct{})
		q.enqueue("k", func() { close(ran) })
		select {
		case <-ran:
		case <-time.After(time.Second):
			require.FailNow(t, fmt.Sprintf("round %d did not run", round))
		}
		assert.Eventually(t, func() bool { return q.pending() == 0 }, time.Second, 5*time.Millisecond)
	}
}
