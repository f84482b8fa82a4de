package webhooks

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryPool_ExecutesTasks(t *testing.T) {
	pool := NewDeliveryPool(3, 10)
	defer pool.Close()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
	}
	wg.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&counter))
}

func TestDeliveryPool_CallerRunsWhenQueueFull(t *testing.T) {
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-block
	})
	<-started

	// Worker is busy, fill the single queue slot.
	pool.Submit(func() { <-block })

	// Queue is full now, this task must run on the calling goroutine.
	ran := false
	done := make(chan struct{})
	go func() {
		pool.Submit(func() { ran = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked instead of running the task inline")
	}
	assert.True(t, ran)

	close(block)
}

func TestDeliveryPool_CloseDrainsQueuedTasks(t *testing.T) {
	pool := NewDeliveryPool(2, 50)

	var counter int64
	for i := 0; i < 30; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	pool.Close()

	assert.Equal(t, int64(30), atomic.LoadInt64(&counter))
}

func TestDeliveryPool_SubmitAfterCloseRunsInline(t *testing.T) {
	pool := NewDeliveryPool(1, 1)
	pool.Close()

	ran := false
	pool.Submit(func() { ran = true })
	assert.True(t, ran)
}

func TestNewDeliveryPool_Defaults(t *testing.T) {
	pool := NewDeliveryPool(0, -1)
	defer pool.Close()

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		ran.Store(true)
	})
	wg.Wait()

	assert.True(t, ran.Load())
}
