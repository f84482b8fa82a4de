package webhooks

import (
	"sync"
)

// DeliveryPool is a bounded worker pool for asynchronous delivery tasks.
// A fixed set of workers drains a buffered task queue; when the queue is
// full, Submit runs the task on the calling goroutine instead of dropping
// it or blocking indefinitely. Under sustained overload this slows the
// producer down rather than losing deliveries.
//
// Thread safety: Safe for concurrent use.
type DeliveryPool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// Default pool sizing.
const (
	// DefaultPoolWorkers is the number of delivery workers.
	DefaultPoolWorkers = 5

	// DefaultPoolQueueSize is the capacity of the pending task queue.
	DefaultPoolQueueSize = 500
)

// NewDeliveryPool creates a delivery pool with the given worker count and
// queue capacity. Non-positive values fall back to the defaults.
func NewDeliveryPool(workers, queueSize int) *DeliveryPool {
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultPoolQueueSize
	}

	p := &DeliveryPool{
		tasks: make(chan func(), queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *DeliveryPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit schedules a task for execution. If the queue is full the task runs
// synchronously on the caller's goroutine, providing backpressure.
// Submitting to a closed pool runs the task on the caller as well.
func (p *DeliveryPool) Submit(task func()) {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		task()
		return
	}
	// Enqueue while holding the lock so Close cannot close the channel
	// between the check and the send.
	select {
	case p.tasks <- task:
		p.closeMu.Unlock()
	default:
		p.closeMu.Unlock()
		task()
	}
}

// Close stops accepting new tasks and waits for queued tasks to finish.
func (p *DeliveryPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.closeMu.Unlock()

	p.wg.Wait()
}
