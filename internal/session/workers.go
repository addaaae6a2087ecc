// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import "sync"

// workerPool runs database I/O on a bounded set of goroutines instead of one
// goroutine per operation. Submission after close is rejected rather than
// panicking on a closed channel.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 8
	}
	wp := &workerPool{tasks: make(chan func(), size*2)}
	for i := 0; i < size; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
	return wp
}

func (wp *workerPool) run() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

// submit queues one task. It reports false when the pool is already closed.
func (wp *workerPool) submit(task func()) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	wp.tasks <- task
	return true
}

// close stops intake and waits for queued tasks to finish.
func (wp *workerPool) close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()
	wp.wg.Wait()
}
