/*
Package worker provides a fixed-size thread pool for fire-and-forget tasks.

# Overview

SimplePool owns a fixed set of workers and one shared FIFO queue of
types.Task values. Each worker goroutine is locked to its own OS thread for
its whole lifetime, so a worker is a thread in the usual sense and can be
pinned to a CPU core.

# Core Components

## SimplePool

- Fixed number of workers, decided at construction
- Unbounded FIFO queue guarded by a single mutex
- Submit wakes exactly one waiting worker (Signal)
- Shutdown wakes every worker (Broadcast) and joins them
- Clear drops queued tasks without waking anyone

## Worker

A worker cycles through three states:

	waiting -> executing -> waiting -> ... -> terminated

On wake it checks the running flag and dequeues under the same lock. A
worker that observes the pool stopped exits and never waits again. Tasks
run outside the lock.

# Error Handling

A task reports failure by panicking. The panic is recovered at the worker
boundary and the failure's own message is passed to the configured
types.Logger. The optional ErrorHandler receives the same failure as a
*types.TaskError carrying the worker ID and stack trace. Panics raised by
either callback are ignored. Failures are never retried and never reach the
submitter.

# Shutdown

Close does not drain the queue. Tasks that no worker has picked up when the
pool stops are discarded. Tasks already executing run to completion.

# Usage Examples

Basic usage:

	pool, err := worker.NewSimplePool(&worker.SimplePoolConfig{
		PoolSize: 4,
		Logger:   func(msg string) { log.Println(msg) },
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := pool.Submit(func() {
		// Execute work
	}); err != nil {
		log.Printf("Failed to submit task: %v", err)
	}

Pinning each worker to a core:

	n := affinity.HardwareConcurrency()
	pool, err := worker.NewSimplePool(&worker.SimplePoolConfig{
		PoolSize: n,
		OnWorkerStart: func(id int) {
			if err := affinity.BindCurrent(id % n); err != nil {
				log.Printf("worker %d: %v", id, err)
			}
		},
	})
*/
package worker
