// Package workpool provides a bounded worker pool shared by one build run.
//
// A Pool owns a weighted semaphore sized at construction. Work is submitted in
// batches: every task of a batch holds one slot while it runs, and Wait joins
// only the tasks of that batch. Tasks report their own outcome; a failing task
// never cancels its siblings.
package workpool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultSize leaves two CPUs for the orchestrating goroutine and the OS.
func DefaultSize() int {
	return max(1, runtime.NumCPU()-2)
}

// Pool bounds the number of tasks running at once across all batches.
type Pool struct {
	size     int
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
	done     atomic.Int64
}

// New creates a pool with size slots; size <= 0 selects DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	return &Pool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of tasks currently holding a slot.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Peak returns the highest InFlight value observed since creation.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Completed returns the number of finished tasks.
func (p *Pool) Completed() int { return int(p.done.Load()) }

// Batch starts a new group of tasks bound to ctx.
func (p *Pool) Batch(ctx context.Context) *Batch {
	return &Batch{pool: p, ctx: ctx}
}

// Batch is a set of tasks joined together by Wait.
type Batch struct {
	pool *Pool
	ctx  context.Context
	g    errgroup.Group
	n    int
}

// Go blocks until a slot is free and then runs fn in its own goroutine.
// If the batch context ends before a slot frees up, fn is not started and the
// context error is returned.
func (b *Batch) Go(fn func(ctx context.Context)) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	if err := b.pool.sem.Acquire(b.ctx, 1); err != nil {
		return err
	}
	b.n++
	b.pool.enter()
	b.g.Go(func() error {
		defer b.pool.sem.Release(1)
		defer b.pool.leave()
		fn(b.ctx)
		return nil
	})
	return nil
}

// Len returns how many tasks were started in the batch.
func (b *Batch) Len() int { return b.n }

// Wait blocks until every started task has returned.
func (b *Batch) Wait() {
	_ = b.g.Wait()
}

func (p *Pool) enter() {
	n := p.inFlight.Add(1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (p *Pool) leave() {
	p.inFlight.Add(-1)
	p.done.Add(1)
}
