// Package workpool runs tasks on a fixed number of goroutines behind a
// bounded queue. Producers block while the queue is full; nothing is dropped.
package workpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrTerminated = errors.New("pool terminated")

type Task func()

type Pool struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued    int64
	processed int64
	failed    int64
}

// New starts numWorkers goroutines reading a queue of maxQueued tasks.
func New(numWorkers, maxQueued int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if maxQueued < 1 {
		maxQueued = 1
	}
	p := &Pool{tasks: make(chan Task, maxQueued)}
	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.failed, 1)
			log.Errorf("[worker] task panic: %v", r)
		}
		atomic.AddInt64(&p.processed, 1)
	}()
	t()
}

// QueueTask blocks until the queue has room or ctx is done.
func (p *Pool) QueueTask(ctx context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.Wrap(ErrTerminated, "[QueueTask]")
	}
	select {
	case p.tasks <- t:
		atomic.AddInt64(&p.queued, 1)
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "[QueueTask]")
	}
}

// Terminate stops accepting tasks and waits for the queue to drain. If ctx
// ends first the unprocessed count is reported with ErrTerminated.
func (p *Pool) Terminate(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		left := atomic.LoadInt64(&p.queued) - atomic.LoadInt64(&p.processed)
		return errors.Wrapf(ErrTerminated, "[Terminate] %d of %d tasks unprocessed", left, atomic.LoadInt64(&p.queued))
	}
}

func (p *Pool) Queued() int64    { return atomic.LoadInt64(&p.queued) }
func (p *Pool) Processed() int64 { return atomic.LoadInt64(&p.processed) }

// Failed counts tasks that panicked.
func (p *Pool) Failed() int64 { return atomic.LoadInt64(&p.failed) }
