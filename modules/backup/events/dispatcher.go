package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultBuffer  = 256
	DefaultPutWait = 100 * time.Millisecond
)

// Dispatcher delivers callbacks on its own goroutine, in order of posting.
// Posting never blocks the producer longer than the configured wait.
type Dispatcher struct {
	ch      chan func()
	wait    time.Duration
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(buffer int, wait time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if wait <= 0 {
		wait = DefaultPutWait
	}

	d := &Dispatcher{
		ch:   make(chan func(), buffer),
		wait: wait,
		done: make(chan struct{}),
	}
	go d.loop()

	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for f := range d.ch {
		call(f)
	}
}

func call(f func()) {
	defer func() { _ = recover() }()
	f()
}

// Post queues f waiting a bounded time for buffer space. It reports false when f was dropped.
func (d *Dispatcher) Post(f func()) bool {
	select {
	case d.ch <- f:
		return true
	default:
	}

	t := time.NewTimer(d.wait)
	defer t.Stop()

	select {
	case d.ch <- f:
		return true
	case <-t.C:
		d.dropped.Add(1)
		return false
	}
}

// Send queues f waiting as long as needed
func (d *Dispatcher) Send(f func()) {
	d.ch <- f
}

// Offer queues f only if buffer space is available right now
func (d *Dispatcher) Offer(f func()) bool {
	select {
	case d.ch <- f:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns number of callbacks discarded because the observer lagged
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting callbacks and waits until queued ones are delivered.
// Post and Offer must not be called after Close.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.ch) })
	<-d.done
}
