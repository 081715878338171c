package freeboard

import (
	"context"
	"sync"
)

// EventLoop serializes every mutation of dashboard state on one goroutine
// owned by the loop. Tasks run one at a time in post order, so a single
// datasource update propagates completely before the next event is handled.
//
// Post never runs a task on the caller's goroutine. Plugin workers can post
// from anywhere, including while an OnDispose on the loop waits for them.
type EventLoop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	holds   int
	idle    chan struct{}
	wake    chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
	onPanic func(any)
}

// NewEventLoop starts a loop that runs until ctx is done or Close is called.
// onPanic receives recovered task panics.
func NewEventLoop(ctx context.Context, onPanic func(any)) *EventLoop {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	idle := make(chan struct{})
	close(idle)
	l := &EventLoop{
		idle:    idle,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		cancel:  cancel,
		onPanic: onPanic,
	}
	go l.loop(ctx)
	return l
}

// Post enqueues task and returns. Tasks posted after the loop stopped are
// dropped.
func (l *EventLoop) Post(task func()) {
	l.mu.Lock()
	if l.closedLocked() {
		l.mu.Unlock()
		return
	}
	l.markBusyLocked()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs task on the loop and blocks until it and every task queued while
// it ran have completed. It must not be called from inside a loop task.
// Do returns without running task once the loop has stopped.
func (l *EventLoop) Do(task func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer l.Post(func() { close(done) })
		task()
	})
	select {
	case <-done:
	case <-l.stopped:
	}
}

// Hold keeps the loop busy until the returned release func is called. Async
// work that will post back later holds the loop so Wait does not return early.
func (l *EventLoop) Hold() func() {
	l.mu.Lock()
	l.markBusyLocked()
	l.holds++
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holds--
			l.settleLocked()
			l.mu.Unlock()
		})
	}
}

// Wait blocks until the queue is empty, no task is running and no holds
// are outstanding.
func (l *EventLoop) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		if !l.busyLocked() || l.closedLocked() {
			l.mu.Unlock()
			return nil
		}
		idle := l.idle
		l.mu.Unlock()
		select {
		case <-idle:
		case <-l.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the loop after the running task returns. Queued tasks are
// dropped. It must not be called from inside a loop task.
func (l *EventLoop) Close() {
	l.cancel()
	<-l.stopped
}

func (l *EventLoop) loop(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.queue = nil
		l.running = false
		close(l.stopped)
		l.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			if ctx.Err() != nil {
				return
			}
			task, ok := l.next()
			if !ok {
				break
			}
			l.run(task)
		}
	}
}

func (l *EventLoop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		l.running = false
		l.settleLocked()
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.running = true
	return task, true
}

func (l *EventLoop) run(task func()) {
	defer func() {
		if r := recover(); r != nil && l.onPanic != nil {
			l.onPanic(r)
		}
	}()
	task()
}

func (l *EventLoop) closedLocked() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

func (l *EventLoop) busyLocked() bool {
	return len(l.queue) > 0 || l.running || l.holds > 0
}

func (l *EventLoop) markBusyLocked() {
	select {
	case <-l.idle:
		l.idle = make(chan struct{})
	default:
	}
}

func (l *EventLoop) settleLocked() {
	if l.busyLocked() {
		return
	}
	select {
	case <-l.idle:
	default:
		close(l.idle)
	}
}
