// Package looper provides the serializing executor that session state
// changes and embedder notifications run on. Tasks posted from any
// goroutine run one at a time, in posting order.
package looper

import (
	"log/slog"
	"sync"
)

type Looper struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	done chan struct{}
}

func New(name string) *Looper {
	l := &Looper{
		name: name,
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues a task. Tasks posted after Stop are dropped.
func (l *Looper) Post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		slog.Debug("looper: task dropped after stop", slog.String("name", l.name))
		return
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
}

// Flush blocks until every task posted before the call has run.
func (l *Looper) Flush() {
	done := make(chan struct{})
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-l.done:
	}
}

// Stop prevents further posts and waits for the queue to drain.
func (l *Looper) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
