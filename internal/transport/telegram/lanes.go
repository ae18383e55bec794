package telegram

import "sync"

// lanes runs submitted work in FIFO order per user, with users processed in
// parallel. A user's goroutine exits as soon as its queue drains.
type lanes struct {
	mu      sync.Mutex
	queues  map[int64][]func()
	running map[int64]bool
	wg      sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: map[int64][]func(){}, running: map[int64]bool{}}
}

func (l *lanes) submit(userID int64, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queues[userID] = append(l.queues[userID], fn)
	if l.running[userID] {
		return
	}
	l.running[userID] = true
	l.wg.Add(1)
	go l.drain(userID)
}

func (l *lanes) drain(userID int64) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[userID]
		if len(q) == 0 {
			delete(l.queues, userID)
			delete(l.running, userID)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[userID] = q[1:]
		l.mu.Unlock()
		fn()
	}
}

// wait blocks until every queued item has run.
func (l *lanes) wait() { l.wg.Wait() }
