package routing

import (
	"container/list"
	"sync"
)

// sessionQueues runs jobs one at a time per session key, in the order they
// were enqueued. Different keys drain in parallel. A key's worker exits when
// its queue is empty.
type sessionQueues struct {
	mu     sync.Mutex
	queues map[string]*list.List
}

func newSessionQueues() *sessionQueues {
	return &sessionQueues{queues: make(map[string]*list.List)}
}

// enqueue appends job to key's queue, starting a worker if none is draining it.
func (q *sessionQueues) enqueue(key string, job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, running := q.queues[key]
	if !running {
		jobs = list.New()
		q.queues[key] = jobs
	}
	jobs.PushBack(job)
	if !running {
		go q.drain(key, jobs)
	}
}

func (q *sessionQueues) drain(key string, jobs *list.List) {
	for {
		q.mu.Lock()
		front := jobs.Front()
		if front == nil {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		jobs.Remove(front)
		q.mu.Unlock()

		front.Value.(func())()
	}
}

// pending returns the number of keys with a live worker.
func (q *sessionQueues) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
