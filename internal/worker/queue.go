package worker

import (
	"strconv"
	"sync"

	"github.com/ppiankov/mergertracker/internal/model"
)

// Queue is a per-source FIFO of fetch jobs with URL deduplication. It
// closes itself once every pushed job has been marked Done, which is how
// a source's traversal signals completion to its workers.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []model.FetchJob
	seen    map[string]bool
	pending int // Pushed but not yet Done
	stopped bool
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	q := &Queue{seen: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues job unless the queue is stopped or the same job was seen.
// Retries (Attempt > 0) bypass deduplication.
func (q *Queue) Push(job model.FetchJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}

	if job.Attempt == 0 {
		key := jobKey(job)
		if q.seen[key] {
			return false
		}
		q.seen[key] = true
	}

	q.items = append(q.items, job)
	q.pending++
	q.cond.Signal()
	return true
}

// Pop blocks until a job is available. It returns false once the queue is
// stopped or every pushed job is done.
func (q *Queue) Pop() (model.FetchJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopped {
			return model.FetchJob{}, false
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			return job, true
		}
		if q.pending == 0 {
			return model.FetchJob{}, false
		}
		q.cond.Wait()
	}
}

// Done marks one popped job as finished
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending--
	if q.pending <= 0 {
		q.pending = 0
		q.cond.Broadcast()
	}
}

// Stop drops queued jobs and wakes every waiting worker
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.items = nil
	q.cond.Broadcast()
}

// Len returns the number of queued jobs
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func jobKey(job model.FetchJob) string {
	if job.Kind == model.JobLoadMore {
		return string(job.Kind) + "|" + job.URL + "|" + strconv.Itoa(job.Page)
	}
	return string(job.Kind) + "|" + job.URL
}
