// Package scheduler owns the Brain-side in-memory priority queue of
// tasks awaiting dispatch, and the dispatch-decision oracle that decides
// whether a task should be dispatched now or left queued.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// QueuedTask is the in-memory record the scheduler's queue holds for one
// task awaiting a dispatch decision.
type QueuedTask struct {
	TaskID               string
	Urgency              int
	Zone                 string
	MinPeopleRequired    int
	EstimatedDurationMin int
	CreatedAt            time.Time
	Deadline             *time.Time
	// NonInterruptible is set by the caller that enqueues the task (from
	// create_task's non_interruptible argument, or from a
	// "non_interruptible" task_type tag when seeded from TaskStore) and
	// feeds DecisionInput.NonInterruptible directly on each Reprocess pass.
	NonInterruptible bool

	index int // heap bookkeeping
}

// priorityScore implements urgency·1000 + hours_waiting + deadline bonus
// (100 if <2h to deadline, 50 if <6h).
func priorityScore(t *QueuedTask, now time.Time) float64 {
	score := float64(t.Urgency) * 1000
	score += now.Sub(t.CreatedAt).Hours()
	if t.Deadline != nil {
		untilDeadline := t.Deadline.Sub(now)
		switch {
		case untilDeadline < 2*time.Hour:
			score += 100
		case untilDeadline < 6*time.Hour:
			score += 50
		}
	}
	return score
}

// taskHeap is a max-heap over QueuedTask by priorityScore, evaluated at
// push time. Re-evaluation on each cycle is handled by Queue.DrainAll,
// which rebuilds the heap from the re-scored task set.
type taskHeap struct {
	items []*QueuedTask
	now   time.Time
}

func (h taskHeap) Len() int { return len(h.items) }
func (h taskHeap) Less(i, j int) bool {
	return priorityScore(h.items[i], h.now) > priorityScore(h.items[j], h.now)
}
func (h taskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *taskHeap) Push(x interface{}) {
	t := x.(*QueuedTask)
	t.index = len(h.items)
	h.items = append(h.items, t)
}
func (h *taskHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// forceDispatchAge is the age beyond which a queued task bypasses the
// oracle and is dispatched unconditionally.
const forceDispatchAge = 24 * time.Hour

// Queue is the thread-safe priority queue of tasks awaiting dispatch.
type Queue struct {
	mu sync.Mutex
	h  *taskHeap
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{h: &taskHeap{}}
}

// Enqueue adds or re-adds a task to the queue.
func (q *Queue) Enqueue(t *QueuedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(q.h, t)
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// DrainAll pops every currently queued task in priority order, for a
// full re-evaluation pass. The queue is empty after this call; callers
// are responsible for re-enqueuing tasks the oracle decides to keep
// queued.
func (q *Queue) DrainAll(now time.Time) []*QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.h.now = now
	heap.Init(q.h)

	out := make([]*QueuedTask, 0, q.h.Len())
	for q.h.Len() > 0 {
		out = append(out, heap.Pop(q.h).(*QueuedTask))
	}
	return out
}
