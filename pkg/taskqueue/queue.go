// Package taskqueue implements an in-process task queue: a bounded pool
// of worker goroutines that schedule recurring and one-shot client tasks,
// plus an admin goroutine that refreshes human-readable countdown text.
package taskqueue

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// adminTickInterval is how often the admin goroutine refreshes countdown
// messages absent an earlier wake.
const adminTickInterval = time.Second

// noDeadline is the sentinel "no estimated delay yet" value for waitFor,
// matching the source's INT64_MAX reset at the top of every sweep.
const noDeadline = time.Duration(math.MaxInt64)

// Queue is a bounded pool of worker goroutines plus one admin goroutine
// that schedules and runs client Tasks. The zero value is not usable;
// construct with NewQueue.
//
// Lock order when more than one of the queue's locks is held at once is
// primary -> status -> observer. ViewTaskStatus takes only the status
// lock. Status-changed callbacks must never call back into the Queue and
// must never attempt to acquire the primary lock themselves: some call
// sites invoke them with the primary lock already held.
type Queue struct {
	threadName string
	log        *slog.Logger

	mu        sync.Mutex
	workCond  *sync.Cond
	adminCond *sync.Cond
	termCond  *sync.Cond

	tasks         []*taskRecord
	nextTaskIndex int
	workDone      bool
	waitFor       time.Duration
	finish        bool

	numberOfTaskThreads       int
	numberOfActiveTaskThreads int

	status    statusTable
	observers observerRegistry

	adminDone chan struct{}
}

// NewQueue starts nThreads worker goroutines and one admin goroutine.
// threadName is a human-readable label attached to log lines from the
// worker goroutines; the admin goroutine's label is threadName prefixed
// with "#", the same convention the pool it's modeled on uses to
// distinguish its housekeeping thread in logs.
func NewQueue(threadName string, nThreads int) *Queue {
	q := &Queue{
		threadName:          threadName,
		waitFor:             noDeadline,
		numberOfTaskThreads: nThreads,
		log:                 slog.Default().With("component", "taskqueue", "thread_name", threadName),
		adminDone:           make(chan struct{}),
	}
	q.workCond = sync.NewCond(&q.mu)
	q.adminCond = sync.NewCond(&q.mu)
	q.termCond = sync.NewCond(&q.mu)

	q.mu.Lock()
	q.addWorkersLocked()
	q.mu.Unlock()

	go q.runAdmin()

	q.log.Info("task queue started", "worker_count", nThreads)
	return q
}

// addWorkersLocked spawns worker goroutines until the active count
// matches the configured count. Must be called with q.mu held. The
// active count is incremented before each goroutine is spawned so a
// concurrent shrink racing with this call always sees a consistent
// count, matching the source this is grounded on.
func (q *Queue) addWorkersLocked() {
	for q.numberOfActiveTaskThreads < q.numberOfTaskThreads {
		q.numberOfActiveTaskThreads++
		go q.runWorker()
	}
}

// Close cancels every pending task, waits for all workers to drain, then
// joins the admin goroutine. It blocks until every in-flight
// PerformTask call has returned. Safe to call at most once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.finish = true
	for _, record := range q.tasks {
		record.task.CancelTask()
	}
	q.workCond.Broadcast()
	q.adminCond.Broadcast()
	for q.numberOfActiveTaskThreads > 0 {
		q.termCond.Wait()
	}
	q.mu.Unlock()

	<-q.adminDone

	q.mu.Lock()
	q.tasks = nil
	q.mu.Unlock()

	q.log.Info("task queue stopped")
}

// activeWorkerCount reports how many worker goroutines are currently
// live. Used by tests to observe cooperative shrink converge.
func (q *Queue) activeWorkerCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numberOfActiveTaskThreads
}

// NumberOfTaskThreads returns the currently configured pool size.
func (q *Queue) NumberOfTaskThreads() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numberOfTaskThreads
}

// SetNumberOfTaskThreads adjusts the configured pool size. Growing spawns
// additional workers immediately; shrinking is cooperative — excess
// workers exit on their own the next time they notice the active count
// exceeds the configured count, after their current PerformTask (if any)
// returns.
func (q *Queue) SetNumberOfTaskThreads(n int) {
	q.mu.Lock()
	prev := q.numberOfTaskThreads
	q.numberOfTaskThreads = n
	q.addWorkersLocked()
	q.workCond.Broadcast()
	q.mu.Unlock()

	q.log.Info("pool resized", "previous_worker_count", prev, "worker_count", n)
}

// AddTask takes ownership of task: it installs the queue's back-reference
// and status sink on it, schedules its first run at now+task.TimeoutMS(),
// publishes its initial status row, and wakes one worker.
func (q *Queue) AddTask(task Task) {
	task.SetTaskQueue(q)

	q.mu.Lock()
	defer q.mu.Unlock()

	record := &taskRecord{
		task:    task,
		nextRun: time.Now().Add(task.TimeoutMS()),
	}
	q.tasks = append(q.tasks, record)
	q.workCond.Signal()

	q.status.add(task.TaskStatus())
	task.SetStatusChangedCallback(q)

	q.observers.notify()

	q.log.Info("task added", "task_id", task.TaskID())
}

// CancelTask requests cancellation of the task with the given ID.
// Removal from the queue is deferred to the worker that next picks it
// up, so the record is forced due now regardless of its nextRun,
// letting that pickup happen on the very next sweep instead of waiting
// out whatever delay remained. Cancelling an unknown taskID is a silent
// no-op.
func (q *Queue) CancelTask(taskID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, record := range q.tasks {
		if record.task.TaskID() == taskID {
			record.task.CancelTask()
			record.nextRun = time.Now()
			q.workCond.Broadcast()
			return
		}
	}
}

// PauseTask sets the paused flag on the task with the given ID and wakes
// every worker so the next sweep recomputes its wait estimate. Pausing
// an unknown taskID is a silent no-op.
func (q *Queue) PauseTask(taskID int64, paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, record := range q.tasks {
		if record.task.TaskID() == taskID {
			record.task.SetPaused(paused)
			q.workCond.Broadcast()
			return
		}
	}
}

// TogglePauseTask flips the paused flag on the task with the given ID.
func (q *Queue) TogglePauseTask(taskID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, record := range q.tasks {
		if record.task.TaskID() == taskID {
			record.task.SetPaused(!record.task.Paused())
			q.workCond.Broadcast()
			return
		}
	}
}

// ViewTaskStatus invokes fn with a consistent snapshot of the status
// table while holding the status lock. fn must not call back into the
// Queue.
func (q *Queue) ViewTaskStatus(fn func(statuses []TaskStatus)) {
	q.status.view(fn)
}

// AddStatusChangedCallback registers cb to be invoked after every status
// mutation and returns a token that RemoveStatusChangedCallback requires
// to unregister it again.
func (q *Queue) AddStatusChangedCallback(cb func()) CallbackToken {
	return q.observers.add(cb)
}

// RemoveStatusChangedCallback unregisters the callback registered under
// token. Removing an unknown token is a silent no-op.
func (q *Queue) RemoveStatusChangedCallback(token CallbackToken) {
	q.observers.remove(token)
}

// PublishStatus implements StatusPublisher. It is installed on every
// submitted Task so the task can push its own status updates; the queue
// preserves the row's Rev across the update and notifies observers
// regardless of whether a matching row was found (a retired task's final
// status has no row left to update, but observers still need to hear
// about it).
func (q *Queue) PublishStatus(status TaskStatus) {
	q.status.update(status)
	q.observers.notify()
}
