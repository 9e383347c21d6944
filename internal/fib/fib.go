// Package fib provides a sample taskqueue.Task implementation used by
// cmd/workerpool to exercise a Queue end to end.
package fib

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hackebrot/go-fibonacci"

	"github.com/go-taskqueue/taskqueue/pkg/taskqueue"
)

// Task computes the nth Fibonacci number on a schedule. It exercises the
// full taskqueue.Task contract: periodic or one-shot execution, pause,
// cooperative cancellation, and status publishing.
type Task struct {
	id        int64
	n         int
	strategy  fibonacci.Strategy
	timeoutMS time.Duration

	// maxRuns caps how many times a periodic task reruns before retiring
	// itself with RunAgainNo. Zero means unlimited; ignored for one-shot
	// tasks, which always retire after their first run regardless.
	maxRuns int

	mu         sync.Mutex
	paused     bool
	cancelled  bool
	runs       int
	lastResult int

	pub taskqueue.StatusPublisher
}

// NewTask creates a task that computes fib(n). A timeoutMS of zero makes
// it one-shot; a positive value makes it rerun that often, up to maxRuns
// times (zero for unlimited).
func NewTask(id int64, n int, strategy fibonacci.Strategy, timeoutMS time.Duration, maxRuns int) *Task {
	return &Task{
		id:        id,
		n:         n,
		strategy:  strategy,
		timeoutMS: timeoutMS,
		maxRuns:   maxRuns,
	}
}

// TaskID returns the task's stable identifier.
func (t *Task) TaskID() int64 { return t.id }

// TimeoutMS returns the task's configured period.
func (t *Task) TimeoutMS() time.Duration { return t.timeoutMS }

// Paused reports the current pause flag.
func (t *Task) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// SetPaused sets the pause flag and publishes the change.
func (t *Task) SetPaused(paused bool) {
	t.mu.Lock()
	t.paused = paused
	t.mu.Unlock()
	t.publish()
}

// CancelTask asks the task to retire at the end of its current or next
// PerformTask call.
func (t *Task) CancelTask() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

// PerformTask computes fib(n). n == 4 is an intentional failure,
// triggered as a panic to exercise the queue's recovery boundary since
// PerformTask has no error return of its own.
func (t *Task) PerformTask() taskqueue.RunAgain {
	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()
	if cancelled {
		return taskqueue.RunAgainNo
	}

	slog.Info("computing fibonacci", "task_id", t.id, "n", t.n)

	if t.n == 4 {
		panic(fmt.Sprintf("computation failed: n=%d is not supported", t.n))
	}

	result := t.strategy.Compute(t.n)

	t.mu.Lock()
	t.lastResult = result
	t.runs++
	runs := t.runs
	cancelled = t.cancelled
	t.mu.Unlock()

	slog.Info("computation complete", "task_id", t.id, "n", t.n, "result", result)
	t.publish()

	if cancelled {
		return taskqueue.RunAgainNo
	}
	if t.maxRuns > 0 && runs >= t.maxRuns {
		return taskqueue.RunAgainNo
	}
	return taskqueue.RunAgainYes
}

// TaskStatus returns the task's current status snapshot.
func (t *Task) TaskStatus() taskqueue.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Task) statusLocked() taskqueue.TaskStatus {
	return taskqueue.TaskStatus{
		TaskID:  t.id,
		Message: fmt.Sprintf("fib(%d) = %d after %d run(s)", t.n, t.lastResult, t.runs),
		Paused:  t.paused,
	}
}

// TimeoutMessage returns the user-facing countdown prefix.
func (t *Task) TimeoutMessage() string {
	return fmt.Sprintf("Next fib(%d) run in ", t.n)
}

// SetStatusChangedCallback installs the sink the task uses to push
// status updates.
func (t *Task) SetStatusChangedCallback(pub taskqueue.StatusPublisher) {
	t.mu.Lock()
	t.pub = pub
	t.mu.Unlock()
}

// SetTaskQueue installs the task's non-owning back-reference to its
// queue. Task never calls back into its queue, so the reference is
// discarded.
func (t *Task) SetTaskQueue(q taskqueue.TaskQueueHandle) {
	_ = q
}

func (t *Task) publish() {
	t.mu.Lock()
	pub := t.pub
	status := t.statusLocked()
	t.mu.Unlock()

	if pub != nil {
		pub.PublishStatus(status)
	}
}

var _ taskqueue.Task = (*Task)(nil)
