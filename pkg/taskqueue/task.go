package taskqueue

import "time"

// RunAgain is returned by Task.PerformTask to tell the queue whether the
// task should be rescheduled.
type RunAgain bool

const (
	// RunAgainNo retires the task regardless of its TimeoutMS.
	RunAgainNo RunAgain = false

	// RunAgainYes reschedules the task if its TimeoutMS is greater than zero.
	RunAgainYes RunAgain = true
)

// StatusPublisher is the sink a Task pushes status updates through. The
// queue implements it and installs itself on every submitted Task via
// Task.SetStatusChangedCallback, so a task never captures queue internals
// directly.
type StatusPublisher interface {
	// PublishStatus records status for the given task, preserving the
	// revision counter the queue owns, and notifies observers.
	PublishStatus(status TaskStatus)
}

// TaskQueueHandle is the narrow, non-owning back-reference a Task is given
// on submission (Task.SetTaskQueue). It exposes only what a task needs to
// act on itself, never the full queue surface.
type TaskQueueHandle interface {
	// CancelTask requests early termination of the task with the given ID.
	CancelTask(taskID int64)
}

// Task is the capability contract a client must implement to submit work
// to a Queue. Implementations are supplied by the client; the queue only
// ever calls these methods, never a concrete type.
type Task interface {
	// TaskID returns a stable identifier, unique among tasks live in a
	// single Queue, assigned by the client before submission.
	TaskID() int64

	// TimeoutMS returns the task's period. Zero means one-shot: the task
	// runs once and retires regardless of what PerformTask returns.
	// Greater than zero means periodic: the task reruns this long after
	// the previous run finished.
	TimeoutMS() time.Duration

	// Paused reports whether the scheduler should currently skip this task.
	Paused() bool

	// SetPaused sets the pause flag the scheduler honors.
	SetPaused(paused bool)

	// CancelTask asks the task to make its next PerformTask return
	// RunAgainNo promptly. Advisory; the queue does not forcibly stop a
	// running PerformTask.
	CancelTask()

	// PerformTask does the actual work. It may block, and is always
	// invoked with no queue locks held. It must return normally; a panic
	// is treated as RunAgainNo by the worker that calls it.
	PerformTask() RunAgain

	// TaskStatus returns the task's current status snapshot.
	TaskStatus() TaskStatus

	// TimeoutMessage returns the user-facing prefix for countdown text,
	// e.g. "Next run in ".
	TimeoutMessage() string

	// SetStatusChangedCallback installs the sink the task uses to push
	// status updates to the queue. Called once, at submission.
	SetStatusChangedCallback(pub StatusPublisher)

	// SetTaskQueue installs the task's non-owning back-reference to its
	// queue. Called once, at submission, before the task is scheduled.
	SetTaskQueue(q TaskQueueHandle)
}

// TaskStatus is an observable snapshot of a task's state. The queue owns
// Rev and re-stamps it on every task-driven update, so Rev is always
// strictly non-decreasing for a given TaskID regardless of what a task
// reports.
type TaskStatus struct {
	TaskID   int64
	Message  string
	Paused   bool
	Complete bool
	Rev      int64

	// Extra carries opaque, client-defined fields through the status
	// table untouched. The queue never reads or writes it.
	Extra any
}
