package taskqueue

import (
	"log/slog"
	"strconv"
	"time"
)

// runAdmin is the body of the single admin goroutine. Once a second, or
// immediately when woken by Close, it walks the task list and rewrites
// the countdown message for every record that is not currently running.
func (q *Queue) runAdmin() {
	defer close(q.adminDone)
	log := slog.Default().With("component", "taskqueue", "thread_name", "#"+q.threadName)
	log.Info("admin ticker started")

	q.mu.Lock()
	for !q.finish {
		q.waitAdminTick(adminTickInterval)
		if q.finish {
			break
		}
		q.mu.Unlock()
		log.Debug("admin tick")
		q.updateWaitingMessages()
		q.mu.Lock()
	}
	q.mu.Unlock()

	log.Info("admin ticker stopped")
}

// waitAdminTick releases q.mu and waits on the admin condvar for up to d.
// Must be called with q.mu held; returns with q.mu held again.
func (q *Queue) waitAdminTick(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.adminCond.Broadcast()
		q.mu.Unlock()
	})
	q.adminCond.Wait()
	timer.Stop()
}

// updateWaitingMessages recomputes the countdown message for every
// non-active record and notifies observers if any message actually
// changed. Acquires q.mu itself; must not be called with it held.
func (q *Queue) updateWaitingMessages() {
	changed := false

	q.mu.Lock()
	now := time.Now()
	for _, record := range q.tasks {
		if record.active {
			continue
		}
		paused := record.task.Paused()
		if record.nextRun.After(now) || paused {
			remaining := record.nextRun.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			secondsRemaining := int64(remaining / time.Second)

			message := q.countdownMessage(record, paused, secondsRemaining)
			taskID := record.task.TaskID()
			q.status.bumpRev(taskID, func(ts *TaskStatus) {
				if ts.Message != message || ts.Paused != paused {
					changed = true
				}
				ts.Paused = paused
				ts.Message = message
			})
		}
	}
	q.mu.Unlock()

	if changed {
		q.observers.notify()
	}
}

// countdownMessage implements the three message rules: paused, due now,
// or the task's own prefix plus the remaining whole seconds.
func (q *Queue) countdownMessage(record *taskRecord, paused bool, secondsRemaining int64) string {
	switch {
	case paused:
		return "Paused."
	case secondsRemaining == 0:
		return "Waiting for thread."
	default:
		return record.task.TimeoutMessage() + strconv.FormatInt(secondsRemaining, 10)
	}
}
