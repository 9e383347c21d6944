package taskqueue

import "time"

// runWorker is the body of one worker goroutine. It runs almost entirely
// under q.mu; the only exceptions are while it runs PerformTask, while
// retireLocked publishes a retired task's final status, and while it
// waits out the sweep-end delay, all of which release the lock. Tasks are scanned in insertion order starting from
// nextTaskIndex; the first runnable one seen in a sweep wins this
// worker, and the active flag on a taskRecord guarantees at most one
// worker ever runs a given task concurrently.
func (q *Queue) runWorker() {
	q.mu.Lock()

	for {
		if q.finish {
			break
		}

		// Cooperative shrink: if the pool was resized down, excess
		// workers exit here voluntarily rather than being stopped.
		if q.numberOfActiveTaskThreads > q.numberOfTaskThreads {
			break
		}

		if q.nextTaskIndex < len(q.tasks) {
			record := q.tasks[q.nextTaskIndex]
			q.nextTaskIndex++

			if record.active || record.task.Paused() {
				continue
			}

			delay := time.Until(record.nextRun)
			if delay < q.waitFor {
				q.waitFor = delay
			}
			if delay > 0 {
				continue
			}

			record.active = true
			q.workDone = true
			q.mu.Unlock()
			runAgain := q.safePerformTask(record.task)
			q.mu.Lock()

			if record.task.TimeoutMS() <= 0 || runAgain == RunAgainNo {
				q.retireLocked(record)
			} else {
				if record.task.TimeoutMS() > 0 {
					record.nextRun = time.Now().Add(record.task.TimeoutMS())
				}
				record.active = false
			}
			continue
		}

		// End of sweep: restart the scan, and sleep for the shortest
		// delay observed this sweep unless some task actually ran (in
		// which case another ready one may exist right now).
		q.nextTaskIndex = 0
		w := q.waitFor
		q.waitFor = noDeadline

		if !q.workDone {
			q.waitLocked(w)
		} else {
			q.workDone = false
		}
	}

	q.numberOfActiveTaskThreads--
	q.termCond.Broadcast()
	q.mu.Unlock()
}

// safePerformTask calls task.PerformTask, treating a panic as RunAgainNo
// per the "defensive boundary" failure semantics: performTask is
// contractually expected to return normally, but a worker that lets a
// client panic escape would take down the whole pool.
func (q *Queue) safePerformTask(task Task) (runAgain RunAgain) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("task panicked", "task_id", task.TaskID(), "recovered", r)
			runAgain = RunAgainNo
		}
	}()
	return task.PerformTask()
}

// retireLocked removes record from the task list and status table and
// publishes its final, complete status. Must be called with q.mu held;
// it releases and reacquires the lock around the task's own status
// publish, per the release-lock-to-publish step in the retirement
// protocol.
func (q *Queue) retireLocked(record *taskRecord) {
	idx := -1
	for i, r := range q.tasks {
		if r == record {
			idx = i
			break
		}
	}
	if idx >= 0 {
		if idx < q.nextTaskIndex {
			q.nextTaskIndex--
		}
		q.tasks = append(q.tasks[:idx], q.tasks[idx+1:]...)
	}
	q.status.remove(record.task.TaskID())

	q.mu.Unlock()
	q.PublishStatus(finalizeStatus(record.task.TaskStatus()))
	q.log.Info("task retired", "task_id", record.task.TaskID())
	q.mu.Lock()
}

// finalizeStatus marks status complete. Factored out so the retirement
// protocol's "publish a final status with complete = true" step is
// directly unit-testable.
func finalizeStatus(status TaskStatus) TaskStatus {
	status.Complete = true
	return status
}

// waitLocked releases q.mu and waits on the work condvar for up to d, or
// indefinitely if d is noDeadline. Must be called with q.mu held; returns
// with q.mu held again. Go's timer APIs don't treat a negative duration
// as "return immediately" the way the source this is modeled on relies
// on, so callers rely on this clamping it to zero.
func (q *Queue) waitLocked(d time.Duration) {
	if d == noDeadline {
		q.workCond.Wait()
		return
	}
	if d < 0 {
		d = 0
	}

	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.workCond.Broadcast()
		q.mu.Unlock()
	})
	q.workCond.Wait()
	timer.Stop()
}
