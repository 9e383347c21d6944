package taskqueue

import "sync"

// statusTable is the guarded, observable table of TaskStatus rows. It is
// its own concern, separate from the primary scheduling lock, matching
// the two-mutex split in the source this queue is modeled on: a task's
// status can be read or updated without ever touching the scheduling lock.
type statusTable struct {
	mu   sync.Mutex
	rows []TaskStatus
}

// add appends the initial status row for a newly submitted task.
func (t *statusTable) add(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, status)
}

// update overwrites the row matching status.TaskID with status, preserving
// the row's existing Rev. It reports whether a matching row was found.
func (t *statusTable) update(status TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].TaskID == status.TaskID {
			rev := t.rows[i].Rev
			status.Rev = rev
			t.rows[i] = status
			return true
		}
	}
	return false
}

// bumpRev applies mutate to the row matching taskID and then increments
// its Rev. Used whenever the queue itself mutates a row (e.g. the admin
// ticker rewriting Message) so Rev still advances. It reports whether a
// matching row was found.
func (t *statusTable) bumpRev(taskID int64, mutate func(*TaskStatus)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].TaskID == taskID {
			mutate(&t.rows[i])
			t.rows[i].Rev++
			return true
		}
	}
	return false
}

// remove deletes the row matching taskID, if present.
func (t *statusTable) remove(taskID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].TaskID == taskID {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return
		}
	}
}

// view invokes fn with a snapshot copy of the table under the status
// lock. fn must not call back into the queue.
func (t *statusTable) view(fn func(statuses []TaskStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make([]TaskStatus, len(t.rows))
	copy(snapshot, t.rows)
	fn(snapshot)
}
