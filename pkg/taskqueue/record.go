package taskqueue

import "time"

// taskRecord is the queue's internal wrapper around exactly one client
// Task, plus the scheduling metadata the queue needs to decide when the
// task next runs. The queue exclusively owns every record; workers only
// touch one under the primary lock, or while active is true.
type taskRecord struct {
	task    Task
	nextRun time.Time
	active  bool
}
