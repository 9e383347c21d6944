package main

import (
	"log/slog"

	"github.com/go-taskqueue/taskqueue/pkg/taskqueue"
)

// logStatusTable prints a summary line per task in the queue's current
// status table. Invoked on every status-changed notification.
func logStatusTable(queue *taskqueue.Queue) {
	queue.ViewTaskStatus(func(statuses []taskqueue.TaskStatus) {
		for _, s := range statuses {
			slog.Info("status changed",
				"task_id", s.TaskID,
				"message", s.Message,
				"paused", s.Paused,
				"complete", s.Complete,
				"rev", s.Rev,
			)
		}
	})
}
