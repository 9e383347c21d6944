// Command workerpool wires a handful of fib.Task instances into a
// taskqueue.Queue and prints its status table until interrupted,
// demonstrating add, cancel, panic recovery, and shutdown.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackebrot/go-fibonacci"

	"github.com/go-taskqueue/taskqueue/internal/fib"
	"github.com/go-taskqueue/taskqueue/pkg/taskqueue"
)

func main() {
	workerCount := flag.Int("workers", 2, "number of task queue worker goroutines")
	threadName := flag.String("thread-name", "workerpool", "base name attached to log lines")
	flag.Parse()

	queue := taskqueue.NewQueue(*threadName, *workerCount)
	defer queue.Close()

	queue.AddStatusChangedCallback(func() {
		logStatusTable(queue)
	})

	strategy := fibonacci.NewRecursive()
	queue.AddTask(fib.NewTask(1, 10, strategy, 0, 0))                    // one-shot
	queue.AddTask(fib.NewTask(2, 12, strategy, 200*time.Millisecond, 3)) // periodic, retires after 3 runs
	queue.AddTask(fib.NewTask(3, 4, strategy, 0, 0))                     // one-shot, intentionally panics
	queue.AddTask(fib.NewTask(4, 8, strategy, 500*time.Millisecond, 0))  // periodic, unbounded until cancelled

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		slog.Info("received shutdown signal")
	case <-time.After(3 * time.Second):
		slog.Info("demo window elapsed")
		queue.CancelTask(4)
	}
}
