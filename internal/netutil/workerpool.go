// Package netutil holds transport-level helpers shared by the session
// server: a bounded worker pool for connection handling, generalized from
// the teacher's single-message-per-task pool (internal/worker.go) to
// long-lived per-connection tasks (one task runs for the life of a TCP
// connection rather than one message at a time).
package netutil

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction is the unit of work a pool worker executes. It owns the
// task (here, a net.Conn) until the connection closes or the tomb dies.
type WorkerFunction func(t *tomb.Tomb, task any) error

// WorkerPool bounds the number of connections handled concurrently.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
	log   zerolog.Logger
}

func NewWorkerPool(size int, log zerolog.Logger) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
		log:   log.With().Str("component", "workerpool").Logger(),
	}
}

// AddTask enqueues a new task (typically a net.Conn) for a free worker.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup starts exactly n worker goroutines under t; each one loops, taking
// the next task once its current one completes, until t dies.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	pool.log.Info().Int("size", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error { return pool.loop(t) })
	}
}

func (pool *WorkerPool) loop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				pool.log.Warn().Err(err).Msg("worker task exited with error")
			}
		}
	}
}
