package worker

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Job is a unit of background work, e.g. publishing a project's final cut to
// the video platform.
type Job interface {
	Execute() error
	ID() string
}

// Dispatcher runs jobs on a fixed pool of workers fed from one buffered
// queue. Submission never blocks the HTTP handler; a full queue is reported
// back to the caller instead.
type Dispatcher struct {
	jobQueue chan Job
	workers  int
	logger   *logrus.Logger
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a dispatcher with the given worker count and queue
// capacity.
func NewDispatcher(workers, queueSize int, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		jobQueue: make(chan Job, queueSize),
		workers:  workers,
		logger:   logger,
	}
}

// Run starts the worker goroutines.
func (d *Dispatcher) Run() {
	for i := 1; i <= d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	d.logger.WithField("workers", d.workers).Info("Dispatcher running")
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	for job := range d.jobQueue {
		d.logger.WithFields(logrus.Fields{"worker": id, "job_id": job.ID()}).Info("Job started")
		if err := job.Execute(); err != nil {
			d.logger.WithFields(logrus.Fields{"worker": id, "job_id": job.ID(), "error": err.Error()}).Error("Job failed")
			continue
		}
		d.logger.WithFields(logrus.Fields{"worker": id, "job_id": job.ID()}).Info("Job finished")
	}
}

// Submit enqueues a job. Returns false when the dispatcher is stopped or the
// queue is full.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	select {
	case d.jobQueue <- job:
		return true
	default:
		d.logger.WithField("job_id", job.ID()).Warn("Job queue full, submission rejected")
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}
