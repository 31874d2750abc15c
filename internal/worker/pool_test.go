package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	id      string
	counter *int32
	fail    bool
	block   chan struct{}
}

func (j *countingJob) ID() string { return j.id }

func (j *countingJob) Execute() error {
	if j.block != nil {
		<-j.block
	}
	atomic.AddInt32(j.counter, 1)
	if j.fail {
		return errors.New("job failed")
	}
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	d := NewDispatcher(3, 16, quietLogger())
	d.Run()

	var counter int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Submit(&countingJob{id: "job", counter: &counter}))
	}
	d.Stop()

	assert.Equal(t, int32(10), atomic.LoadInt32(&counter))
}

func TestFailingJobDoesNotStopWorkers(t *testing.T) {
	d := NewDispatcher(1, 8, quietLogger())
	d.Run()

	var counter int32
	require.True(t, d.Submit(&countingJob{id: "bad", counter: &counter, fail: true}))
	require.True(t, d.Submit(&countingJob{id: "good", counter: &counter}))
	d.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&counter))
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, quietLogger())
	d.Run()

	var counter int32
	gate := make(chan struct{})

	// First job occupies the worker, second fills the queue.
	require.True(t, d.Submit(&countingJob{id: "running", counter: &counter, block: gate}))
	// Give the worker time to pick the first job up.
	time.Sleep(50 * time.Millisecond)
	require.True(t, d.Submit(&countingJob{id: "queued", counter: &counter}))

	assert.False(t, d.Submit(&countingJob{id: "overflow", counter: &counter}))

	close(gate)
	d.Stop()
	assert.Equal(t, int32(2), atomic.LoadInt32(&counter))
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	d := NewDispatcher(1, 4, quietLogger())
	d.Run()
	d.Stop()

	var counter int32
	assert.False(t, d.Submit(&countingJob{id: "late", counter: &counter}))
	// Stop twice is safe.
	d.Stop()
}

func TestStopWaitsForInFlightJobs(t *testing.T) {
	d := NewDispatcher(2, 8, quietLogger())
	d.Run()

	var counter int32
	gate := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()

	require.True(t, d.Submit(&countingJob{id: "slow", counter: &counter, block: gate}))
	d.Stop()
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&counter))
}
