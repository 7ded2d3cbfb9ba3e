package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/pipeline"
)

func testBuildJob(task string) build.BuildJob {
	return build.BuildJob{
		Email:       "dev@example.com",
		Task:        task,
		Round:       1,
		Nonce:       "abc123",
		Brief:       "Build a counter app with increment and decrement buttons",
		Checks:      []string{"page loads"},
		CallbackURL: "https://evaluator.example.com/notify",
	}
}

func TestSubmit_RejectsDuplicateInFlightTask(t *testing.T) {
	d := testDaemon(t, testConfig(t))

	_, err := d.Submit(testBuildJob("counter-v1"))
	require.NoError(t, err)

	_, err = d.Submit(testBuildJob("counter-v1"))
	require.ErrorIs(t, err, ErrDuplicateTask)

	// A different task is independent.
	_, err = d.Submit(testBuildJob("other-task"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.ActiveBuilds())
}

func TestSubmit_TaskReusableAfterCompletion(t *testing.T) {
	d := testDaemon(t, testConfig(t))

	tracked, err := d.Submit(testBuildJob("counter-v1"))
	require.NoError(t, err)

	// Worker finishes the job.
	<-d.queue
	d.release(tracked.Job.Task)
	tracked.finish(pipeline.Result{State: pipeline.StateDone})

	_, err = d.Submit(testBuildJob("counter-v1"))
	require.NoError(t, err, "a finished task frees its slot")
}

func TestSubmit_RejectedWhenStopped(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	d.accepted = false

	_, err := d.Submit(testBuildJob("counter-v1"))
	require.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_QueueFullReleasesInFlightSlot(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	d.queue = make(chan *TrackedJob, 1)

	_, err := d.Submit(testBuildJob("first"))
	require.NoError(t, err)

	_, err = d.Submit(testBuildJob("second"))
	require.ErrorIs(t, err, ErrQueueFull)

	// The rejected task must not be stuck in the in-flight set.
	assert.Equal(t, 1, d.ActiveBuilds())
}

func TestTrackedJob_WaitReturnsResult(t *testing.T) {
	tracked := newTrackedJob(testBuildJob("counter-v1"))
	assert.NotEmpty(t, tracked.ID)

	go tracked.finish(pipeline.Result{State: pipeline.StateDone})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := tracked.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, res.State)
}

func TestTrackedJob_WaitHonoursContext(t *testing.T) {
	tracked := newTrackedJob(testBuildJob("counter-v1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tracked.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerGroup_StopAndWait(t *testing.T) {
	var g workerGroup
	started := make(chan struct{})
	release := make(chan struct{})

	ok := g.Go(func() {
		close(started)
		<-release
	})
	require.True(t, ok)
	<-started

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.StopAndWait(ctx))

	// No new workers after stop.
	assert.False(t, g.Go(func() {}))
}

func TestWorkerGroup_StopTimesOut(t *testing.T) {
	var g workerGroup
	release := make(chan struct{})
	g.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.StopAndWait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
