package daemon

import (
	"context"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/appforge/internal/build"
	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/pipeline"
)

// Submission errors returned by Daemon.Submit. The HTTP layer maps them
// to response codes.
var (
	ErrDuplicateTask = apperrors.New(apperrors.CategoryValidation, "a build for this task is already in flight")
	ErrQueueFull     = apperrors.New(apperrors.CategoryInternal, "build queue is full")
	ErrStopped       = apperrors.New(apperrors.CategoryInternal, "daemon is not accepting builds")
)

// TrackedJob is the handle returned when a build is accepted. The caller
// got its HTTP response long ago; the handle exists for the one-shot CLI
// and for tests that need to await the detached outcome.
type TrackedJob struct {
	ID  string
	Job build.BuildJob

	done   chan struct{}
	result pipeline.Result
}

func newTrackedJob(job build.BuildJob) *TrackedJob {
	return &TrackedJob{
		ID:   uuid.NewString(),
		Job:  job,
		done: make(chan struct{}),
	}
}

// finish records the terminal result exactly once.
func (t *TrackedJob) finish(res pipeline.Result) {
	t.result = res
	close(t.done)
}

// Done is closed when the build reaches a terminal state.
func (t *TrackedJob) Done() <-chan struct{} { return t.done }

// Wait blocks until the build finishes or ctx expires.
func (t *TrackedJob) Wait(ctx context.Context) (pipeline.Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}
}

// Result returns the terminal result. Valid only after Done is closed.
func (t *TrackedJob) Result() pipeline.Result { return t.result }
