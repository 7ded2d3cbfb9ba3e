// Package pipeline sequences the build steps for one accepted job:
// generate code, generate docs, create or reuse the repository, inject
// the license, publish one atomic commit, activate static hosting, and
// notify the callback endpoint. Any step failure short-circuits the rest
// and routes to a single failure-notification path; nothing escapes the
// detached unit of work.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/events"
	"git.home.luguber.info/inful/appforge/internal/forge"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
)

// State names one position in the build state machine.
type State string

const (
	StateAccepted          State = "accepted"
	StateGenerating        State = "generating"
	StateDocumentingReadme State = "documenting_readme"
	StateCreatingRepo      State = "creating_repo"
	StateLicensing         State = "licensing"
	StatePublishing        State = "publishing"
	StateActivatingSite    State = "activating_site"
	StateNotifyingSuccess  State = "notifying_success"
	StateNotifyingFailure  State = "notifying_failure"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Generator produces application content from a brief.
type Generator interface {
	GenerateAppCode(ctx context.Context, task, brief string, checks []string, attachments []build.Attachment) (build.FileMap, error)
	GenerateReadme(ctx context.Context, task, brief string, checks []string, files build.FileMap) (string, error)
}

// Publisher performs the repository-side steps.
type Publisher interface {
	CreateOrReuse(ctx context.Context, name, description string) (*forge.Repository, error)
	EnsureLicense(ctx context.Context, repo *forge.Repository) error
	Publish(ctx context.Context, repo *forge.Repository, files build.FileMap, readme, message string) (string, error)
	ActivateSite(ctx context.Context, repo *forge.Repository, maxPollAttempts int) (string, error)
}

// Notifier delivers outcome payloads. The boolean reports delivery;
// delivery failure is never an error.
type Notifier interface {
	NotifySuccess(ctx context.Context, job build.BuildJob, res build.DeploymentResult) bool
	NotifyFailure(ctx context.Context, job build.BuildJob, errText string) bool
}

// Pipeline owns the collaborators shared by all jobs. It holds no
// per-job state; each Run carries its job end-to-end.
type Pipeline struct {
	gen      Generator
	pub      Publisher
	notifier Notifier
	hist     history.Store
	events   events.Publisher
	recorder metrics.Recorder

	pagesPollAttempts int
}

// Options configures a Pipeline.
type Options struct {
	Generator         Generator
	Publisher         Publisher
	Notifier          Notifier
	History           history.Store
	Events            events.Publisher
	Recorder          metrics.Recorder
	PagesPollAttempts int
}

// New wires a Pipeline. History, events and metrics default to no-ops
// when absent.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		gen:               opts.Generator,
		pub:               opts.Publisher,
		notifier:          opts.Notifier,
		hist:              opts.History,
		events:            opts.Events,
		recorder:          opts.Recorder,
		pagesPollAttempts: opts.PagesPollAttempts,
	}
	if p.hist == nil {
		p.hist = history.NoopStore{}
	}
	if p.events == nil {
		p.events = events.NoopPublisher{}
	}
	if p.recorder == nil {
		p.recorder = metrics.NoopRecorder{}
	}
	if p.pagesPollAttempts <= 0 {
		p.pagesPollAttempts = 10
	}
	return p
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	State      State
	Deployment *build.DeploymentResult
	Err        error
}

// Run executes the full pipeline for one job and always returns a
// terminal Result, StateDone or StateFailed. Failures are captured
// centrally and trigger exactly one failure notification.
func (p *Pipeline) Run(ctx context.Context, job build.BuildJob) Result {
	runID := uuid.NewString()
	log := slog.With(logfields.Task(job.Task), logfields.Round(job.Round), logfields.RunID(runID))
	start := time.Now()

	log.Info("build accepted, starting pipeline")
	p.record(ctx, job, StateAccepted, "started", "")

	res := p.run(ctx, job, log)

	p.recorder.ObserveBuildDuration(time.Since(start))
	if res.State == StateDone {
		p.recorder.IncBuildOutcome("done")
		log.Info("pipeline completed",
			logfields.URL(res.Deployment.PagesURL),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	} else {
		p.recorder.IncBuildOutcome("failed")
		log.Error("pipeline failed",
			logfields.Error(res.Err),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, job build.BuildJob, log *slog.Logger) (res Result) {
	// A detached job must never crash the process: a panic in any step is
	// captured like any other failure.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			log.Error("panic in pipeline", logfields.Error(err))
			res = p.fail(ctx, job, StateFailed, err)
		}
	}()

	var files build.FileMap
	if err := p.step(ctx, job, log, StateGenerating, func() error {
		var err error
		files, err = p.gen.GenerateAppCode(ctx, job.Task, job.Brief, job.Checks, job.Attachments)
		return err
	}); err != nil {
		return p.fail(ctx, job, StateGenerating, err)
	}

	var readme string
	if err := p.step(ctx, job, log, StateDocumentingReadme, func() error {
		var err error
		readme, err = p.gen.GenerateReadme(ctx, job.Task, job.Brief, job.Checks, files)
		return err
	}); err != nil {
		return p.fail(ctx, job, StateDocumentingReadme, err)
	}

	var repo *forge.Repository
	if err := p.step(ctx, job, log, StateCreatingRepo, func() error {
		var err error
		repo, err = p.pub.CreateOrReuse(ctx, job.Task, "Auto-generated app: "+truncate(job.Brief, 100))
		return err
	}); err != nil {
		return p.fail(ctx, job, StateCreatingRepo, err)
	}

	if err := p.step(ctx, job, log, StateLicensing, func() error {
		return p.pub.EnsureLicense(ctx, repo)
	}); err != nil {
		return p.fail(ctx, job, StateLicensing, err)
	}

	deployment := build.DeploymentResult{RepoURL: repo.HTMLURL}

	if err := p.step(ctx, job, log, StatePublishing, func() error {
		message := fmt.Sprintf("Round %d: %s", job.Round, truncate(job.Brief, 50))
		sha, err := p.pub.Publish(ctx, repo, files, readme, message)
		if err != nil {
			return err
		}
		deployment.CommitSHA = sha
		return nil
	}); err != nil {
		return p.fail(ctx, job, StatePublishing, err)
	}

	if err := p.step(ctx, job, log, StateActivatingSite, func() error {
		url, err := p.pub.ActivateSite(ctx, repo, p.pagesPollAttempts)
		if err != nil {
			return err
		}
		deployment.PagesURL = url
		return nil
	}); err != nil {
		return p.fail(ctx, job, StateActivatingSite, err)
	}

	// Success notification is best-effort terminal: an undeliverable
	// callback does not fail a deployed build.
	p.record(ctx, job, StateNotifyingSuccess, "started", "")
	if delivered := p.notifier.NotifySuccess(ctx, job, deployment); !delivered {
		log.Warn("success callback not delivered")
		p.record(ctx, job, StateNotifyingSuccess, "warning", "callback not delivered")
	} else {
		p.record(ctx, job, StateNotifyingSuccess, "success", "")
	}

	p.record(ctx, job, StateDone, "success", "")
	return Result{State: StateDone, Deployment: &deployment}
}

// step runs one stage with timing, logging and bookkeeping.
func (p *Pipeline) step(ctx context.Context, job build.BuildJob, log *slog.Logger, state State, fn func() error) error {
	log.Info("stage started", logfields.Stage(string(state)))
	p.record(ctx, job, state, "started", "")
	start := time.Now()

	err := fn()
	d := time.Since(start)
	p.recorder.ObserveStageDuration(string(state), d)

	if err != nil {
		p.recorder.IncStageResult(string(state), metrics.ResultFailed)
		p.record(ctx, job, state, "failed", err.Error())
		return err
	}

	p.recorder.IncStageResult(string(state), metrics.ResultSuccess)
	p.record(ctx, job, state, "success", "")
	log.Info("stage completed", logfields.Stage(string(state)), logfields.DurationMS(float64(d.Milliseconds())))
	return nil
}

// fail captures a step failure: one best-effort failure notification,
// then the terminal Failed state. There is no rollback; a repository or
// commit created before the failure is real partial progress and stays.
func (p *Pipeline) fail(ctx context.Context, job build.BuildJob, at State, err error) Result {
	p.record(ctx, job, StateNotifyingFailure, "started", "")
	if delivered := p.notifier.NotifyFailure(ctx, job, err.Error()); !delivered {
		p.record(ctx, job, StateNotifyingFailure, "warning", "callback not delivered")
	} else {
		p.record(ctx, job, StateNotifyingFailure, "success", "")
	}
	p.record(ctx, job, StateFailed, "failed", fmt.Sprintf("at %s: %v", at, err))
	return Result{State: StateFailed, Err: err}
}

// record persists one lifecycle transition to history and the event
// stream. Both are telemetry; failures are logged and swallowed.
func (p *Pipeline) record(ctx context.Context, job build.BuildJob, state State, status, detail string) {
	ev := history.Event{
		Task:      job.Task,
		Round:     job.Round,
		Stage:     string(state),
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	if err := p.hist.Append(ctx, ev); err != nil {
		slog.Warn("failed to record build event", logfields.Task(job.Task), logfields.Error(err))
	}
	p.events.Publish(events.BuildEvent{
		Task:      job.Task,
		Round:     job.Round,
		Stage:     string(state),
		Status:    status,
		Error:     detail,
		Timestamp: ev.Timestamp,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
