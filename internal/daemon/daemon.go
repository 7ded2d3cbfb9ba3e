// Package daemon runs the appforge service: it accepts build requests
// over HTTP, enqueues them, and executes each through the pipeline on a
// bounded worker pool. The HTTP response is sent on acceptance; the
// pipeline runs detached and reports through the callback URL.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/events"
	"git.home.luguber.info/inful/appforge/internal/forge"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/llm"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/notify"
	"git.home.luguber.info/inful/appforge/internal/pipeline"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

// Daemon is the long-running service instance.
type Daemon struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	recorder *metrics.PrometheusRecorder
	hist     history.Store
	events   events.Publisher

	httpServer *http.Server
	janitor    *janitor
	watcher    *configWatcher
	logLevel   *slog.LevelVar

	queue   chan *TrackedJob
	workers workerGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	accepted bool

	runCtx    context.Context
	runCancel context.CancelFunc
	startTime time.Time
}

// New wires a Daemon from configuration. The log level var, when
// non-nil, is hot-reloaded by the config watcher.
func New(cfg *config.Config, logLevel *slog.LevelVar) (*Daemon, error) {
	recorder := metrics.NewPrometheusRecorder(nil)

	var hist history.Store = history.NoopStore{}
	if cfg.History.Enabled {
		s, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		hist = s
	}

	var pub events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			// Event publishing is telemetry; a dead broker must not keep
			// the service from starting.
			slog.Warn("event publishing disabled", logfields.Error(err))
		} else {
			pub = p
		}
	}

	gemini, err := llm.NewGeminiClient(llm.GeminiOptions{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	generator := llm.NewGenerator(gemini, retry.New(policy(cfg.Retry.LLM), recorder), cfg.GitHub.Username)

	client, err := forge.NewClient(forge.ClientOptions{
		Token:   cfg.GitHub.Token,
		Owner:   cfg.GitHub.Username,
		APIURL:  cfg.GitHub.APIURL,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	publisher := forge.NewPublisher(forge.PublisherOptions{
		Client:       client,
		Executor:     retry.New(policy(cfg.Retry.Forge), recorder),
		SettleDelay:  cfg.Pages.SettleDelay.Std(),
		PollInterval: cfg.Pages.PollInterval.Std(),
	})

	notifier := notify.NewNotifier(retry.New(policy(cfg.Retry.Notify), recorder), nil, recorder)

	pl := pipeline.New(pipeline.Options{
		Generator:         generator,
		Publisher:         publisher,
		Notifier:          notifier,
		History:           hist,
		Events:            pub,
		Recorder:          recorder,
		PagesPollAttempts: cfg.Pages.PollAttempts,
	})

	d := &Daemon{
		cfg:      cfg,
		pipeline: pl,
		recorder: recorder,
		hist:     hist,
		events:   pub,
		logLevel: logLevel,
		queue:    make(chan *TrackedJob, cfg.Server.QueueSize),
		inflight: make(map[string]struct{}),
	}
	d.httpServer = newHTTPServer(cfg, d)
	return d, nil
}

func policy(pc config.PolicyConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: pc.MaxAttempts,
		Initial:     pc.InitialDelay.Std(),
		Max:         pc.MaxDelay.Std(),
	}
}

// Start launches the worker pool, the janitor and the HTTP listener.
// It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	d.runCtx, d.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	d.startTime = time.Now()

	d.mu.Lock()
	d.accepted = true
	d.mu.Unlock()

	for i := 0; i < d.cfg.Server.Workers; i++ {
		d.workers.Go(func() { d.workerLoop(d.runCtx) })
	}
	slog.Info("worker pool started", "workers", d.cfg.Server.Workers, "queue_size", d.cfg.Server.QueueSize)

	if d.cfg.History.Enabled {
		j, err := newJanitor(d.hist, d.cfg.History.Retention.Std(), d.cfg.History.PruneEvery.Std())
		if err != nil {
			return err
		}
		d.janitor = j
		d.janitor.Start()
	}

	go func() {
		slog.Info("http server listening", "addr", d.cfg.Server.Host, "port", d.cfg.Server.Port)
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server exited", logfields.Error(err))
		}
	}()

	return nil
}

// WatchConfig starts hot-reloading the log level from the config file.
func (d *Daemon) WatchConfig(configPath string) error {
	w, err := newConfigWatcher(configPath, d.logLevel)
	if err != nil {
		return err
	}
	d.watcher = w
	return w.Start(d.runCtx)
}

// Stop drains the daemon: no new submissions, finish queued work within
// the deadline, then release resources.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.accepted = false
	d.mu.Unlock()

	if err := d.httpServer.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown incomplete", logfields.Error(err))
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.janitor != nil {
		if err := d.janitor.Stop(); err != nil {
			slog.Warn("janitor shutdown failed", logfields.Error(err))
		}
	}

	close(d.queue)
	err := d.workers.StopAndWait(ctx)
	// Cancels any job still running past the deadline.
	d.runCancel()

	d.events.Close()
	if cerr := d.hist.Close(); cerr != nil {
		slog.Warn("history store close failed", logfields.Error(cerr))
	}
	return err
}

// Submit accepts one build for detached execution. A second build for a
// task already in flight is rejected so two pipelines never race on the
// same repository.
func (d *Daemon) Submit(job build.BuildJob) (*TrackedJob, error) {
	d.mu.Lock()
	if !d.accepted {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	if _, busy := d.inflight[job.Task]; busy {
		d.mu.Unlock()
		return nil, ErrDuplicateTask
	}
	d.inflight[job.Task] = struct{}{}
	d.mu.Unlock()

	tracked := newTrackedJob(job)
	select {
	case d.queue <- tracked:
		slog.Info("build queued", logfields.Task(job.Task), logfields.Round(job.Round))
		return tracked, nil
	default:
		d.release(job.Task)
		return nil, ErrQueueFull
	}
}

func (d *Daemon) release(task string) {
	d.mu.Lock()
	delete(d.inflight, task)
	d.mu.Unlock()
}

func (d *Daemon) workerLoop(ctx context.Context) {
	for {
		select {
		case tracked, ok := <-d.queue:
			if !ok {
				return
			}
			res := d.pipeline.Run(ctx, tracked.Job)
			d.release(tracked.Job.Task)
			tracked.finish(res)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes a single build synchronously, bypassing the queue.
// Used by the one-shot CLI command.
func (d *Daemon) RunOnce(ctx context.Context, job build.BuildJob) pipeline.Result {
	return d.pipeline.Run(ctx, job)
}

// QueueLength reports the number of builds waiting for a worker.
func (d *Daemon) QueueLength() int { return len(d.queue) }

// ActiveBuilds reports the number of tasks currently in flight.
func (d *Daemon) ActiveBuilds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// StartTime reports when Start was called.
func (d *Daemon) StartTime() time.Time { return d.startTime }
