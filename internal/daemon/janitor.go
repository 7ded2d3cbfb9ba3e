package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// janitor periodically prunes old build-history events so the store does
// not grow without bound.
type janitor struct {
	scheduler gocron.Scheduler
	store     history.Store
	retention time.Duration
}

func newJanitor(store history.Store, retention, every time.Duration) (*janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	j := &janitor{scheduler: s, store: store, retention: retention}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(j.prune),
		gocron.WithName("history-prune"),
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (j *janitor) Start() {
	slog.Info("history janitor scheduled", "retention", j.retention.String())
	j.scheduler.Start()
}

func (j *janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *janitor) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.store.Prune(ctx, time.Now().Add(-j.retention))
	if err != nil {
		slog.Warn("history prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("pruned build history", "removed", removed)
	}
}
