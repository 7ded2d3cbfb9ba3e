package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/daemon"
	"git.home.luguber.info/inful/appforge/internal/pipeline"
	"git.home.luguber.info/inful/appforge/internal/version"
)

var cli struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve   ServeCmd   `cmd:"" help:"Start the build service"`
	Build   BuildCmd   `cmd:"" help:"Run a single build from a request file and exit"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	WatchConfig bool `help:"Reload log level when the config file changes" default:"true"`
}

func (s *ServeCmd) Run(level *slog.LevelVar) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogConfig(cfg, level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, level)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if s.WatchConfig {
		if err := d.WatchConfig(cli.Config); err != nil {
			slog.Warn("config watching disabled", "error", err)
		}
	}

	slog.Info("appforge started, waiting for shutdown signal", "version", version.Version)
	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout.Std())
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	slog.Info("appforge stopped")
	return nil
}

// BuildCmd implements the 'build' command: one request, one pipeline
// run, exit code by outcome. Useful for smoke tests and local runs.
type BuildCmd struct {
	Request string        `arg:"" help:"Path to a JSON build request file"`
	Timeout time.Duration `help:"Bound for the whole build" default:"15m"`
}

func (b *BuildCmd) Run(level *slog.LevelVar) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogConfig(cfg, level)

	data, err := os.ReadFile(b.Request)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	var req build.BuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	d, err := daemon.New(cfg, level)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, tcancel := context.WithTimeout(ctx, b.Timeout)
	defer tcancel()

	res := d.RunOnce(ctx, req.Job())
	if res.State != pipeline.StateDone {
		return fmt.Errorf("build failed: %w", res.Err)
	}

	fmt.Printf("repo:   %s\n", res.Deployment.RepoURL)
	fmt.Printf("commit: %s\n", res.Deployment.CommitSHA)
	fmt.Printf("pages:  %s\n", res.Deployment.PagesURL)
	return nil
}

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (VersionCmd) Run(_ *slog.LevelVar) error {
	fmt.Printf("appforge %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	return nil
}

func applyLogConfig(cfg *config.Config, level *slog.LevelVar) {
	if cli.Verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(cfg.Logging.SlogLevel())
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx := kong.Parse(&cli,
		kong.Name("appforge"),
		kong.Description("Generates web apps from briefs and deploys them to GitHub Pages."),
		kong.UsageOnError(),
		kong.Bind(level),
	)
	if err := ctx.Run(level); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
