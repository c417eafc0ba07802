package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/korosuke613/ghadist/api"
	"github.com/korosuke613/ghadist/config"
	"github.com/korosuke613/ghadist/fetch"
	"github.com/korosuke613/ghadist/github"
	"github.com/korosuke613/ghadist/scheduler"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "show version")
	watch := flag.Bool("watch", false, "keep targets in sync instead of fetching once")
	targetsPath := flag.String("config", "", "targets file (overrides GHADIST_TARGETS_FILE)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ghadist v%s\n", version)
		return
	}

	// Bootstrap logger with JSON/stdout defaults (before config is available)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Re-initialize logger with configured level and format
	initLogger(&cfg.Log)

	path := cfg.TargetsFile
	if *targetsPath != "" {
		path = *targetsPath
	}
	targets, err := config.LoadTargets(path)
	if err != nil {
		slog.Error("failed to load targets", "error", err)
		os.Exit(1)
	}

	client, err := newGitHubClient(cfg)
	if err != nil {
		slog.Error("failed to initialize GitHub client", "error", err)
		os.Exit(1)
	}

	fetcher := fetch.New(client)

	if !*watch {
		runOnce(fetcher, targets)
		return
	}

	runWatch(cfg, fetcher, targets)
}

// runOnce fetches every target a single time. A resolution failure
// (empty workflow/run/artifact lookup) prints its message and exits 1.
func runOnce(fetcher *fetch.Fetcher, targets []config.Target) {
	ctx := context.Background()

	for _, target := range targets {
		if _, err := fetcher.Fetch(ctx, target); err != nil {
			if fetch.IsResolutionErr(err) {
				fmt.Println(err)
				os.Exit(1)
			}
			slog.Error("fetch failed", "target", target.Key(), "error", err)
			os.Exit(1)
		}
	}
}

// runWatch keeps targets in sync until SIGINT/SIGTERM.
func runWatch(cfg *config.Config, fetcher *fetch.Fetcher, targets []config.Target) {
	slog.Info("starting ghadist", "version", version, "targets", len(targets))

	state, err := scheduler.NewStateStore(cfg.Watch.StateFile)
	if err != nil {
		slog.Error("failed to load state", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(fetcher, targets, &cfg.Watch, state)
	if err != nil {
		slog.Error("failed to initialize scheduler", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(&cfg.WebAPI, cfg)
	apiServer.SetStatusProvider(sched)
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start API server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start()
	go sched.Run(ctx)

	slog.Info("ghadist started",
		"interval_minutes", cfg.Watch.IntervalMinutes,
		"state_file", cfg.Watch.StateFile,
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slog.Info("received signal, shutting down", "signal", sig.String())

	cancel()
	sched.Stop()
	apiServer.Stop()

	slog.Info("ghadist stopped")
}

func newGitHubClient(cfg *config.Config) (*github.Client, error) {
	var client *github.Client
	var err error

	if cfg.GitHub.Token != "" {
		client, err = github.NewClient(context.Background(), cfg.GitHub.Token)
	} else {
		var privateKey []byte
		privateKey, err = cfg.GetPrivateKey()
		if err != nil {
			return nil, err
		}
		client, err = github.NewAppClient(cfg.GitHub.AppID, privateKey)
	}
	if err != nil {
		return nil, err
	}

	if cfg.GitHub.BaseURL != "" {
		if err := client.SetBaseURL(cfg.GitHub.BaseURL); err != nil {
			return nil, err
		}
	}

	return client, nil
}

func initLogger(logCfg *config.LogConfig) {
	level := logCfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(logCfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
