package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slowlime/feedgen/internal/api"
	"github.com/slowlime/feedgen/internal/config"
	"github.com/slowlime/feedgen/internal/feeds"
	"github.com/slowlime/feedgen/internal/httpcache"
	"github.com/slowlime/feedgen/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.OpenDatabase(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	store := storage.NewStore(db)

	states, err := feeds.BuildStates(cfg)
	if err != nil {
		slog.Error("failed to build feed states", "error", err)
		os.Exit(1)
	}

	cacheTransport, err := httpcache.NewTransport(http.DefaultTransport, cfg.CacheDir)
	if err != nil {
		slog.Error("failed to build HTTP cache", "error", err)
		os.Exit(1)
	}

	fetcher := &feeds.Fetcher{
		States:          states,
		Store:           store,
		Client:          feeds.NewHTTPClient(cacheTransport),
		MaxInitialSleep: cfg.MaxInitialFetchSleep.Duration,
	}

	router := api.NewRouter(store, states)

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return fetcher.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.BindAddr)
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("feedgen stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("feedgen stopped cleanly")
}
