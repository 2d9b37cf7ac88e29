package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/liveClient"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiClient := liveClient.NewApiClient(cfg)

	prefStore := liveClient.NewPrefStore(apiClient, cfg.Watcher.PrefsFile)
	prefs := prefStore.Load(ctx)

	store := liveClient.NewWatchStore()
	store.SetCodes(watchlistCodes(prefs.Watchlist))
	if prefs.SortOption != "" {
		store.SetSortOption(prefs.SortOption)
	}

	unsubscribe := store.Subscribe(func() {
		report := store.Positions()
		slog.Debug(
			"state updated",
			slog.Int("watched", len(store.Codes())),
			slog.String("total_market_value", report.Summary.TotalMarketValue.String()),
		)
	})
	defer unsubscribe()

	fetcher := liveClient.NewAccountFetcher(apiClient, store, liveClient.DefaultRetryPolicy())

	poller := liveClient.NewPoller(apiClient, fetcher, store, prefStore, cfg.Watcher.RefreshInterval)
	go poller.Run(ctx)

	slog.Info(
		"watcher started",
		slog.String("server", cfg.Watcher.ServerURL),
		slog.Int("watched", len(store.Codes())),
	)

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func watchlistCodes(watchlist string) []string {
	var codes []string
	if err := json.Unmarshal([]byte(watchlist), &codes); err != nil {
		return nil
	}
	return codes
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
