package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/data"
	"github.com/tiangangQiu/FundVal-Live/data/cache"
	"github.com/tiangangQiu/FundVal-Live/data/repository/postgres"
	"github.com/tiangangQiu/FundVal-Live/data/session"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/eastmoneyApi"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/openaiApi"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/notifier/telegramNotifier"
	"github.com/tiangangQiu/FundVal-Live/internal/reportGenerator/xlsxGenerator"
	"github.com/tiangangQiu/FundVal-Live/internal/scheduler"
	"github.com/tiangangQiu/FundVal-Live/internal/service/accountService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/aiService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/alertService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/authService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/dataService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/fundService"
	"github.com/tiangangQiu/FundVal-Live/internal/service/settingsService"
	"github.com/tiangangQiu/FundVal-Live/internal/transport/rest"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	eastmoneyApiClient := eastmoneyApi.New(cfg)
	openaiApiClient := openaiApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	var cloudStorage dataService.CloudStorage
	if cfg.GoogleDrive.Enabled {
		cloudStorage = googleDriveApi.New(ctx, cfg)
	}

	var notifier alertService.Notifier
	if cfg.Telegram.Enabled {
		tgNotifier, err := telegramNotifier.New(cfg)
		if err != nil {
			slog.Error("telegram notifier init failed, alerts disabled", slog.Any("error", err))
		} else {
			notifier = tgNotifier
		}
	}

	fundSrv := fundService.New(pgRepo, redisCache, eastmoneyApiClient)
	settingsSrv := settingsService.New(pgRepo)
	accountSrv := accountService.New(pgRepo, fundSrv)
	aiSrv := aiService.New(pgRepo, fundSrv, settingsSrv, openaiApiClient)
	dataSrv := dataService.New(pgRepo, reportGenerator, cloudStorage)
	authSrv := authService.New(pgRepo, redisSession)
	alertSrv := alertService.New(pgRepo, fundSrv, notifier)

	sched := scheduler.New()
	sched.NewIntervalJob("collect intraday", collectIntradayTask(fundSrv, accountSrv, settingsSrv), cfg.Jobs.IntradayCollectInterval, false)
	sched.NewIntervalJob("check alerts", alertSrv.CheckAlerts, cfg.Jobs.IntradayCollectInterval, false)
	sched.NewIntervalJob("confirm pending trades", accountSrv.ConfirmPendingTrades, cfg.Jobs.ConfirmTradesInterval, true)
	sched.NewCrontabJob("refresh fund index", refreshFundIndexTask(fundSrv, accountSrv), cfg.Jobs.FundIndexRefreshCrontab, false)
	sched.NewCrontabJob("export backup", dataSrv.BackupToDrive, cfg.Jobs.ExportBackupCrontab, false)
	sched.Start()
	defer sched.Stop()

	controller := rest.NewController(fundSrv, accountSrv, settingsSrv, aiSrv, dataSrv, authSrv, alertSrv)
	router := rest.NewRouter(cfg, controller, authSrv)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		slog.Info("http server started", slog.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.Any("error", err))
			cancel()
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-interrupt:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.Any("error", err))
	}
}

// collectIntradayTask snapshots estimates for every held or watched fund.
func collectIntradayTask(fundSrv *fundService.FundService, accountSrv *accountService.AccountService, settingsSrv *settingsService.SettingsService) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		codes, err := watchedAndHeldCodes(ctx, accountSrv, settingsSrv)
		if err != nil {
			return err
		}
		return fundSrv.CollectIntraday(ctx, codes)
	}
}

// refreshFundIndexTask refreshes NAV histories for held funds so confirmed
// NAVs and fallbacks stay current.
func refreshFundIndexTask(fundSrv *fundService.FundService, accountSrv *accountService.AccountService) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		codes, err := accountSrv.GetHeldCodes(ctx, model.AggregateAccountID)
		if err != nil {
			return err
		}
		var lastErr error
		for _, code := range codes {
			if err := fundSrv.RefreshHistory(ctx, code); err != nil {
				slog.Warn("history refresh failed", slog.String("code", code), slog.Any("error", err))
				lastErr = err
			}
		}
		return lastErr
	}
}

func watchedAndHeldCodes(ctx context.Context, accountSrv *accountService.AccountService, settingsSrv *settingsService.SettingsService) ([]string, error) {
	held, err := accountSrv.GetHeldCodes(ctx, model.AggregateAccountID)
	if err != nil {
		return nil, err
	}

	prefs, err := settingsSrv.GetPreferences(ctx, 0)
	if err != nil {
		return nil, err
	}
	var watchlist []string
	if err = json.Unmarshal([]byte(prefs.Watchlist), &watchlist); err != nil {
		watchlist = nil
	}

	seen := make(map[string]struct{}, len(held)+len(watchlist))
	codes := make([]string, 0, len(held)+len(watchlist))
	for _, code := range append(held, watchlist...) {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
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
