package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"labreserve/internal/api"
	"labreserve/internal/config"
	"labreserve/internal/engine"
	"labreserve/internal/events"
	"labreserve/internal/export"
	"labreserve/internal/metrics"
	"labreserve/internal/notify"
	"labreserve/internal/repository"
	"labreserve/internal/store"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("LABRESERVE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tableStore, err := openStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open store")
	}

	if cfg.Store.FallbackToSQLite && cfg.Store.Backend != "sqlite" && cfg.Store.Backend != "memory" {
		local, err := store.NewSQLite(cfg.Store.SQLite.Path, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open fallback store")
		}
		tableStore = store.NewFailover(tableStore, local, &logger)
	}

	if cfg.Backup.Enabled && cfg.Store.Backend == "sqlite" {
		if sq, ok := tableStore.(*store.SQLite); ok {
			go startBackupLoop(ctx, sq, cfg, &logger)
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		tableStore = store.NewCached(tableStore, rdb, cfg.RedisTTL(), &logger)
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache enabled")
	}
	defer tableStore.Close()

	repo := repository.New(tableStore)
	bus := events.NewBus()
	eng := engine.New(repo, bus, cfg.Admin.Password, &logger)

	var notifier *notify.Telegram
	if cfg.Telegram.Enabled {
		notifier, err = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create telegram notifier")
		}
		notifier.Subscribe(bus)

		if cfg.Telegram.RemindersEnabled {
			reminder := notify.NewReminder(eng, notifier, cfg.Telegram.ReminderHour, &logger)
			reminder.Start()
			defer reminder.Stop()
		}
	}

	if cfg.Export.Enabled {
		var exportNotifier export.Notifier
		if notifier != nil {
			exportNotifier = notifier
		}
		exporter := export.NewService(export.Config{
			OutputDir:     cfg.Export.OutputDir,
			ExportOnStart: cfg.Export.ExportOnStart,
		}, tableStore, exportNotifier, &logger)
		exporter.Start()
		defer exporter.Stop()
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, tableStore, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Int("port", cfg.API.Port).Msg("labreserve started")
	api.NewHTTPServer(eng, cfg.API.Port, &logger).Start(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.TableStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLite.Path, logger)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.Postgres.DSN, logger)
	case "sheets":
		return store.NewSheets(ctx, cfg.Store.Sheets.SpreadsheetID, cfg.Store.Sheets.CredentialsFile, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func startBackupLoop(ctx context.Context, sq *store.SQLite, cfg *config.Config, logger *zerolog.Logger) {
	interval := time.Duration(cfg.Backup.IntervalHours) * time.Hour
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour

	// First backup after a short delay, then on the interval.
	select {
	case <-time.After(1 * time.Minute):
		runBackup(ctx, sq, cfg, retention, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackup(ctx, sq, cfg, retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackup(ctx context.Context, sq *store.SQLite, cfg *config.Config, retention time.Duration, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(cfg.Backup.Path, fmt.Sprintf("labreserve_%s.db", timestamp))

	logger.Info().Str("path", dest).Msg("starting database backup")
	if err := sq.Backup(ctx, dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
		return
	}

	deleted, err := sq.CleanupBackups(cfg.Backup.Path, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, s store.TableStore, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if _, err := s.Read(ctxPing, store.TableLabs); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
