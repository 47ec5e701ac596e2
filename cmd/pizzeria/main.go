package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pizzeria/internal/api"
	"pizzeria/internal/audit"
	"pizzeria/internal/cache"
	"pizzeria/internal/config"
	"pizzeria/internal/database"
	"pizzeria/internal/eventbus"
	"pizzeria/internal/events"
	"pizzeria/internal/metrics"
	"pizzeria/internal/monitor"
	"pizzeria/internal/notify"
	"pizzeria/internal/service"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDevelopment() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid store timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	var storeCache service.Cache
	if rdb != nil && cfg.CacheTTL() > 0 {
		storeCache = cache.NewSnapshotCache(db, rdb, cfg.CacheTTL(), logger)
	}

	svc := service.NewStoreService(db, storeCache, bus, loc, logger)

	sinks := monitor.Sinks{events.NewStatusPublisher(bus, logger)}
	var telegram *notify.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		retry := notify.DefaultRetryConfig()
		if len(cfg.Telegram.RetryDelays) > 0 {
			retry.RetryDelays = cfg.Telegram.RetryDelays
			retry.MaxRetries = len(cfg.Telegram.RetryDelays)
		}
		telegram = notify.NewTelegramNotifier(botAPI, notify.Config{
			ChatIDs:   cfg.Telegram.ManagerChatIDs,
			RateLimit: cfg.Telegram.RateLimit,
			Retry:     retry,
			Location:  loc,
		}, logger)
		sinks = append(sinks, telegram)
		go telegram.Run(ctx)
	}

	mon := monitor.New(monitor.Config{
		MaxSleep:   cfg.MaxSleep(),
		RetryDelay: cfg.RetryDelay(),
		Location:   loc,
	}, svc, sinks, nil, logger)
	svc.SetRefresher(mon)
	bus.Subscribe(events.TopicConfigChanged, svc.HandleConfigChanged)

	if rdb != nil {
		relay := eventbus.NewRelay(rdb, bus, cfg.App.InstanceID, []string{events.TopicConfigChanged}, logger)
		if err := relay.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("redis relay unavailable, running standalone")
		} else {
			defer relay.Close()
		}
	}

	watchHours(ctx, cfg, svc, logger)

	mon.Start(ctx)
	defer mon.Stop()

	var notifier audit.Notifier
	if telegram != nil {
		notifier = telegram
	}
	auditSvc := audit.NewService(audit.Config{
		RetentionDays: cfg.Audit.RetentionDays,
		ExportOnStart: cfg.Audit.ExportOnStart,
		Location:      loc,
	}, db, nil, notifier, logger)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	go database.NewBackupService(db, cfg.Backup, logger).Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, mon, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Port:           cfg.HTTP.Port,
		AdminAPIKey:    cfg.HTTP.AdminAPIKey,
		Location:       loc,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, svc, auditSvc, bus, logger)

	logger.Info().Str("timezone", loc.String()).Msg("pizzeria status service started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
	logger.Info().Msg("shutting down")
}

// watchHours seeds missing days from the hours file and replaces the whole
// schedule whenever the file changes afterwards.
func watchHours(ctx context.Context, cfg *config.Config, svc *service.StoreService, logger zerolog.Logger) {
	path := cfg.Store.HoursFile
	if _, err := os.Stat(path); err != nil {
		logger.Info().Str("path", path).Msg("no hours file, schedule is managed through the API")
		return
	}

	initial := true
	onUpdate := func(hours *config.HoursConfig) {
		if initial {
			initial = false
			seeded, err := svc.SeedSchedule(ctx, path, hours.Schedule())
			if err != nil {
				logger.Error().Err(err).Msg("seed schedule")
				return
			}
			if seeded > 0 {
				logger.Info().Int("days", seeded).Str("path", path).Msg("schedule seeded from hours file")
			}
			return
		}
		if err := svc.SetSchedule(ctx, "hours_file", hours.Schedule()); err != nil {
			logger.Error().Err(err).Msg("apply hours file")
			return
		}
		logger.Info().Str("path", path).Str("hours", hours.String()).Msg("schedule reloaded from hours file")
	}
	onError := func(err error) {
		logger.Warn().Err(err).Str("path", path).Msg("hours file rejected, keeping current schedule")
	}

	if err := config.WatchHours(ctx, path, cfg.HoursReloadInterval(), onUpdate, onError); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("load hours file")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, mon *monitor.Monitor, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if mon.State() != "scheduled" {
			http.Error(w, "monitor "+mon.State(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
