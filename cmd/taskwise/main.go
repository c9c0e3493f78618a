package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"taskwise/internal/api"
	"taskwise/internal/bot"
	"taskwise/internal/config"
	"taskwise/internal/live"
	"taskwise/internal/logging"
	"taskwise/internal/metrics"
	"taskwise/internal/notify"
	"taskwise/internal/push"
	"taskwise/internal/reminder"
	"taskwise/internal/repository"
	"taskwise/internal/routine"
	"taskwise/internal/service"
)

func main() {
	configPath := flag.String("config", "taskwise.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = log.Sync() }()
	loc := cfg.Location()

	db, err := repository.NewDB(cfg.Database.URL, log)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	pushRepo := repository.NewPushRepository(db)

	hub := live.NewHub(taskRepo)
	taskSvc := service.NewTaskService(taskRepo, hub, log.Named("tasks"))
	digestSvc := service.NewDigestService(taskRepo)

	var converter *routine.Converter
	if cfg.AI.APIKey != "" {
		completer, err := routine.NewDeepSeekCompleter(routine.DeepSeekConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
		})
		if err != nil {
			log.Fatal("create completion client", zap.Error(err))
		}
		converter = routine.NewConverter(completer,
			routine.WithLengthBounds(cfg.Routine.MinLength, cfg.Routine.MaxLength),
			routine.WithLocation(loc),
		)
	} else {
		log.Info("ai.api_key is not set, routine planning and priority suggestions are off")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sweepMetrics := metrics.NewPromMetrics(reg)

	sessions := notify.NewManager(hub, log.Named("notify"))
	defer sessions.Close()

	var (
		botAPI *tgbotapi.BotAPI
		sender push.Sender
	)
	notifOpts := []service.NotificationOption{service.WithSessions(sessions)}
	if cfg.Telegram.Enabled {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatal("create bot api", zap.Error(err))
		}
		log.Info("bot authorized", zap.String("account", botAPI.Self.UserName))
		sender = push.NewTelegramSender(botAPI)
		notifOpts = append(notifOpts, service.WithSender(sender))
	}
	notifSvc := service.NewNotificationService(userRepo, pushRepo, log.Named("notifications"), notifOpts...)

	var telegramBot *bot.Bot
	if botAPI != nil {
		telegramBot = bot.New(botAPI, bot.Deps{
			Users:         userRepo,
			Tasks:         taskSvc,
			Notifications: notifSvc,
			Digest:        digestSvc,
			Converter:     converter,
			Sessions:      sessions,
			Location:      loc,
			Logger:        log.Named("bot"),
		})
	}

	scheduler := service.NewSchedulerService(loc, log)
	if cfg.Reminder.Enabled && sender != nil {
		sweep := reminder.NewSweep(taskRepo, userRepo, pushRepo, sender,
			reminder.WithLookahead(cfg.Reminder.Lookahead),
			reminder.WithMetrics(sweepMetrics),
			reminder.WithLogger(log.Named("sweep")),
		)
		if _, err := scheduler.Schedule(cfg.Reminder.Schedule, func() {
			jobCtx, cancel := context.WithTimeout(ctx, cfg.Reminder.Timeout)
			defer cancel()
			if _, err := sweep.Run(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reminder sweep", zap.Error(err))
			}
		}); err != nil {
			log.Fatal("schedule reminder sweep", zap.Error(err))
		}
	}
	if cfg.Digest.Enabled && telegramBot != nil {
		if _, err := scheduler.ScheduleDaily(cfg.Digest.Time, func() {
			jobCtx, cancel := context.WithTimeout(ctx, cfg.Reminder.Timeout)
			defer cancel()
			if err := telegramBot.SendDailyDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("daily digest", zap.Error(err))
			}
		}); err != nil {
			log.Fatal("schedule daily digest", zap.Error(err))
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.HTTP.Enabled {
		handler := api.NewServer(taskSvc, notifSvc, userRepo,
			api.WithConverter(converter),
			api.WithGatherer(reg),
			api.WithLocation(loc),
			api.WithLogger(log.Named("http")),
		).Handler()
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server", zap.Error(err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("taskwise started")
	if telegramBot != nil {
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("bot stopped with error", zap.Error(err))
		}
	} else {
		<-ctx.Done()
	}
	log.Info("shutdown complete")
}
