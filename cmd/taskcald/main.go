package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskcal/internal/api"
	"taskcal/internal/bot"
	"taskcal/internal/config"
	"taskcal/internal/logger"
	"taskcal/internal/model"
	"taskcal/internal/ready"
	"taskcal/internal/realtime"
	"taskcal/internal/repository"
	"taskcal/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", "error", err)
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir}); err != nil {
		logger.Fatal("logger", "error", err)
	}

	// /healthz answers 503 until the database and the hub are up.
	started := ready.New()

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", "error", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	eventRepo := repository.NewEventRepository(db)
	recoveryRepo := repository.NewRecoveryRepository(db)

	var (
		taskSvc    *service.TaskService
		eventSvc   *service.EventService
		profileSvc *service.ProfileService
	)
	hub := realtime.NewHub(map[string]realtime.Fetcher{
		model.TableTasks: func(ctx context.Context, userID string) (any, error) {
			return taskSvc.List(ctx, userID)
		},
		model.TableEvents: func(ctx context.Context, userID string) (any, error) {
			return eventSvc.List(ctx, userID, time.Time{}, time.Time{})
		},
		model.TableProfiles: func(ctx context.Context, userID string) (any, error) {
			return profileSvc.Rows(ctx, userID)
		},
	})
	taskSvc = service.NewTaskService(taskRepo, hub)
	eventSvc = service.NewEventService(eventRepo, hub)
	profileSvc = service.NewProfileService(userRepo, hub)
	agendaSvc := service.NewAgendaService(taskRepo, eventRepo)

	var tg *tgbotapi.BotAPI
	notifiers := service.MultiNotifier{service.NewMailNotifier(cfg.SMTP)}
	if cfg.TelegramToken != "" {
		tg, err = bot.NewAPI(cfg.TelegramToken)
		if err != nil {
			logger.Fatal("bot", "error", err)
		}
		notifiers = append(notifiers, service.NewTelegramNotifier(tg))
	}
	if cfg.SMTP.Host == "" && tg == nil {
		logger.Warn("no delivery channel configured, codes and links are only logged")
		notifiers = append(notifiers, service.LogNotifier{})
	}

	authSvc := service.NewAuthService(userRepo, recoveryRepo, notifiers, service.AuthOptions{
		Secret:     []byte(cfg.JWTSecret),
		SessionTTL: cfg.SessionTTL,
		Cooldown:   cfg.RecoveryCooldown,
		PublicURL:  cfg.PublicURL,
	})

	go hub.Run(ctx)

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.Every("purge-credentials", time.Minute, 30*time.Second, func(ctx context.Context) error {
		n, err := authSvc.PurgeExpired(ctx)
		if n > 0 {
			logger.Debug("purged expired credentials", "rows", n)
		}
		return err
	}); err != nil {
		logger.Fatal("schedule purge", "error", err)
	}

	var telegramBot *bot.Bot
	if tg != nil {
		telegramBot = bot.New(tg, authSvc, userRepo, taskSvc, agendaSvc)
		if _, err := scheduler.Daily("daily-agenda", cfg.AgendaTime, 2*time.Minute, telegramBot.SendDailyAgendas); err != nil {
			logger.Fatal("schedule agenda", "error", err)
		}
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bot stopped with error", "error", err)
			}
		}()
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewHandler(api.Deps{
			Auth:           authSvc,
			Tasks:          taskSvc,
			Events:         eventSvc,
			Profiles:       profileSvc,
			Hub:            hub,
			Ready:          started,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := hub.Ready().Wait(ctx); err != nil {
			started.FireErr(err)
			return
		}
		started.Fire()
		logger.Info("taskcald ready", "addr", cfg.HTTPAddr)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", "error", err)
	}
	logger.Info("shutdown complete")
}
