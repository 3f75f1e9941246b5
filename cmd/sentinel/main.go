package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-community/internal/bot"
	"sentinel-community/internal/config"
	"sentinel-community/internal/modules/quiz"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"
	"sentinel-community/internal/tasks"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	store.WithLogger(logger.Named("storage"))
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tiers := quiz.StaticTiers(cfg.Tiers)
	if err := store.SeedTiers(ctx, tiers); err != nil {
		logger.Fatal("tier seed failed", zap.Error(err))
	}
	questions, err := quiz.LoadQuestions(cfg.QuestionsPath)
	if err != nil {
		logger.Warn("question bank not loaded", zap.String("path", cfg.QuestionsPath), zap.Error(err))
	} else if err := store.SeedQuestions(ctx, questions); err != nil {
		logger.Fatal("question seed failed", zap.Error(err))
	}
	questions, err = store.ListQuestions(ctx)
	if err != nil {
		logger.Fatal("question load failed", zap.Error(err))
	}

	menus, err := state.Open(cfg.StatePath)
	if err != nil {
		logger.Fatal("state init failed", zap.Error(err))
	}
	defer func() {
		_ = menus.Close()
	}()

	botSvc, err := bot.New(cfg, logger, store, menus, tiers, questions)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}
	if err := botSvc.Start(ctx); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.Int("questions", len(questions)), zap.Int("tiers", len(tiers)))

	scheduler := tasks.New(logger.Named("tasks"))
	scheduleTasks(scheduler, cfg, botSvc, store, logger)
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("tasks did not stop in time")
	}
	botSvc.Close()
}

func scheduleTasks(s *tasks.Scheduler, cfg config.Config, botSvc *bot.Bot, store *storage.Store, logger *zap.Logger) {
	minutes := func(n int) time.Duration { return time.Duration(n) * time.Minute }

	s.Add(tasks.StatusRotation(minutes(cfg.Tasks.StatusRotationMinutes), cfg.Tasks.Statuses, botSvc.SetStatus))
	s.Add(tasks.ScheduledQuiz(minutes(cfg.Tasks.QuizIntervalMinutes), botSvc.Quiz(), cfg.Identifiers.QuizChannelID))
	s.Add(tasks.LogRetention(24*time.Hour, store, cfg.RetentionDays))

	tips, err := tasks.LoadTips(cfg.TipsPath)
	if err != nil {
		logger.Warn("tips not loaded", zap.String("path", cfg.TipsPath), zap.Error(err))
		return
	}
	s.Add(tasks.TipBroadcast(minutes(cfg.Tasks.TipIntervalMinutes), tips, cfg.Identifiers.TipsChannelID, botSvc.Gateway()))
}
