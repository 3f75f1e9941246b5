// Package tasks runs the bot's periodic background jobs.
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	tasks  []Task
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a task. Tasks without a positive interval are disabled.
func (s *Scheduler) Add(task Task) {
	if task.Interval <= 0 || task.Run == nil {
		s.logger.Info("task disabled", zap.String("task", task.Name))
		return
	}
	s.tasks = append(s.tasks, task)
}

func (s *Scheduler) Len() int { return len(s.tasks) }

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			s.loop(gctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	s.logger.Info("task started", zap.String("task", task.Name), zap.Duration("interval", task.Interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, task)
		}
	}
}

// tick runs one iteration. A panic is logged and the loop keeps going.
func (s *Scheduler) tick(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("task panic", zap.String("task", task.Name), zap.Any("panic", rec))
		}
	}()
	if err := task.Run(ctx); err != nil {
		s.logger.Warn("task failed", zap.String("task", task.Name), zap.Error(err))
	}
}
