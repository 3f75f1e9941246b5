package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/quiz"
	"sentinel-community/internal/storage"
)

// StatusRotation cycles the presence text through statuses.
func StatusRotation(interval time.Duration, statuses []string, set func(status string) error) Task {
	var next atomic.Int64
	return Task{
		Name:     "status_rotation",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if len(statuses) == 0 {
				return nil
			}
			i := int(next.Add(1)-1) % len(statuses)
			return set(statuses[i])
		},
	}
}

type tipsFile struct {
	Tips []string `json:"tips"`
}

func LoadTips(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file tipsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tips: %w", err)
	}
	return file.Tips, nil
}

// TipBroadcast posts the tips in order, wrapping around.
func TipBroadcast(interval time.Duration, tips []string, channelID string, gw gateway.Gateway) Task {
	var next atomic.Int64
	return Task{
		Name:     "tip_broadcast",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if len(tips) == 0 || channelID == "" {
				return nil
			}
			tip := tips[int(next.Add(1)-1)%len(tips)]
			_, err := gw.SendMessage(channelID, "💡 "+tip)
			return err
		},
	}
}

type QuizStarter interface {
	Start(ctx context.Context, channelID string) (*quiz.Round, error)
}

// ScheduledQuiz starts a round in channelID unless one is already running.
func ScheduledQuiz(interval time.Duration, starter QuizStarter, channelID string) Task {
	return Task{
		Name:     "scheduled_quiz",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if channelID == "" {
				return nil
			}
			_, err := starter.Start(ctx, channelID)
			var cooldown *quiz.CooldownError
			if errors.Is(err, quiz.ErrQuizInProgress) || errors.As(err, &cooldown) {
				return nil
			}
			return err
		},
	}
}

// LogRetention prunes log rows older than retentionDays.
func LogRetention(interval time.Duration, store *storage.Store, retentionDays int) Task {
	if retentionDays <= 0 {
		interval = 0
	}
	return Task{
		Name:     "log_retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			return store.CleanupLogs(ctx, retentionDays)
		},
	}
}
