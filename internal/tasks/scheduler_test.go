package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-community/internal/gateway/gatewaytest"
	"sentinel-community/internal/modules/quiz"

	"go.uber.org/zap"
)

func TestTickRecoversPanic(t *testing.T) {
	s := New(zap.NewNop())
	s.tick(context.Background(), Task{Name: "boom", Run: func(context.Context) error { panic("boom") }})
	s.tick(context.Background(), Task{Name: "fails", Run: func(context.Context) error { return errors.New("nope") }})
}

func TestDisabledTasksAreSkipped(t *testing.T) {
	s := New(zap.NewNop())
	s.Add(Task{Name: "off", Interval: 0, Run: func(context.Context) error { return nil }})
	s.Add(Task{Name: "nil", Interval: time.Second})
	if s.Len() != 0 {
		t.Fatalf("expected no tasks, got %d", s.Len())
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s.Add(Task{Name: "count", Interval: time.Millisecond, Run: func(context.Context) error {
		if runs.Add(1) == 3 {
			cancel()
		}
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}
}

func TestStatusRotationWraps(t *testing.T) {
	var got []string
	task := StatusRotation(time.Minute, []string{"a", "b"}, func(status string) error {
		got = append(got, status)
		return nil
	})
	for i := 0; i < 3; i++ {
		_ = task.Run(context.Background())
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("unexpected rotation %v", got)
	}
}

func TestTipBroadcast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tips.json")
	if err := os.WriteFile(path, []byte(`{"tips":["use gofmt","read the docs"]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tips, err := LoadTips(path)
	if err != nil || len(tips) != 2 {
		t.Fatalf("load tips: %v %v", tips, err)
	}
	gw := gatewaytest.New()
	task := TipBroadcast(time.Minute, tips, "tips", gw)
	_ = task.Run(context.Background())
	_ = task.Run(context.Background())

	sent := gw.Sent()
	if len(sent) != 2 || sent[0].Content != "💡 use gofmt" || sent[1].ChannelID != "tips" {
		t.Fatalf("unexpected tips %+v", sent)
	}
}

type starterFunc func(ctx context.Context, channelID string) (*quiz.Round, error)

func (f starterFunc) Start(ctx context.Context, channelID string) (*quiz.Round, error) {
	return f(ctx, channelID)
}

func TestScheduledQuizSkipsBusyChannel(t *testing.T) {
	busy := ScheduledQuiz(time.Minute, starterFunc(func(context.Context, string) (*quiz.Round, error) {
		return nil, quiz.ErrQuizInProgress
	}), "quiz")
	if err := busy.Run(context.Background()); err != nil {
		t.Fatalf("in-progress quiz should be skipped, got %v", err)
	}

	cooling := ScheduledQuiz(time.Minute, starterFunc(func(context.Context, string) (*quiz.Round, error) {
		return nil, &quiz.CooldownError{Remaining: time.Second}
	}), "quiz")
	if err := cooling.Run(context.Background()); err != nil {
		t.Fatalf("cooldown should be skipped, got %v", err)
	}

	broken := ScheduledQuiz(time.Minute, starterFunc(func(context.Context, string) (*quiz.Round, error) {
		return nil, quiz.ErrNoQuestions
	}), "quiz")
	if err := broken.Run(context.Background()); !errors.Is(err, quiz.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestLogRetentionDisabled(t *testing.T) {
	if task := LogRetention(time.Hour, nil, 0); task.Interval != 0 {
		t.Fatalf("retention of zero days must disable the task")
	}
}
