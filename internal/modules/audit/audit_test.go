package audit

import (
	"context"
	"testing"
	"time"

	"sentinel-community/internal/storage"

	"go.uber.org/zap"
)

func TestLogPersistsAndNotifies(t *testing.T) {
	store, _ := storage.New(":memory:")
	defer store.Close()
	_ = store.Migrate()

	logger := NewLogger(store, zap.NewNop())
	var notified []Entry
	logger.SetNotifier(func(ctx context.Context, entry Entry) {
		notified = append(notified, entry)
	})

	logger.Log(context.Background(), LevelWarn, "u1", "c1", "warn", "reason: spam")

	if len(notified) != 1 || notified[0].Level != LevelWarn || notified[0].Command != "warn" {
		t.Fatalf("unexpected notifications: %+v", notified)
	}
	logs, err := store.ListLogs(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].UserID != "u1" || logs[0].Message != "reason: spam" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}
