package analytics

import (
	"context"
	"testing"
	"time"

	"sentinel-community/internal/storage"
)

func TestReportCountsCommands(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	for _, entry := range []storage.Log{
		{UserID: "u1", Command: "quiz", Timestamp: now},
		{UserID: "u2", Command: "quiz", Timestamp: now},
		{UserID: "u1", Command: "warn", Timestamp: now},
		{Command: "content_filter", Timestamp: now},
		{UserID: "u3", Command: "ban", Timestamp: now.Add(-48 * time.Hour)},
	} {
		if err := store.AddLog(ctx, entry); err != nil {
			t.Fatalf("add log: %v", err)
		}
	}

	report, err := New(store).Report(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 4 || report.ActiveUsers != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	top := report.Top(2)
	if len(top) != 2 || top[0].Command != "quiz" || top[0].Count != 2 || top[1].Command != "content_filter" {
		t.Fatalf("unexpected top commands: %+v", top)
	}
}
