package audit

import (
	"context"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Entry is one audit trail record. Level is carried to the log and the notifier but not persisted.
type Entry struct {
	Level     string
	UserID    string
	ChannelID string
	Command   string
	Message   string
	CreatedAt time.Time
}

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	clock  clock.Clock
	notify func(context.Context, Entry)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, clock: clock.Real()}
}

func (l *Logger) WithClock(c clock.Clock) {
	l.clock = c
}

func (l *Logger) SetNotifier(notify func(context.Context, Entry)) {
	l.notify = notify
}

// Log appends a row to the logs table and forwards the entry to the notifier.
func (l *Logger) Log(ctx context.Context, level, userID, channelID, command, message string) {
	entry := Entry{
		Level:     level,
		UserID:    userID,
		ChannelID: channelID,
		Command:   command,
		Message:   message,
		CreatedAt: l.clock.Now(),
	}
	if l.store != nil {
		err := l.store.AddLog(ctx, storage.Log{
			UserID:    userID,
			Channel:   channelID,
			Command:   command,
			Message:   message,
			Timestamp: entry.CreatedAt,
		})
		if err != nil {
			l.logger.Warn("audit persist failed", zap.String("command", command), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("user_id", userID), zap.String("channel_id", channelID), zap.String("command", command), zap.String("message", message))
}
