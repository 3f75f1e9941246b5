package storage

import (
	"context"
	"database/sql"
	"time"
)

type Log struct {
	LogID     int64
	UserID    string
	Channel   string
	Command   string
	Message   string
	Timestamp time.Time
}

func (s *Store) AddLog(ctx context.Context, log Log) error {
	var userID any
	if log.UserID != "" {
		userID = log.UserID
	}
	ts := log.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	return s.Exec(ctx, `
		INSERT INTO logs (user_id, channel, command, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, userID, log.Channel, log.Command, log.Message, ts.Unix())
}

func (s *Store) ListLogs(ctx context.Context, since time.Time) ([]Log, error) {
	var rows []struct {
		LogID     int64          `db:"log_id"`
		UserID    sql.NullString `db:"user_id"`
		Channel   string         `db:"channel"`
		Command   string         `db:"command"`
		Message   string         `db:"message"`
		Timestamp int64          `db:"timestamp"`
	}
	err := s.Fetch(ctx, &rows, `
		SELECT log_id, user_id, channel, command, message, timestamp
		FROM logs
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, log_id DESC
	`, since.Unix())
	if err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, Log{
			LogID:     row.LogID,
			UserID:    row.UserID.String,
			Channel:   row.Channel,
			Command:   row.Command,
			Message:   row.Message,
			Timestamp: time.Unix(row.Timestamp, 0),
		})
	}
	return logs, nil
}

func (s *Store) CleanupLogs(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	return s.Exec(ctx, `DELETE FROM logs WHERE timestamp < ?`, cutoff.Unix())
}
