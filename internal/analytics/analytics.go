package analytics

import (
	"context"
	"sort"
	"time"

	"sentinel-community/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type CommandCount struct {
	Command string
	Count   int
}

type Report struct {
	Total       int
	ActiveUsers int
	ByCommand   map[string]int
}

// Report summarizes the logs table since the given time.
func (s *Service) Report(ctx context.Context, since time.Time) (Report, error) {
	logs, err := s.store.ListLogs(ctx, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByCommand: make(map[string]int)}
	users := make(map[string]struct{})
	for _, log := range logs {
		report.Total++
		report.ByCommand[log.Command]++
		if log.UserID != "" {
			users[log.UserID] = struct{}{}
		}
	}
	report.ActiveUsers = len(users)
	return report, nil
}

// Top returns the n most used commands, ties broken by name.
func (r Report) Top(n int) []CommandCount {
	out := make([]CommandCount, 0, len(r.ByCommand))
	for command, count := range r.ByCommand {
		out = append(out, CommandCount{Command: command, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Command < out[j].Command
		}
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
