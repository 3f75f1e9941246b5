package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/state"

	"go.uber.org/zap"
)

var ErrMutedRoleMissing = errors.New("muted role is not configured")

// MuteRequest with a zero Duration uses the two-stage escalation policy.
type MuteRequest struct {
	GuildID     string
	UserID      string
	Username    string
	ChannelID   string
	ModeratorID string
	Reason      string
	Duration    time.Duration
}

type muteHandle struct {
	timer     clock.Timer
	expiresAt time.Time
	channelID string
}

// Mute grants the muted role, persists muted_until and schedules the unmute.
func (m *Module) Mute(ctx context.Context, req MuteRequest) (time.Duration, error) {
	if m.mutedRoleID == "" {
		return 0, ErrMutedRoleMissing
	}
	now := m.clock.Now()
	key := req.GuildID + ":" + req.UserID

	duration := req.Duration
	m.mu.Lock()
	if duration <= 0 {
		duration = m.escalatedDurationLocked(key, now)
	}
	m.mu.Unlock()

	if err := m.gw.AddRole(req.GuildID, req.UserID, m.mutedRoleID); err != nil {
		return 0, fmt.Errorf("add muted role: %w", err)
	}

	m.mu.Lock()
	m.lastMute[key] = now
	m.mu.Unlock()

	until := now.Add(duration)
	if err := m.store.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		m.logger.Warn("ensure user failed", zap.String("user_id", req.UserID), zap.Error(err))
	}
	if err := m.store.SetMutedUntil(ctx, req.UserID, until); err != nil {
		m.logger.Warn("persist muted_until failed", zap.String("user_id", req.UserID), zap.Error(err))
	}
	m.schedule(state.PendingUnmute{GuildID: req.GuildID, UserID: req.UserID, ChannelID: req.ChannelID, ExpiresAt: until}, duration)

	reason := reasonOrDefault(req.Reason)
	if req.ModeratorID == "" {
		m.audit.Log(ctx, audit.LevelWarn, req.UserID, req.ChannelID, "mute", fmt.Sprintf("duration=%s reason=%s moderator=auto", duration, reason))
	}
	if req.ChannelID != "" {
		_, _ = m.gw.SendMessage(req.ChannelID, fmt.Sprintf("<@%s> has been muted for %s. Reason: %s", req.UserID, duration, reason))
	}
	return duration, nil
}

// escalatedDurationLocked picks the second stage when the last mute is within second_mute_duration.
func (m *Module) escalatedDurationLocked(key string, now time.Time) time.Duration {
	last, ok := m.lastMute[key]
	if ok && now.Sub(last) <= m.secondMute() {
		return m.secondMute()
	}
	return m.firstMute()
}

// Unmute cancels the pending timer and lifts the mute. muted_until is only cleared once the role is gone.
func (m *Module) Unmute(ctx context.Context, guildID, userID string) error {
	if m.mutedRoleID == "" {
		return ErrMutedRoleMissing
	}
	if err := m.gw.RemoveRole(guildID, userID, m.mutedRoleID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("remove muted role: %w", err)
	}

	key := guildID + ":" + userID
	m.mu.Lock()
	if handle := m.mutes[key]; handle != nil {
		handle.timer.Stop()
		delete(m.mutes, key)
	}
	m.mu.Unlock()

	m.finishUnmute(ctx, guildID, userID)
	return nil
}

// Recover reschedules persisted unmutes, expiring the overdue ones immediately.
func (m *Module) Recover(ctx context.Context) (int, error) {
	if m.pending == nil {
		return 0, nil
	}
	pending, err := m.pending.ListPendingUnmutes()
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	for _, p := range pending {
		remaining := p.ExpiresAt.Sub(now)
		if remaining <= 0 {
			m.expire(ctx, p, nil)
			continue
		}
		m.schedule(p, remaining)
	}
	if len(pending) > 0 {
		m.logger.Info("pending unmutes recovered", zap.Int("count", len(pending)))
	}
	return len(pending), nil
}

// IsMuteScheduled reports whether an unmute timer is pending for the user.
func (m *Module) IsMuteScheduled(guildID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.mutes[guildID+":"+userID]
	return ok
}

func (m *Module) schedule(p state.PendingUnmute, after time.Duration) {
	key := p.GuildID + ":" + p.UserID
	handle := &muteHandle{expiresAt: p.ExpiresAt, channelID: p.ChannelID}

	m.mu.Lock()
	if previous := m.mutes[key]; previous != nil {
		previous.timer.Stop()
	}
	m.mutes[key] = handle
	handle.timer = m.clock.AfterFunc(after, func() {
		m.expire(context.Background(), p, handle)
	})
	m.mu.Unlock()

	if m.pending != nil {
		if err := m.pending.PutPendingUnmute(p); err != nil {
			m.logger.Warn("persist pending unmute failed", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}
}

// expire lifts a mute whose timer fired. A nil handle means a recovered overdue mute.
func (m *Module) expire(ctx context.Context, p state.PendingUnmute, handle *muteHandle) {
	key := p.GuildID + ":" + p.UserID
	if handle != nil {
		m.mu.Lock()
		if m.mutes[key] != handle {
			m.mu.Unlock()
			return
		}
		delete(m.mutes, key)
		m.mu.Unlock()
	}

	if err := m.gw.RemoveRole(p.GuildID, p.UserID, m.mutedRoleID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		m.logger.Error("mute expiry role removal failed", zap.String("user_id", p.UserID), zap.Error(err))
		return
	}
	m.finishUnmute(ctx, p.GuildID, p.UserID)
	m.audit.Log(ctx, audit.LevelInfo, p.UserID, p.ChannelID, "unmute", "mute duration expired")
	if p.ChannelID != "" {
		_, _ = m.gw.SendMessage(p.ChannelID, fmt.Sprintf("<@%s>'s mute duration has expired.", p.UserID))
	}
}

func (m *Module) finishUnmute(ctx context.Context, guildID, userID string) {
	if err := m.store.ClearMutedUntil(ctx, userID); err != nil {
		m.logger.Warn("clear muted_until failed", zap.String("user_id", userID), zap.Error(err))
	}
	if m.pending != nil {
		if err := m.pending.DeletePendingUnmute(guildID, userID); err != nil {
			m.logger.Warn("delete pending unmute failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "No reason provided"
	}
	return reason
}
