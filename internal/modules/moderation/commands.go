package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrPermissionDenied = errors.New("you do not have permission to use this command")

// Action is one moderator command against a target member.
type Action struct {
	GuildID     string
	ChannelID   string
	ModeratorID string
	TargetID    string
	TargetName  string
	Reason      string
	Duration    time.Duration
}

// Outcome is returned to the command layer for the reply and the audit embed.
type Outcome struct {
	CaseID    string
	Command   string
	TargetID  string
	Reason    string
	Duration  time.Duration
	WarnCount int
}

var requiredPermissions = map[string]int64{
	"kick":   discordgo.PermissionKickMembers,
	"ban":    discordgo.PermissionBanMembers,
	"unban":  discordgo.PermissionBanMembers,
	"mute":   discordgo.PermissionManageRoles,
	"unmute": discordgo.PermissionManageRoles,
	"warn":   discordgo.PermissionManageMessages,
}

// RequiredPermission returns the capability a moderator command needs.
func RequiredPermission(command string) (int64, bool) {
	perm, ok := requiredPermissions[command]
	return perm, ok
}

func (m *Module) Authorize(command, userID, channelID string) error {
	want, ok := requiredPermissions[command]
	if !ok {
		return fmt.Errorf("unknown moderator command %q", command)
	}
	perms, err := m.gw.Permissions(userID, channelID)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if !gateway.HasPermission(perms, want) {
		return ErrPermissionDenied
	}
	return nil
}

func (m *Module) Kick(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("kick", a)
	if err := m.gw.Kick(a.GuildID, a.TargetID, out.Reason); err != nil {
		return out, err
	}
	m.record(ctx, a, out)
	return out, nil
}

func (m *Module) Ban(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("ban", a)
	if err := m.gw.Ban(a.GuildID, a.TargetID, out.Reason); err != nil {
		return out, err
	}
	if err := m.store.EnsureUser(ctx, a.TargetID, a.TargetName); err == nil {
		if err := m.store.SetBanReason(ctx, a.TargetID, out.Reason); err != nil {
			m.logger.Warn("persist ban reason failed", zap.String("user_id", a.TargetID), zap.Error(err))
		}
	}
	m.record(ctx, a, out)
	return out, nil
}

func (m *Module) Unban(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("unban", a)
	if err := m.gw.Unban(a.GuildID, a.TargetID); err != nil {
		return out, err
	}
	if err := m.store.SetBanReason(ctx, a.TargetID, ""); err != nil {
		m.logger.Warn("clear ban reason failed", zap.String("user_id", a.TargetID), zap.Error(err))
	}
	m.record(ctx, a, out)
	return out, nil
}

// MuteMember is the moderator mute. A zero Duration falls back to escalation.
func (m *Module) MuteMember(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("mute", a)
	duration, err := m.Mute(ctx, MuteRequest{
		GuildID:     a.GuildID,
		UserID:      a.TargetID,
		Username:    a.TargetName,
		ChannelID:   a.ChannelID,
		ModeratorID: a.ModeratorID,
		Reason:      out.Reason,
		Duration:    a.Duration,
	})
	if err != nil {
		return out, err
	}
	out.Duration = duration
	m.record(ctx, a, out)
	return out, nil
}

func (m *Module) UnmuteMember(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("unmute", a)
	if err := m.Unmute(ctx, a.GuildID, a.TargetID); err != nil {
		return out, err
	}
	m.record(ctx, a, out)
	return out, nil
}

// Warn bumps warn_count. It never mutes.
func (m *Module) Warn(ctx context.Context, a Action) (Outcome, error) {
	out := m.outcome("warn", a)
	if err := m.store.EnsureUser(ctx, a.TargetID, a.TargetName); err != nil {
		return out, err
	}
	count, err := m.store.IncrementWarnCount(ctx, a.TargetID)
	if err != nil {
		return out, err
	}
	out.WarnCount = count
	if err := m.gw.SendDM(a.TargetID, fmt.Sprintf("You have been warned. Reason: %s", out.Reason)); err != nil {
		m.logger.Debug("warn dm failed", zap.String("user_id", a.TargetID), zap.Error(err))
	}
	m.record(ctx, a, out)
	return out, nil
}

func (m *Module) outcome(command string, a Action) Outcome {
	return Outcome{
		CaseID:   uuid.NewString(),
		Command:  command,
		TargetID: a.TargetID,
		Reason:   reasonOrDefault(a.Reason),
		Duration: a.Duration,
	}
}

func (m *Module) record(ctx context.Context, a Action, out Outcome) {
	message := fmt.Sprintf("case=%s target=%s moderator=%s reason=%s", out.CaseID, out.TargetID, a.ModeratorID, out.Reason)
	if out.WarnCount > 0 {
		message += fmt.Sprintf(" warns=%d", out.WarnCount)
	}
	m.audit.Log(ctx, audit.LevelWarn, a.ModeratorID, a.ChannelID, out.Command, message)
}
