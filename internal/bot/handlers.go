package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/modules/quiz"
	"sentinel-community/internal/modules/reactionroles"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, event *discordgo.MessageCreate) {
	defer b.guard("message_create", event.ChannelID)
	if !b.handleMessage(context.Background(), event.Message) {
		return
	}
	if !strings.HasPrefix(event.Content, b.cfg.Prefix) {
		return
	}
	if err := b.router.FindAndExecute(session, b.cfg.Prefix, session.State.User.ID, event.Message); err != nil {
		b.logger.Debug("no route", zap.String("content", event.Content), zap.Error(err))
	}
}

// handleMessage runs the moderation pipeline and DM quiz answers. It reports
// whether the message may still be routed as a command.
func (b *Bot) handleMessage(ctx context.Context, msg *discordgo.Message) bool {
	if msg.Author == nil || msg.Author.Bot {
		return false
	}
	if msg.GuildID == "" {
		b.quiz.HandleDirectMessage(ctx, msg.Author.ID, msg.Author.Username, msg.Content)
		return false
	}
	result := b.moderation.HandleMessage(ctx, msg)
	return !result.Deleted
}

func (b *Bot) onReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	defer b.guard("reaction_add", "")
	var user *discordgo.User
	if event.Member != nil {
		user = event.Member.User
	}
	b.handleReactionAdd(context.Background(), session.State.User.ID, event.MessageReaction, user)
}

// reactor looks up the reacting user in the state cache. Remove events carry no member.
func reactor(session *discordgo.Session, guildID, userID string) *discordgo.User {
	if guildID == "" {
		return nil
	}
	member, err := session.State.Member(guildID, userID)
	if err != nil {
		return nil
	}
	return member.User
}

// ignoreReaction drops the bot's own reactions and those of other bots.
func ignoreReaction(selfID string, r *discordgo.MessageReaction, user *discordgo.User) bool {
	return r.UserID == selfID || (user != nil && user.Bot)
}

// handleReactionAdd offers the reaction to each interactive component in turn.
// user may be nil when the platform did not include the member.
func (b *Bot) handleReactionAdd(ctx context.Context, selfID string, r *discordgo.MessageReaction, user *discordgo.User) {
	if ignoreReaction(selfID, r, user) {
		return
	}
	username := ""
	if user != nil {
		username = user.Username
	}
	emoji := r.Emoji.APIName()

	if verdict := b.quiz.HandleReaction(ctx, r.MessageID, r.UserID, username, emoji); verdict != quiz.VerdictIgnored {
		return
	}
	if b.verify.Tracks(r.MessageID) {
		if _, err := b.verify.HandleReaction(ctx, r.GuildID, r.MessageID, r.UserID, emoji); err != nil {
			b.logger.Warn("verification failed", zap.String("user_id", r.UserID), zap.Error(err))
		}
		return
	}
	if b.help.HandleReaction(r.MessageID, r.UserID, emoji) {
		return
	}
	err := b.roles.HandleReactionAdd(ctx, r.GuildID, r.MessageID, r.UserID, emoji)
	b.logRoleError(r, err)
}

func (b *Bot) onReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	defer b.guard("reaction_remove", "")
	user := reactor(session, event.GuildID, event.UserID)
	b.handleReactionRemove(context.Background(), session.State.User.ID, event.MessageReaction, user)
}

func (b *Bot) handleReactionRemove(ctx context.Context, selfID string, r *discordgo.MessageReaction, user *discordgo.User) {
	if ignoreReaction(selfID, r, user) {
		return
	}
	err := b.roles.HandleReactionRemove(ctx, r.GuildID, r.MessageID, r.UserID, r.Emoji.APIName())
	b.logRoleError(r, err)
}

func (b *Bot) logRoleError(r *discordgo.MessageReaction, err error) {
	if err == nil || errors.Is(err, reactionroles.ErrNotTracked) || errors.Is(err, reactionroles.ErrNoMapping) {
		return
	}
	b.logger.Warn("role menu reaction failed", zap.String("user_id", r.UserID), zap.String("message_id", r.MessageID), zap.Error(err))
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	defer b.guard("member_add", "")
	b.handleJoin(context.Background(), event.Member)
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	defer b.guard("member_remove", "")
	b.handleLeave(context.Background(), event.Member)
}

func (b *Bot) onGuildMemberUpdate(session *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	defer b.guard("member_update", "")
	b.handleMemberUpdate(context.Background(), event.BeforeUpdate, event.Member)
}

func (b *Bot) handleJoin(ctx context.Context, member *discordgo.Member) {
	if member == nil || member.User == nil || member.User.Bot {
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, member.User.ID, "", "member_join", fmt.Sprintf("<@%s> has joined the server.", member.User.ID))
	if _, err := b.verify.HandleJoin(ctx, member.GuildID, member.User.ID, member.User.Username); err != nil {
		b.logger.Warn("verification prompt failed", zap.String("user_id", member.User.ID), zap.Error(err))
	}
}

func (b *Bot) handleLeave(ctx context.Context, member *discordgo.Member) {
	if member == nil || member.User == nil || member.User.Bot {
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, member.User.ID, "", "member_leave", fmt.Sprintf("<@%s> has left the server.", member.User.ID))
}

// handleMemberUpdate records role changes. before is nil when the member was not cached.
func (b *Bot) handleMemberUpdate(ctx context.Context, before, after *discordgo.Member) {
	if before == nil || after == nil || after.User == nil || after.User.Bot {
		return
	}
	if sameRoles(before.Roles, after.Roles) {
		return
	}
	message := fmt.Sprintf("Roles updated for <@%s>: %s -> %s", after.User.ID, roleList(before.Roles), roleList(after.Roles))
	b.audit.Log(ctx, audit.LevelInfo, after.User.ID, "", "member_roles", message)
}

func sameRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}

func roleList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, "<@&"+id+">")
	}
	return strings.Join(mentions, ", ")
}
