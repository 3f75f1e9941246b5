package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"sentinel-community/internal/modules/moderation"
	"sentinel-community/internal/sysinfo"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// maxPurge is the most messages one bulk delete accepts.
const maxPurge = 100

// target resolves a mention or raw id at position i to a user id and display name.
func (b *Bot) target(req request, i int) (string, string, bool) {
	raw := req.arg(i)
	id := raw
	if m := mentionPattern.FindStringSubmatch(raw); m != nil {
		id = m[1]
	}
	if id == "" {
		return "", "", false
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", "", false
	}
	name := id
	for _, user := range req.msg.Mentions {
		if user != nil && user.ID == id {
			name = user.Username
		}
	}
	return id, name, true
}

func (b *Bot) action(req request, cmdUsage string) (moderation.Action, error) {
	id, name, ok := b.target(req, 1)
	if !ok {
		return moderation.Action{}, usage(b.cfg.Prefix+req.arg(0), cmdUsage)
	}
	return moderation.Action{
		GuildID:     b.guildID(req),
		ChannelID:   req.msg.ChannelID,
		ModeratorID: req.msg.Author.ID,
		TargetID:    id,
		TargetName:  name,
		Reason:      req.rest(2),
	}, nil
}

func (b *Bot) guildID(req request) string {
	if req.msg.GuildID != "" {
		return req.msg.GuildID
	}
	return b.cfg.Identifiers.GuildID
}

func (b *Bot) cmdKick(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user> [reason]")
	if err != nil {
		return reply{}, err
	}
	out, err := b.moderation.Kick(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "kicked")}, nil
}

func (b *Bot) cmdBan(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user> [reason]")
	if err != nil {
		return reply{}, err
	}
	out, err := b.moderation.Ban(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "banned")}, nil
}

func (b *Bot) cmdUnban(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user>")
	if err != nil {
		return reply{}, err
	}
	out, err := b.moderation.Unban(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "unbanned")}, nil
}

func (b *Bot) cmdMute(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user> [duration] [reason]")
	if err != nil {
		return reply{}, err
	}
	if d, err := time.ParseDuration(req.arg(2)); err == nil && d > 0 {
		a.Duration = d
		a.Reason = req.rest(3)
	}
	out, err := b.moderation.MuteMember(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "muted")}, nil
}

func (b *Bot) cmdUnmute(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user>")
	if err != nil {
		return reply{}, err
	}
	out, err := b.moderation.UnmuteMember(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "unmuted")}, nil
}

func (b *Bot) cmdWarn(ctx context.Context, req request) (reply, error) {
	a, err := b.action(req, "<user> [reason]")
	if err != nil {
		return reply{}, err
	}
	out, err := b.moderation.Warn(ctx, a)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.caseEmbed(out, "warned")}, nil
}

func (b *Bot) cmdClear(ctx context.Context, req request) (reply, error) {
	amount, err := strconv.Atoi(req.arg(1))
	if err != nil || amount <= 0 {
		return reply{}, usage(b.cfg.Prefix+"clear", "<amount>")
	}
	if amount > maxPurge {
		return reply{}, &userError{msg: fmt.Sprintf("You can remove at most %d messages at a time.", maxPurge)}
	}
	ids, err := b.gw.RecentMessages(req.msg.ChannelID, req.msg.ID, amount)
	if err != nil {
		return reply{}, err
	}
	if err := b.gw.BulkDelete(req.msg.ChannelID, ids); err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("%d messages removed.", len(ids))}, nil
}

// cmdQuiz replies through the round itself.
func (b *Bot) cmdQuiz(ctx context.Context, req request) (reply, error) {
	_, err := b.quiz.Start(ctx, req.msg.ChannelID)
	return reply{}, err
}

func (b *Bot) cmdQuizCancel(ctx context.Context, req request) (reply, error) {
	if err := b.quiz.Cancel(); err != nil {
		return reply{}, err
	}
	return reply{content: "The quiz has been cancelled."}, nil
}

func (b *Bot) cmdLeaderboard(ctx context.Context, req request) (reply, error) {
	users, err := b.quiz.Leaderboard(ctx, 10)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: b.leaderboardEmbed(users)}, nil
}

func (b *Bot) cmdTiers(ctx context.Context, req request) (reply, error) {
	return reply{embed: b.tiersEmbed(b.quiz.Tiers())}, nil
}

func (b *Bot) cmdProfile(ctx context.Context, req request) (reply, error) {
	userID, name := req.msg.Author.ID, req.msg.Author.Username
	if req.arg(1) != "" {
		var ok bool
		if userID, name, ok = b.target(req, 1); !ok {
			return reply{}, usage(b.cfg.Prefix+"profile", "[user]")
		}
	}
	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return reply{}, err
	}
	total, correct, err := b.store.QuizAnswerStats(ctx, userID)
	if err != nil {
		return reply{}, err
	}
	if user.Username == "" {
		user.Username = name
	}
	return reply{embed: b.profileEmbed(user, total, correct)}, nil
}

func (b *Bot) cmdRoles(ctx context.Context, req request) (reply, error) {
	channelID := b.cfg.Identifiers.ReactChannelID
	if channelID == "" {
		channelID = req.msg.ChannelID
	}
	_, err := b.roles.PostMenu(ctx, channelID)
	return reply{}, err
}

func (b *Bot) cmdHelp(ctx context.Context, req request) (reply, error) {
	_, err := b.help.Open(req.msg.ChannelID, req.msg.Author.ID)
	return reply{}, err
}

func (b *Bot) cmdPing(ctx context.Context, req request) (reply, error) {
	return reply{content: fmt.Sprintf("Pong! Gateway latency: %dms", b.latency().Milliseconds())}, nil
}

func (b *Bot) cmdStats(ctx context.Context, req request) (reply, error) {
	report, err := b.analytics.Report(ctx, b.clock.Now().Add(-24*time.Hour))
	if err != nil {
		return reply{}, err
	}
	snap := sysinfo.Collect(ctx, b.started, b.cfg.DatabasePath)
	return reply{embed: b.statsEmbed(snap, report)}, nil
}

func (b *Bot) cmdSetPoints(ctx context.Context, req request) (reply, error) {
	userID, name, ok := b.target(req, 1)
	points, err := strconv.Atoi(req.arg(2))
	if !ok || err != nil || points < 0 {
		return reply{}, usage(b.cfg.Prefix+"setpoints", "<user> <points>")
	}
	if err := b.store.EnsureUser(ctx, userID, name); err != nil {
		return reply{}, err
	}
	if err := b.store.SetPoints(ctx, userID, points); err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("Set <@%s>'s points to %d.", userID, points)}, nil
}

func (b *Bot) cmdRecompute(ctx context.Context, req request) (reply, error) {
	userID, _, ok := b.target(req, 1)
	if !ok {
		return reply{}, usage(b.cfg.Prefix+"recompute", "<user>")
	}
	tier, changed, err := b.quiz.Recompute(ctx, userID)
	if err != nil {
		return reply{}, err
	}
	if !changed {
		return reply{content: fmt.Sprintf("<@%s> stays at %s.", userID, tier.Name)}, nil
	}
	return reply{content: fmt.Sprintf("<@%s> is now %s.", userID, tier.Name)}, nil
}

func (b *Bot) cmdUserTier(ctx context.Context, req request) (reply, error) {
	userID, name, ok := b.target(req, 1)
	tierID, err := strconv.Atoi(req.arg(2))
	if !ok || err != nil {
		return reply{}, usage(b.cfg.Prefix+"usertier", "<user> <tier>")
	}
	var tierName string
	for _, tier := range b.quiz.Tiers() {
		if tier.TierID == tierID {
			tierName = tier.Name
		}
	}
	if tierName == "" {
		return reply{}, &userError{msg: fmt.Sprintf("Unknown tier %d.", tierID)}
	}
	if err := b.store.EnsureUser(ctx, userID, name); err != nil {
		return reply{}, err
	}
	if err := b.store.SetTier(ctx, userID, tierID); err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("Set <@%s>'s tier to %s.", userID, tierName)}, nil
}

func (b *Bot) cmdAllUsers(ctx context.Context, req request) (reply, error) {
	count, err := b.store.CountUsers(ctx)
	if err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("%d users registered.", count)}, nil
}

func (b *Bot) cmdAddUser(ctx context.Context, req request) (reply, error) {
	userID, name, ok := b.target(req, 1)
	if !ok {
		return reply{}, usage(b.cfg.Prefix+"adduser", "<user>")
	}
	if err := b.store.EnsureUser(ctx, userID, name); err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("Registered <@%s>.", userID)}, nil
}
