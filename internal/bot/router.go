package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/help"
	"sentinel-community/internal/modules/moderation"
	"sentinel-community/internal/modules/quiz"
	"sentinel-community/internal/storage"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type category struct {
	key   string
	title string
	emoji string
}

var categories = []category{
	{key: "moderation", title: "Moderation", emoji: "🔨"},
	{key: "quiz", title: "Quiz & Tiers", emoji: "🧠"},
	{key: "roles", title: "Roles", emoji: "🎭"},
	{key: "utility", title: "Utility", emoji: "🧰"},
}

type handlerFunc func(ctx context.Context, req request) (reply, error)

type command struct {
	name     string
	usage    string
	desc     string
	category string
	// moderator commands are authorized per command and rate limited per user.
	moderator bool
	perm      int64
	owner     bool
	run       handlerFunc
}

type request struct {
	msg  *discordgo.Message
	args []string
}

// arg returns the i-th word, where 0 is the command name.
func (r request) arg(i int) string {
	if i < len(r.args) {
		return r.args[i]
	}
	return ""
}

func (r request) rest(i int) string {
	if i >= len(r.args) {
		return ""
	}
	return strings.Join(r.args[i:], " ")
}

type reply struct {
	content string
	embed   *discordgo.MessageEmbed
}

type userError struct{ msg string }

func (e *userError) Error() string { return e.msg }

func usage(cmd string, args string) error {
	return &userError{msg: "Usage: " + cmd + " " + args}
}

type commandCooldownError struct{ remaining time.Duration }

func (e *commandCooldownError) Error() string {
	return fmt.Sprintf("command on cooldown for %s", e.remaining)
}

var errOwnerOnly = errors.New("owner only")

func (b *Bot) registerCommands() {
	list := []command{
		{name: "kick", usage: "<user> [reason]", desc: "Kick a member.", category: "moderation", moderator: true, run: b.cmdKick},
		{name: "ban", usage: "<user> [reason]", desc: "Ban a member.", category: "moderation", moderator: true, run: b.cmdBan},
		{name: "unban", usage: "<user>", desc: "Lift a ban.", category: "moderation", moderator: true, run: b.cmdUnban},
		{name: "mute", usage: "<user> [duration] [reason]", desc: "Mute a member. Without a duration the escalation policy applies.", category: "moderation", moderator: true, run: b.cmdMute},
		{name: "unmute", usage: "<user>", desc: "Unmute a member.", category: "moderation", moderator: true, run: b.cmdUnmute},
		{name: "warn", usage: "<user> [reason]", desc: "Warn a member by DM.", category: "moderation", moderator: true, run: b.cmdWarn},
		{name: "clear", usage: "<amount>", desc: "Delete the most recent messages in this channel.", category: "moderation", perm: discordgo.PermissionManageMessages, run: b.cmdClear},
		{name: "quiz", desc: "Start a quiz round in this channel.", category: "quiz", perm: discordgo.PermissionManageMessages, run: b.cmdQuiz},
		{name: "quizcancel", desc: "Cancel the running quiz.", category: "quiz", perm: discordgo.PermissionManageMessages, run: b.cmdQuizCancel},
		{name: "leaderboard", desc: "Show the top quiz players.", category: "quiz", run: b.cmdLeaderboard},
		{name: "tiers", desc: "List the tiers and their thresholds.", category: "quiz", run: b.cmdTiers},
		{name: "profile", usage: "[user]", desc: "Show points, tier and quiz stats.", category: "quiz", run: b.cmdProfile},
		{name: "roles", desc: "Post the role selection menu.", category: "roles", owner: true, run: b.cmdRoles},
		{name: "help", desc: "Browse the commands.", category: "utility", run: b.cmdHelp},
		{name: "ping", desc: "Check the bot is alive.", category: "utility", run: b.cmdPing},
		{name: "stats", desc: "Host and usage statistics.", category: "utility", run: b.cmdStats},
		{name: "setpoints", usage: "<user> <points>", desc: "Overwrite a user's points.", category: "quiz", owner: true, run: b.cmdSetPoints},
		{name: "recompute", usage: "<user>", desc: "Recompute a user's tier from their points.", category: "quiz", owner: true, run: b.cmdRecompute},
		{name: "usertier", usage: "<user> <tier>", desc: "Overwrite a user's tier.", category: "quiz", owner: true, run: b.cmdUserTier},
		{name: "adduser", usage: "<user>", desc: "Register a user row.", category: "utility", owner: true, run: b.cmdAddUser},
		{name: "allusers", desc: "Count the registered users.", category: "utility", owner: true, run: b.cmdAllUsers},
	}

	b.router = exrouter.New()
	b.commands = make(map[string]command, len(list))
	for _, cmd := range list {
		cmd := cmd
		b.commands[cmd.name] = cmd
		b.router.On(cmd.name, func(ctx *exrouter.Context) {
			b.execute(context.Background(), cmd, request{msg: ctx.Msg, args: []string(ctx.Args)})
		}).Desc(cmd.desc)
	}
}

func (b *Bot) helpCategories() []help.Category {
	out := make([]help.Category, 0, len(categories))
	for _, cat := range categories {
		entry := help.Category{Key: cat.key, Title: cat.title, Emoji: cat.emoji}
		for _, name := range b.commandOrder() {
			cmd := b.commands[name]
			if cmd.category == cat.key {
				entry.Commands = append(entry.Commands, help.Command{Name: cmd.name, Usage: cmd.usage, Description: cmd.desc})
			}
		}
		out = append(out, entry)
	}
	return out
}

// commandOrder follows the router's registration order.
func (b *Bot) commandOrder() []string {
	names := make([]string, 0, len(b.router.Routes))
	for _, route := range b.router.Routes {
		names = append(names, route.Name)
	}
	return names
}

// execute runs one command invocation end to end.
func (b *Bot) execute(ctx context.Context, cmd command, req request) {
	defer b.guard("command:"+cmd.name, req.msg.ChannelID)

	if b.cfg.Settings.DeleteCommands {
		b.deleteAfter(req.msg.ChannelID, req.msg.ID, b.cfg.Settings.DeleteCommandDelay)
	}
	res, err := b.invoke(ctx, cmd, req)
	if err != nil {
		b.replyError(req.msg.ChannelID, b.userMessage(cmd, err))
		return
	}
	b.reply(req.msg.ChannelID, res)
}

func (b *Bot) invoke(ctx context.Context, cmd command, req request) (reply, error) {
	author := req.msg.Author
	if err := b.authorize(cmd, req); err != nil {
		b.logUsage(ctx, cmd, req, err)
		return reply{}, err
	}

	if err := b.store.TouchUser(ctx, author.ID, author.Username); err != nil {
		b.logger.Warn("touch user failed", zap.String("user_id", author.ID), zap.Error(err))
	}
	res, err := cmd.run(ctx, req)
	if !cmd.moderator || err != nil {
		b.logUsage(ctx, cmd, req, err)
	}
	return res, err
}

// authorize applies the owner, permission and cooldown gates of cmd.
func (b *Bot) authorize(cmd command, req request) error {
	author := req.msg.Author
	if cmd.owner && (b.cfg.OwnerID == "" || author.ID != b.cfg.OwnerID) {
		return errOwnerOnly
	}
	switch {
	case cmd.moderator:
		if err := b.moderation.Authorize(cmd.name, author.ID, req.msg.ChannelID); err != nil {
			return err
		}
		if wait := b.cooldown.Allow(author.ID+":"+cmd.name, b.clock.Now()); wait > 0 {
			return &commandCooldownError{remaining: wait}
		}
	case cmd.perm != 0:
		perms, err := b.gw.Permissions(author.ID, req.msg.ChannelID)
		if err != nil {
			return err
		}
		if !gateway.HasPermission(perms, cmd.perm) {
			return moderation.ErrPermissionDenied
		}
	}
	return nil
}

// logUsage writes the per-command row the stats report reads. Successful
// moderator commands are recorded by the moderation module instead.
func (b *Bot) logUsage(ctx context.Context, cmd command, req request, cmdErr error) {
	message := req.rest(1)
	if cmdErr != nil {
		message = "error: " + cmdErr.Error()
	}
	err := b.store.AddLog(ctx, storage.Log{
		UserID:    req.msg.Author.ID,
		Channel:   req.msg.ChannelID,
		Command:   cmd.name,
		Message:   message,
		Timestamp: b.clock.Now(),
	})
	if err != nil {
		b.logger.Warn("command log failed", zap.String("command", cmd.name), zap.Error(err))
	}
}

func (b *Bot) userMessage(cmd command, err error) string {
	var (
		uerr     *userError
		cooldown *commandCooldownError
		quizWait *quiz.CooldownError
	)
	switch {
	case errors.As(err, &uerr):
		return uerr.msg
	case errors.Is(err, errOwnerOnly):
		return "This command is restricted to the bot owner."
	case errors.Is(err, moderation.ErrPermissionDenied):
		return "You do not have permission to use this command."
	case errors.As(err, &cooldown):
		return fmt.Sprintf("Please wait %ds before using this command again.", int(cooldown.remaining.Seconds()+0.5))
	case errors.Is(err, quiz.ErrQuizInProgress):
		return "A quiz is already in progress."
	case errors.Is(err, quiz.ErrNoActiveQuiz):
		return "There is no quiz running."
	case errors.Is(err, quiz.ErrNoQuestions):
		return "No quiz questions are available."
	case errors.As(err, &quizWait):
		return fmt.Sprintf("A quiz just ended here, try again in %ds.", int(quizWait.Remaining.Seconds()+0.5))
	case errors.Is(err, moderation.ErrMutedRoleMissing):
		return "The muted role is not configured."
	case errors.Is(err, storage.ErrNotFound):
		return "That user is not registered."
	case errors.Is(err, gateway.ErrForbidden):
		return "I am missing the permissions to do that."
	case errors.Is(err, gateway.ErrNotFound):
		return "That member could not be found."
	}
	b.logger.Error("command failed", zap.String("command", cmd.name), zap.Error(err))
	return genericFailure
}

func (b *Bot) reply(channelID string, res reply) {
	var (
		id  string
		err error
	)
	switch {
	case res.embed != nil:
		id, err = b.gw.SendEmbed(channelID, res.embed)
	case res.content != "":
		id, err = b.gw.SendMessage(channelID, res.content)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if b.cfg.Settings.DeleteResponses {
		b.deleteAfter(channelID, id, b.cfg.Settings.DeleteResponseDelay)
	}
}

func (b *Bot) replyError(channelID, message string) {
	id, err := b.gw.SendEmbed(channelID, b.errorEmbed(message))
	if err != nil {
		b.logger.Warn("error reply failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if b.cfg.Settings.DeleteErrors {
		b.deleteAfter(channelID, id, b.cfg.Settings.DeleteErrorsDelay)
	}
}

// deleteAfter removes a message after delaySeconds. Zero deletes right away.
func (b *Bot) deleteAfter(channelID, messageID string, delaySeconds int) {
	remove := func() {
		if err := b.gw.DeleteMessage(channelID, messageID); err != nil {
			b.logger.Debug("self delete failed", zap.String("message_id", messageID), zap.Error(err))
		}
	}
	if delaySeconds <= 0 {
		remove()
		return
	}
	b.clock.AfterFunc(time.Duration(delaySeconds)*time.Second, remove)
}
