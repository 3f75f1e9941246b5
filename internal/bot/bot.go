package bot

import (
	"context"
	"fmt"
	"time"

	"sentinel-community/internal/analytics"
	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/modules/help"
	"sentinel-community/internal/modules/moderation"
	"sentinel-community/internal/modules/quiz"
	"sentinel-community/internal/modules/reactionroles"
	"sentinel-community/internal/modules/verification"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"
	"sentinel-community/internal/utils"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const genericFailure = "Something went wrong, please try again later."

// Bot owns the component registry and the discord session.
type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *storage.Store
	menus   *state.Store
	session *discordgo.Session
	gw      gateway.Gateway
	clock   clock.Clock
	started time.Time

	audit      *audit.Logger
	analytics  *analytics.Service
	moderation *moderation.Module
	quiz       *quiz.Engine
	roles      *reactionroles.Module
	help       *help.Browser
	verify     *verification.Flow

	router   *exrouter.Route
	commands map[string]command
	cooldown *utils.Cooldown
	latency  func() time.Duration
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, menus *state.Store, tiers []storage.Tier, questions []storage.Question) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := newBot(cfg, logger, store, menus, gateway.NewSession(session), tiers, questions)
	b.session = session
	b.latency = session.HeartbeatLatency
	return b, nil
}

// newBot builds every component once against gw.
func newBot(cfg config.Config, logger *zap.Logger, store *storage.Store, menus *state.Store, gw gateway.Gateway, tiers []storage.Tier, questions []storage.Question) *Bot {
	ids := cfg.Identifiers
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		menus:     menus,
		gw:        gw,
		clock:     clock.Real(),
		started:   time.Now(),
		audit:     audit.NewLogger(store, logger.Named("audit")),
		analytics: analytics.New(store),
		cooldown:  utils.NewCooldown(time.Duration(cfg.Moderation.CommandCooldownSeconds) * time.Second),
		latency:   func() time.Duration { return 0 },
	}
	b.moderation = moderation.New(cfg.Moderation, ids.MutedRoleID, store, menus, gw, b.audit, logger.Named("moderation"))
	b.quiz = quiz.New(cfg.Quiz, ids.GuildID, tiers, questions, store, gw, logger.Named("quiz"))
	b.roles = reactionroles.New(ids.GuildID, ids.ReactChannelID, cfg.Roles, store, menus, gw, logger.Named("roles"))
	b.roles.SetColor(cfg.Embeds.Colors.Primary)
	b.verify = verification.New(ids, store, menus, gw, b.audit, logger.Named("verification"))
	b.verify.SetColor(cfg.Embeds.Colors.Primary)

	b.registerCommands()
	b.help = help.New(cfg.Help, cfg.Prefix, b.helpCategories(), cfg.Embeds, gw, logger.Named("help"))
	b.audit.SetNotifier(b.notifyAudit)
	return b
}

// WithClock swaps the clock of every time-driven component.
func (b *Bot) WithClock(c clock.Clock) {
	b.clock = c
	b.store.WithClock(c)
	b.audit.WithClock(c)
	b.moderation.WithClock(c)
	b.quiz.WithClock(c)
	b.help.WithClock(c)
}

func (b *Bot) Quiz() *quiz.Engine { return b.quiz }

func (b *Bot) Gateway() gateway.Gateway { return b.gw }

// Restore reloads tracked menus and reschedules pending unmutes.
func (b *Bot) Restore(ctx context.Context) error {
	if err := b.roles.Load(ctx); err != nil {
		return fmt.Errorf("load role menus: %w", err)
	}
	if err := b.verify.Load(); err != nil {
		return fmt.Errorf("load verification prompts: %w", err)
	}
	recovered, err := b.moderation.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover mutes: %w", err)
	}
	b.logger.Info("state restored", zap.Int("pending_unmutes", recovered))
	return nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onGuildMemberUpdate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.Restore(ctx)
}

func (b *Bot) Close() {
	_ = b.quiz.Cancel()
	if b.session != nil {
		_ = b.session.Close()
	}
}

// SetStatus updates the presence text.
func (b *Bot) SetStatus(status string) error {
	if b.session == nil {
		return nil
	}
	return b.session.UpdateGameStatus(0, status)
}

// guard is deferred by every event handler.
func (b *Bot) guard(event, channelID string) {
	rec := recover()
	if rec == nil {
		return
	}
	b.logger.Error("handler panic", zap.String("event", event), zap.Any("panic", rec), zap.Stack("stack"))
	if channelID != "" {
		b.replyError(channelID, genericFailure)
	}
}

func (b *Bot) notifyAudit(ctx context.Context, entry audit.Entry) {
	channelID := b.cfg.Identifiers.AuditChannelID
	if channelID == "" || (entry.Level == audit.LevelInfo && entry.Command == "content_filter") {
		return
	}
	if _, err := b.gw.SendEmbed(channelID, b.auditEmbed(entry)); err != nil {
		b.logger.Debug("audit channel post failed", zap.String("command", entry.Command), zap.Error(err))
	}
}
