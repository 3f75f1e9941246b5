package moderation

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"
	"sentinel-community/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Violation string

const (
	ViolationWallOfText  Violation = "wall_of_text"
	ViolationMentions    Violation = "mentions"
	ViolationAttachments Violation = "attachments"
	ViolationEmojis      Violation = "emojis"
	ViolationBlockedLink Violation = "blocked_link"
)

var violationNotices = map[Violation]string{
	ViolationWallOfText:  "Your message was deleted because it exceeded the character limit.",
	ViolationMentions:    "Your message was deleted because it contained too many mentions.",
	ViolationAttachments: "Your message was deleted because it contained too many attachments.",
	ViolationEmojis:      "Your message was deleted because it contained too many emojis.",
	ViolationBlockedLink: "Your message was deleted because it linked to a blocked domain.",
}

// Result describes what HandleMessage did with one message.
type Result struct {
	Flooded    bool
	Violations []Violation
	Deleted    bool
}

type Module struct {
	mu        sync.Mutex
	windows   map[string]*utils.SlidingWindow
	lastMute  map[string]time.Time
	mutes     map[string]*muteHandle
	lastSweep time.Time

	cfg         config.ModerationConfig
	mutedRoleID string
	blocked     map[string]struct{}
	store       *storage.Store
	pending     *state.Store
	gw          gateway.Gateway
	audit       *audit.Logger
	clock       clock.Clock
	logger      *zap.Logger
}

func New(cfg config.ModerationConfig, mutedRoleID string, store *storage.Store, pending *state.Store, gw gateway.Gateway, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{
		windows:     make(map[string]*utils.SlidingWindow),
		lastMute:    make(map[string]time.Time),
		mutes:       make(map[string]*muteHandle),
		cfg:         cfg,
		mutedRoleID: mutedRoleID,
		blocked:     utils.DomainSet(cfg.BlockedDomains),
		store:       store,
		pending:     pending,
		gw:          gw,
		audit:       auditLogger,
		clock:       clock.Real(),
		logger:      logger,
	}
}

func (m *Module) WithClock(c clock.Clock) {
	m.clock = c
}

// HandleMessage runs flood detection and the content checks on a guild message.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.Message) Result {
	var result Result
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return result
	}

	now := m.clock.Now()
	key := msg.GuildID + ":" + msg.Author.ID
	window := m.getWindow(key, now)
	if count := window.Add(now); count >= m.cfg.SpamMessageCount {
		window.Reset()
		result.Flooded = true
		result.Deleted = m.deleteMessage(msg)
		_, err := m.Mute(ctx, MuteRequest{
			GuildID:   msg.GuildID,
			UserID:    msg.Author.ID,
			Username:  msg.Author.Username,
			ChannelID: msg.ChannelID,
			Reason:    "Spamming",
		})
		if err != nil {
			m.logger.Warn("spam mute failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		}
	}

	result.Violations = m.checkContent(msg)
	for _, violation := range result.Violations {
		if !result.Deleted {
			result.Deleted = m.deleteMessage(msg)
		}
		if err := m.gw.SendDM(msg.Author.ID, violationNotices[violation]); err != nil {
			m.logger.Debug("violation dm failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		}
		m.audit.Log(ctx, audit.LevelInfo, msg.Author.ID, msg.ChannelID, "content_filter", string(violation))
	}
	return result
}

func (m *Module) checkContent(msg *discordgo.Message) []Violation {
	var violations []Violation
	if m.cfg.WallOfTextLength > 0 && utf8.RuneCountInString(msg.Content) > m.cfg.WallOfTextLength {
		violations = append(violations, ViolationWallOfText)
	}
	if m.cfg.MaxMentions > 0 && len(msg.Mentions) > m.cfg.MaxMentions {
		violations = append(violations, ViolationMentions)
	}
	if m.cfg.MaxAttachments > 0 && len(msg.Attachments) > m.cfg.MaxAttachments {
		violations = append(violations, ViolationAttachments)
	}
	if m.cfg.MaxEmojis > 0 && utils.CountEmojis(msg.Content) > m.cfg.MaxEmojis {
		violations = append(violations, ViolationEmojis)
	}
	if _, ok := utils.BlockedDomain(msg.Content, m.blocked); ok {
		violations = append(violations, ViolationBlockedLink)
	}
	return violations
}

func (m *Module) deleteMessage(msg *discordgo.Message) bool {
	err := m.gw.DeleteMessage(msg.ChannelID, msg.ID)
	if err == nil {
		return true
	}
	if errors.Is(err, gateway.ErrNotFound) {
		return true
	}
	m.logger.Warn("message delete failed", zap.String("channel_id", msg.ChannelID), zap.String("message_id", msg.ID), zap.Error(err))
	return false
}

func (m *Module) getWindow(key string, now time.Time) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)
	window := m.windows[key]
	if window == nil {
		window = utils.NewSlidingWindow(m.spamWindow())
		m.windows[key] = window
	}
	return window
}

// sweepLocked evicts idle windows and stale escalation marks, at most once per window.
func (m *Module) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < m.spamWindow() {
		return
	}
	m.lastSweep = now
	for key, window := range m.windows {
		if window.Count(now) == 0 {
			delete(m.windows, key)
		}
	}
	second := m.secondMute()
	for key, at := range m.lastMute {
		if now.Sub(at) > second {
			delete(m.lastMute, key)
		}
	}
}

func (m *Module) trackedWindows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Module) spamWindow() time.Duration {
	return time.Duration(m.cfg.SpamThreshold) * time.Second
}

func (m *Module) firstMute() time.Duration {
	return time.Duration(m.cfg.FirstMuteDuration) * time.Second
}

func (m *Module) secondMute() time.Duration {
	return time.Duration(m.cfg.SecondMuteDuration) * time.Second
}
