// Package help implements the reaction-driven command browser.
package help

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	EmojiBack  = "\u2B05\uFE0F"
	EmojiClose = "\u274C"
)

type Command struct {
	Name        string
	Usage       string
	Description string
}

type Category struct {
	Key      string
	Title    string
	Emoji    string
	Commands []Command
}

type session struct {
	channelID string
	ownerID   string
	category  string
	lastSeen  time.Time
}

// Browser keeps one session per help message.
type Browser struct {
	mu       sync.Mutex
	sessions map[string]*session

	prefix     string
	categories []Category
	shared     bool
	timeout    time.Duration
	embeds     config.EmbedConfig
	gw         gateway.Gateway
	clock      clock.Clock
	logger     *zap.Logger
}

func New(cfg config.HelpConfig, prefix string, categories []Category, embeds config.EmbedConfig, gw gateway.Gateway, logger *zap.Logger) *Browser {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Browser{
		sessions:   make(map[string]*session),
		prefix:     prefix,
		categories: categories,
		shared:     cfg.SharedSessions,
		timeout:    timeout,
		embeds:     embeds,
		gw:         gw,
		clock:      clock.Real(),
		logger:     logger,
	}
}

func (b *Browser) WithClock(c clock.Clock) { b.clock = c }

// Open posts the root menu for userID.
func (b *Browser) Open(channelID, userID string) (string, error) {
	messageID, err := b.gw.SendEmbed(channelID, b.rootEmbed())
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.pruneLocked(b.clock.Now())
	b.sessions[messageID] = &session{channelID: channelID, ownerID: userID, lastSeen: b.clock.Now()}
	b.mu.Unlock()

	b.addReactions(channelID, messageID, b.rootReactions())
	return messageID, nil
}

// HandleReaction navigates the menu. It reports whether the reaction belonged to a live session.
func (b *Browser) HandleReaction(messageID, userID, emoji string) bool {
	now := b.clock.Now()
	emoji = stripVariation(emoji)

	b.mu.Lock()
	b.pruneLocked(now)
	s := b.sessions[messageID]
	if s == nil || (!b.shared && s.ownerID != userID) {
		b.mu.Unlock()
		return false
	}
	s.lastSeen = now
	var (
		embed     *discordgo.MessageEmbed
		reactions []string
		closing   bool
	)
	switch {
	case emoji == stripVariation(EmojiClose):
		delete(b.sessions, messageID)
		closing = true
	case emoji == stripVariation(EmojiBack) && s.category != "":
		s.category = ""
		embed, reactions = b.rootEmbed(), b.rootReactions()
	case s.category == "":
		if category, ok := b.categoryByEmoji(emoji); ok {
			s.category = category.Key
			embed, reactions = b.categoryEmbed(category), []string{EmojiBack, EmojiClose}
		}
	}
	channelID := s.channelID
	b.mu.Unlock()

	if closing {
		if err := b.gw.DeleteMessage(channelID, messageID); err != nil {
			b.logger.Debug("help close failed", zap.String("message_id", messageID), zap.Error(err))
		}
		return true
	}
	if embed == nil {
		_ = b.gw.RemoveReaction(channelID, messageID, emoji, userID)
		return true
	}
	if err := b.gw.EditEmbed(channelID, messageID, embed); err != nil {
		b.logger.Warn("help edit failed", zap.String("message_id", messageID), zap.Error(err))
		return true
	}
	if err := b.gw.ClearReactions(channelID, messageID); err != nil {
		b.logger.Debug("help clear reactions failed", zap.Error(err))
	}
	b.addReactions(channelID, messageID, reactions)
	return true
}

// Sessions reports live sessions after pruning.
func (b *Browser) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.clock.Now())
	return len(b.sessions)
}

func (b *Browser) pruneLocked(now time.Time) {
	for id, s := range b.sessions {
		if now.Sub(s.lastSeen) >= b.timeout {
			delete(b.sessions, id)
		}
	}
}

func (b *Browser) categoryByEmoji(emoji string) (Category, bool) {
	for _, category := range b.categories {
		if stripVariation(category.Emoji) == emoji {
			return category, true
		}
	}
	return Category{}, false
}

func (b *Browser) rootReactions() []string {
	out := make([]string, 0, len(b.categories)+1)
	for _, category := range b.categories {
		out = append(out, category.Emoji)
	}
	return append(out, EmojiClose)
}

func (b *Browser) addReactions(channelID, messageID string, emojis []string) {
	for _, emoji := range emojis {
		if err := b.gw.AddReaction(channelID, messageID, emoji); err != nil {
			b.logger.Debug("help reaction failed", zap.String("emoji", emoji), zap.Error(err))
		}
	}
}

func (b *Browser) rootEmbed() *discordgo.MessageEmbed {
	var lines []string
	for _, category := range b.categories {
		names := make([]string, 0, len(category.Commands))
		for _, cmd := range category.Commands {
			names = append(names, "`"+cmd.Name+"`")
		}
		lines = append(lines, fmt.Sprintf("%s **%s**\n%s", category.Emoji, category.Title, strings.Join(names, ", ")))
	}
	return &discordgo.MessageEmbed{
		Title:       "Help",
		Description: "React with a category to see its commands.\n\n" + strings.Join(lines, "\n\n"),
		Color:       b.embeds.Colors.Primary,
		Footer:      b.footer(),
	}
}

func (b *Browser) categoryEmbed(category Category) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(category.Commands))
	for _, cmd := range category.Commands {
		name := b.prefix + cmd.Name
		if cmd.Usage != "" {
			name += " " + cmd.Usage
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: name, Value: cmd.Description})
	}
	return &discordgo.MessageEmbed{
		Title:  category.Emoji + " " + category.Title,
		Color:  b.embeds.Colors.Primary,
		Fields: fields,
		Footer: b.footer(),
	}
}

func (b *Browser) footer() *discordgo.MessageEmbedFooter {
	if b.embeds.Footer == "" {
		return nil
	}
	return &discordgo.MessageEmbedFooter{Text: b.embeds.Footer}
}

func stripVariation(emoji string) string {
	return strings.ReplaceAll(emoji, "\uFE0F", "")
}
