package reactionroles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	ErrNotTracked = errors.New("message is not a role menu")
	ErrNoMapping  = errors.New("no role mapped to emoji")
)

type Module struct {
	mu      sync.Mutex
	tracked map[string]string

	guildID   string
	channelID string
	roles     []config.RoleMapping
	byEmoji   map[string]config.RoleMapping
	color     int
	store     *storage.Store
	menus     *state.Store
	gw        gateway.Gateway
	logger    *zap.Logger
}

func New(guildID, channelID string, roles []config.RoleMapping, store *storage.Store, menus *state.Store, gw gateway.Gateway, logger *zap.Logger) *Module {
	byEmoji := make(map[string]config.RoleMapping, len(roles))
	for _, role := range roles {
		byEmoji[NormalizeEmoji(role.Emoji)] = role
	}
	return &Module{
		tracked:   make(map[string]string),
		guildID:   guildID,
		channelID: channelID,
		roles:     roles,
		byEmoji:   byEmoji,
		store:     store,
		menus:     menus,
		gw:        gw,
		logger:    logger,
	}
}

func (m *Module) SetColor(color int) { m.color = color }

// Load mirrors the role catalogue into the store and restores tracked menus.
func (m *Module) Load(ctx context.Context) error {
	for _, role := range m.roles {
		if err := m.store.UpsertRole(ctx, storage.Role{RoleID: role.RoleID, Name: role.Name}); err != nil {
			return err
		}
	}
	if m.menus == nil {
		return nil
	}
	menus, err := m.menus.ListMenus(state.MenuRoles)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, menu := range menus {
		m.tracked[menu.MessageID] = menu.ChannelID
	}
	m.mu.Unlock()
	return nil
}

// PostMenu sends the Role Selection embed and seeds one reaction per role.
func (m *Module) PostMenu(ctx context.Context, channelID string) (string, error) {
	if channelID == "" {
		channelID = m.channelID
	}
	if len(m.roles) == 0 {
		return "", errors.New("no self-service roles configured")
	}

	var lines []string
	for _, role := range m.roles {
		lines = append(lines, fmt.Sprintf("%s : %s", role.Emoji, role.Name))
	}
	messageID, err := m.gw.SendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       "Role Selection",
		Description: "React to pick your roles, remove the reaction to drop one.\n\n" + strings.Join(lines, "\n"),
		Color:       m.color,
	})
	if err != nil {
		return "", err
	}
	for _, role := range m.roles {
		if err := m.gw.AddReaction(channelID, messageID, NormalizeEmoji(role.Emoji)); err != nil {
			m.logger.Warn("role menu reaction failed", zap.String("emoji", role.Emoji), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.tracked[messageID] = channelID
	m.mu.Unlock()
	if m.menus != nil {
		if err := m.menus.PutMenu(state.Menu{Kind: state.MenuRoles, ChannelID: channelID, MessageID: messageID}); err != nil {
			m.logger.Warn("role menu not persisted", zap.String("message_id", messageID), zap.Error(err))
		}
	}
	return messageID, nil
}

func (m *Module) Tracks(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[messageID]
	return ok
}

// HandleReactionAdd grants the mapped role and records the user_roles row.
func (m *Module) HandleReactionAdd(ctx context.Context, guildID, messageID, userID, emoji string) error {
	role, err := m.lookup(messageID, emoji)
	if err != nil {
		return err
	}
	if err := m.gw.AddRole(m.guild(guildID), userID, role.RoleID); err != nil {
		m.logger.Warn("role grant failed", zap.String("user_id", userID), zap.String("role_id", role.RoleID), zap.Error(err))
		return fmt.Errorf("grant %s: %w", role.Name, err)
	}
	if err := m.store.UpsertRole(ctx, storage.Role{RoleID: role.RoleID, Name: role.Name}); err != nil {
		return err
	}
	return m.store.AddUserRole(ctx, userID, role.RoleID)
}

// HandleReactionRemove revokes the role. The row stays when the revoke fails.
func (m *Module) HandleReactionRemove(ctx context.Context, guildID, messageID, userID, emoji string) error {
	role, err := m.lookup(messageID, emoji)
	if err != nil {
		return err
	}
	if err := m.gw.RemoveRole(m.guild(guildID), userID, role.RoleID); err != nil {
		m.logger.Warn("role revoke failed", zap.String("user_id", userID), zap.String("role_id", role.RoleID), zap.Error(err))
		return fmt.Errorf("revoke %s: %w", role.Name, err)
	}
	return m.store.RemoveUserRole(ctx, userID, role.RoleID)
}

func (m *Module) lookup(messageID, emoji string) (config.RoleMapping, error) {
	if !m.Tracks(messageID) {
		return config.RoleMapping{}, ErrNotTracked
	}
	role, ok := m.byEmoji[NormalizeEmoji(emoji)]
	if !ok || role.RoleID == "" {
		m.logger.Debug("unmapped role reaction", zap.String("emoji", emoji))
		return config.RoleMapping{}, fmt.Errorf("%w %q", ErrNoMapping, emoji)
	}
	return role, nil
}

func (m *Module) guild(guildID string) string {
	if guildID != "" {
		return guildID
	}
	return m.guildID
}

// NormalizeEmoji reduces <a:name:id>, <:name:id> and name:id to name:id.
// Unicode emoji lose their variation selector.
func NormalizeEmoji(emoji string) string {
	emoji = strings.ReplaceAll(strings.TrimSpace(emoji), "\uFE0F", "")
	emoji = strings.TrimSuffix(strings.TrimPrefix(emoji, "<"), ">")
	emoji = strings.TrimPrefix(emoji, "a:")
	return strings.TrimPrefix(emoji, ":")
}
