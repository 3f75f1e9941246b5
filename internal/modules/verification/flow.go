package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const EmojiAgree = "✅"

// Flow gates new members behind the Agree & Continue prompt.
type Flow struct {
	mu      sync.Mutex
	prompts map[string]string

	ids    config.Identifiers
	color  int
	store  *storage.Store
	menus  *state.Store
	gw     gateway.Gateway
	audit  *audit.Logger
	logger *zap.Logger
}

func New(ids config.Identifiers, store *storage.Store, menus *state.Store, gw gateway.Gateway, auditLogger *audit.Logger, logger *zap.Logger) *Flow {
	return &Flow{
		prompts: make(map[string]string),
		ids:     ids,
		store:   store,
		menus:   menus,
		gw:      gw,
		audit:   auditLogger,
		logger:  logger,
	}
}

func (f *Flow) SetColor(color int) { f.color = color }

// Load restores prompts posted before a restart.
func (f *Flow) Load() error {
	if f.menus == nil {
		return nil
	}
	menus, err := f.menus.ListMenus(state.MenuVerification)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, menu := range menus {
		f.prompts[menu.MessageID] = menu.UserID
	}
	return nil
}

// HandleJoin marks the member unverified and posts their prompt.
func (f *Flow) HandleJoin(ctx context.Context, guildID, userID, username string) (string, error) {
	if f.ids.UnverifiedRoleID != "" {
		if err := f.gw.AddRole(guildID, userID, f.ids.UnverifiedRoleID); err != nil {
			f.logger.Warn("unverified role grant failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := f.store.EnsureUser(ctx, userID, username); err != nil {
		f.logger.Warn("ensure joined user failed", zap.String("user_id", userID), zap.Error(err))
	}
	if f.ids.VerificationChannelID == "" {
		return "", errors.New("verification channel is not configured")
	}

	messageID, err := f.gw.SendEmbed(f.ids.VerificationChannelID, &discordgo.MessageEmbed{
		Title:       "Agree & Continue",
		Description: fmt.Sprintf("Welcome <@%s>! Read the rules, then react with %s to get access to the server.", userID, EmojiAgree),
		Color:       f.color,
	})
	if err != nil {
		return "", fmt.Errorf("post verification prompt: %w", err)
	}
	if err := f.gw.AddReaction(f.ids.VerificationChannelID, messageID, EmojiAgree); err != nil {
		f.logger.Warn("verification reaction failed", zap.Error(err))
	}

	f.mu.Lock()
	f.prompts[messageID] = userID
	f.mu.Unlock()
	if f.menus != nil {
		menu := state.Menu{Kind: state.MenuVerification, ChannelID: f.ids.VerificationChannelID, MessageID: messageID, UserID: userID}
		if err := f.menus.PutMenu(menu); err != nil {
			f.logger.Warn("verification prompt not persisted", zap.Error(err))
		}
	}
	return messageID, nil
}

func (f *Flow) Tracks(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.prompts[messageID]
	return ok
}

// HandleReaction verifies the prompt's owner. It reports whether a transition happened.
func (f *Flow) HandleReaction(ctx context.Context, guildID, messageID, userID, emoji string) (bool, error) {
	if emoji != EmojiAgree {
		return false, nil
	}
	f.mu.Lock()
	owner, ok := f.prompts[messageID]
	if !ok || owner != userID {
		f.mu.Unlock()
		return false, nil
	}
	// Claimed under the lock so a second reaction cannot race the first.
	delete(f.prompts, messageID)
	f.mu.Unlock()

	if user, err := f.store.GetUser(ctx, userID); err == nil && user.Verified {
		f.dropPrompt(messageID)
		return false, nil
	}

	if f.ids.UnverifiedRoleID != "" {
		if err := f.gw.RemoveRole(guildID, userID, f.ids.UnverifiedRoleID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
			f.restore(messageID, userID)
			return false, fmt.Errorf("remove unverified role: %w", err)
		}
	}
	if f.ids.VerifiedRoleID != "" {
		if err := f.gw.AddRole(guildID, userID, f.ids.VerifiedRoleID); err != nil {
			f.restore(messageID, userID)
			return false, fmt.Errorf("add verified role: %w", err)
		}
	}
	if err := f.store.SetVerified(ctx, userID, ""); err != nil {
		f.restore(messageID, userID)
		return false, fmt.Errorf("mark verified: %w", err)
	}

	if err := f.gw.SendDM(userID, "Verification successful!"); err != nil {
		f.logger.Info("verification dm failed", zap.String("user_id", userID), zap.Error(err))
	}
	f.dropPrompt(messageID)
	f.audit.Log(ctx, audit.LevelInfo, userID, f.ids.VerificationChannelID, "verify", "member verified")
	return true, nil
}

func (f *Flow) restore(messageID, userID string) {
	f.mu.Lock()
	f.prompts[messageID] = userID
	f.mu.Unlock()
}

func (f *Flow) dropPrompt(messageID string) {
	if err := f.gw.DeleteMessage(f.ids.VerificationChannelID, messageID); err != nil {
		f.logger.Debug("verification prompt delete failed", zap.String("message_id", messageID), zap.Error(err))
	}
	if f.menus != nil {
		if err := f.menus.DeleteMenu(messageID); err != nil {
			f.logger.Warn("verification prompt not forgotten", zap.Error(err))
		}
	}
}
