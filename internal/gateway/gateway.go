package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	ErrForbidden = errors.New("gateway: missing permissions")
	ErrNotFound  = errors.New("gateway: not found")
)

// Gateway is the slice of the chat platform the engines act through.
type Gateway interface {
	SendMessage(channelID, content string) (string, error)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(channelID, messageID string) error
	// RecentMessages lists up to limit message ids older than beforeID, newest first.
	RecentMessages(channelID, beforeID string, limit int) ([]string, error)
	BulkDelete(channelID string, messageIDs []string) error
	AddReaction(channelID, messageID, emoji string) error
	RemoveReaction(channelID, messageID, emoji, userID string) error
	ClearReactions(channelID, messageID string) error
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error
	RoleIDByName(guildID, name string) (string, error)
	SendDM(userID, content string) error
	Kick(guildID, userID, reason string) error
	Ban(guildID, userID, reason string) error
	Unban(guildID, userID string) error
	Permissions(userID, channelID string) (int64, error)
}

// Session adapts a discordgo session to Gateway.
type Session struct {
	s *discordgo.Session
}

func NewSession(s *discordgo.Session) *Session {
	return &Session{s: s}
}

func (g *Session) SendMessage(channelID, content string) (string, error) {
	msg, err := g.s.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", Classify(err)
	}
	return msg.ID, nil
}

func (g *Session) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := g.s.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", Classify(err)
	}
	return msg.ID, nil
}

func (g *Session) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := g.s.ChannelMessageEditEmbed(channelID, messageID, embed)
	return Classify(err)
}

func (g *Session) DeleteMessage(channelID, messageID string) error {
	return Classify(g.s.ChannelMessageDelete(channelID, messageID))
}

func (g *Session) RecentMessages(channelID, beforeID string, limit int) ([]string, error) {
	msgs, err := g.s.ChannelMessages(channelID, limit, beforeID, "", "")
	if err != nil {
		return nil, Classify(err)
	}
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

func (g *Session) BulkDelete(channelID string, messageIDs []string) error {
	return Classify(g.s.ChannelMessagesBulkDelete(channelID, messageIDs))
}

func (g *Session) AddReaction(channelID, messageID, emoji string) error {
	return Classify(g.s.MessageReactionAdd(channelID, messageID, emoji))
}

func (g *Session) RemoveReaction(channelID, messageID, emoji, userID string) error {
	return Classify(g.s.MessageReactionRemove(channelID, messageID, emoji, userID))
}

func (g *Session) ClearReactions(channelID, messageID string) error {
	return Classify(g.s.MessageReactionsRemoveAll(channelID, messageID))
}

func (g *Session) AddRole(guildID, userID, roleID string) error {
	return Classify(g.s.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (g *Session) RemoveRole(guildID, userID, roleID string) error {
	return Classify(g.s.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (g *Session) RoleIDByName(guildID, name string) (string, error) {
	var roles []*discordgo.Role
	if guild, err := g.s.State.Guild(guildID); err == nil && guild != nil {
		roles = guild.Roles
	} else {
		fetched, err := g.s.GuildRoles(guildID)
		if err != nil {
			return "", Classify(err)
		}
		roles = fetched
	}
	for _, role := range roles {
		if role != nil && strings.EqualFold(role.Name, name) {
			return role.ID, nil
		}
	}
	return "", fmt.Errorf("role %q: %w", name, ErrNotFound)
}

func (g *Session) SendDM(userID, content string) error {
	channel, err := g.s.UserChannelCreate(userID)
	if err != nil {
		return Classify(err)
	}
	_, err = g.s.ChannelMessageSend(channel.ID, content)
	return Classify(err)
}

func (g *Session) Kick(guildID, userID, reason string) error {
	return Classify(g.s.GuildMemberDeleteWithReason(guildID, userID, reason))
}

func (g *Session) Ban(guildID, userID, reason string) error {
	return Classify(g.s.GuildBanCreateWithReason(guildID, userID, reason, 0))
}

func (g *Session) Unban(guildID, userID string) error {
	return Classify(g.s.GuildBanDelete(guildID, userID))
}

func (g *Session) Permissions(userID, channelID string) (int64, error) {
	perms, err := g.s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return 0, Classify(err)
	}
	return perms, nil
}

// Classify maps REST status codes onto ErrForbidden and ErrNotFound, keeping the original error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// HasPermission reports whether perms grants want, treating Administrator as all.
func HasPermission(perms, want int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&want == want
}
