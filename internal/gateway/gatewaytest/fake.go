// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"fmt"
	"strings"
	"sync"

	"sentinel-community/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

type Message struct {
	ChannelID string
	ID        string
	Content   string
	Embed     *discordgo.MessageEmbed
}

type Fake struct {
	mu        sync.Mutex
	nextID    int
	Messages  []Message
	Deleted   []string
	Reactions map[string][]string
	Roles     map[string]map[string]bool
	DMs       map[string][]string
	Kicked    []string
	Banned    []string
	Unbanned  []string
	GuildRole map[string]string
	Perms     map[string]int64

	// Fail maps an operation name to the error it should return.
	Fail map[string]error
}

func New() *Fake {
	return &Fake{
		Reactions: make(map[string][]string),
		Roles:     make(map[string]map[string]bool),
		DMs:       make(map[string][]string),
		GuildRole: make(map[string]string),
		Perms:     make(map[string]int64),
		Fail:      make(map[string]error),
	}
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) failure(op string) error {
	return f.Fail[op]
}

func (f *Fake) SendMessage(channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.Messages = append(f.Messages, Message{ChannelID: channelID, ID: id, Content: content})
	return id, nil
}

func (f *Fake) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.Messages = append(f.Messages, Message{ChannelID: channelID, ID: id, Embed: embed})
	return id, nil
}

func (f *Fake) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("edit"); err != nil {
		return err
	}
	for i := range f.Messages {
		if f.Messages[i].ID == messageID {
			f.Messages[i].Embed = embed
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (f *Fake) DeleteMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

// RecentMessages walks the messages sent through the fake, newest first.
func (f *Fake) RecentMessages(channelID, beforeID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("history"); err != nil {
		return nil, err
	}
	end := len(f.Messages)
	for i, msg := range f.Messages {
		if msg.ID == beforeID {
			end = i
		}
	}
	var ids []string
	for i := end - 1; i >= 0 && len(ids) < limit; i-- {
		if f.Messages[i].ChannelID == channelID {
			ids = append(ids, f.Messages[i].ID)
		}
	}
	return ids, nil
}

func (f *Fake) BulkDelete(channelID string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, messageIDs...)
	return nil
}

func (f *Fake) AddReaction(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions[messageID] = append(f.Reactions[messageID], emoji)
	return nil
}

func (f *Fake) RemoveReaction(channelID, messageID, emoji, userID string) error {
	return nil
}

func (f *Fake) ClearReactions(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Reactions, messageID)
	return nil
}

func (f *Fake) AddRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("add_role"); err != nil {
		return err
	}
	if f.Roles[userID] == nil {
		f.Roles[userID] = make(map[string]bool)
	}
	f.Roles[userID][roleID] = true
	return nil
}

func (f *Fake) RemoveRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("remove_role"); err != nil {
		return err
	}
	delete(f.Roles[userID], roleID)
	return nil
}

func (f *Fake) RoleIDByName(guildID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.GuildRole[strings.ToLower(name)]; ok {
		return id, nil
	}
	return "", gateway.ErrNotFound
}

func (f *Fake) SendDM(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("dm"); err != nil {
		return err
	}
	f.DMs[userID] = append(f.DMs[userID], content)
	return nil
}

func (f *Fake) Kick(guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("kick"); err != nil {
		return err
	}
	f.Kicked = append(f.Kicked, userID)
	return nil
}

func (f *Fake) Ban(guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ban"); err != nil {
		return err
	}
	f.Banned = append(f.Banned, userID)
	return nil
}

func (f *Fake) Unban(guildID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("unban"); err != nil {
		return err
	}
	f.Unbanned = append(f.Unbanned, userID)
	return nil
}

func (f *Fake) Permissions(userID, channelID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Perms[userID], nil
}

// HasRole reports whether the fake currently grants roleID to userID.
func (f *Fake) HasRole(userID, roleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Roles[userID][roleID]
}

func (f *Fake) DMCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DMs[userID])
}

func (f *Fake) WasDeleted(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.Deleted {
		if id == messageID {
			return true
		}
	}
	return false
}

// Sent returns a copy of every message posted so far.
func (f *Fake) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Messages...)
}

func (f *Fake) SetFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[op] = err
}
