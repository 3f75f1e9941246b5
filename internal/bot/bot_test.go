package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway/gatewaytest"
	"sentinel-community/internal/modules/verification"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fixture struct {
	bot   *Bot
	gw    *gatewaytest.Fake
	store *storage.Store
	clock *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	menus, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	t.Cleanup(func() { _ = menus.Close() })

	cfg := config.DefaultConfig()
	cfg.OwnerID = "1"
	cfg.Identifiers = config.Identifiers{
		GuildID:               "g1",
		MutedRoleID:           "muted",
		AuditChannelID:        "audit",
		VerificationChannelID: "verify",
		UnverifiedRoleID:      "unverified",
		VerifiedRoleID:        "verified",
		ReactChannelID:        "react",
	}
	cfg.Roles = []config.RoleMapping{{Emoji: "🐍", RoleID: "r-python", Name: "python"}}

	questions := []storage.Question{{QuestionID: 1, Question: "Port for SSH?", Type: storage.QuestionMultipleChoice, Options: []string{"21", "22"}, Answer: "22"}}
	gw := gatewaytest.New()
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	tiers := []storage.Tier{{TierID: 1, Name: "Beginner"}, {TierID: 2, Name: "Intermediate", RequiredPoints: 50}}
	b := newBot(cfg, zap.NewNop(), store, menus, gw, tiers, questions)
	b.WithClock(fake)
	t.Cleanup(func() { _ = b.quiz.Cancel() })
	return &fixture{bot: b, gw: gw, store: store, clock: fake}
}

func (f *fixture) run(name, userID, content string) {
	msg := &discordgo.Message{
		ID:        "cmd-" + name,
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: userID, Username: "user" + userID},
	}
	f.bot.execute(context.Background(), f.bot.commands[name], request{msg: msg, args: strings.Fields(content)})
}

// lastIn returns the most recent message posted to channelID.
func (f *fixture) lastIn(t *testing.T, channelID string) gatewaytest.Message {
	t.Helper()
	sent := f.gw.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].ChannelID == channelID {
			return sent[i]
		}
	}
	t.Fatalf("nothing sent to %s", channelID)
	return gatewaytest.Message{}
}

func errorText(m gatewaytest.Message) string {
	if m.Embed == nil || m.Embed.Title != "Error" {
		return ""
	}
	return m.Embed.Description
}

func TestOwnerCommandsAreGated(t *testing.T) {
	f := newFixture(t)
	f.run("setpoints", "2", "setpoints <@3> 40")
	if got := errorText(f.lastIn(t, "c1")); got != "This command is restricted to the bot owner." {
		t.Fatalf("unexpected reply %q", got)
	}

	f.run("setpoints", "1", "setpoints <@3> 40")
	user, err := f.store.GetUser(context.Background(), "3")
	if err != nil || user.Points != 40 {
		t.Fatalf("owner override failed: %+v (%v)", user, err)
	}
}

func TestModeratorCommandNeedsPermission(t *testing.T) {
	f := newFixture(t)
	f.run("kick", "5", "kick <@200> spam")
	if got := errorText(f.lastIn(t, "c1")); got != "You do not have permission to use this command." {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(f.gw.Kicked) != 0 {
		t.Fatalf("kick executed without permission")
	}
}

func TestModeratorCooldown(t *testing.T) {
	f := newFixture(t)
	f.gw.Perms["5"] = discordgo.PermissionKickMembers
	f.run("kick", "5", "kick <@200> spam")
	if len(f.gw.Kicked) != 1 {
		t.Fatalf("expected one kick, got %v", f.gw.Kicked)
	}
	if embed := f.lastIn(t, "c1").Embed; embed == nil || embed.Title != "Member kicked" {
		t.Fatalf("unexpected kick reply %+v", embed)
	}
	if f.lastIn(t, "audit").Embed == nil {
		t.Fatalf("kick not posted to the audit channel")
	}

	f.run("kick", "5", "kick <@201>")
	if got := errorText(f.lastIn(t, "c1")); !strings.HasPrefix(got, "Please wait") {
		t.Fatalf("expected cooldown reply, got %q", got)
	}
	f.clock.Advance(time.Minute)
	f.run("kick", "5", "kick <@201>")
	if len(f.gw.Kicked) != 2 {
		t.Fatalf("cooldown did not expire: %v", f.gw.Kicked)
	}
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)
	f.gw.Perms["5"] = discordgo.PermissionAdministrator
	f.run("ban", "5", "ban nobody")
	if got := errorText(f.lastIn(t, "c1")); got != "Usage: ..ban <user> [reason]" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestQuizAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	if _, err := f.bot.quiz.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.gw.Perms["7"] = discordgo.PermissionManageMessages
	f.run("quiz", "7", "quiz")
	if got := errorText(f.lastIn(t, "c1")); got != "A quiz is already in progress." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestQuizNeedsManageMessages(t *testing.T) {
	f := newFixture(t)
	f.run("quiz", "9", "quiz")
	if got := errorText(f.lastIn(t, "c1")); got != "You do not have permission to use this command." {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.bot.quiz.Active() {
		t.Fatalf("member without manage messages started a round")
	}

	f.gw.Perms["9"] = discordgo.PermissionManageMessages
	f.run("quiz", "9", "quiz")
	if !f.bot.quiz.Active() {
		t.Fatalf("moderator could not start a round")
	}
}

func TestRejectedCommandsAreLogged(t *testing.T) {
	f := newFixture(t)
	f.run("setpoints", "2", "setpoints <@3> 40")
	f.run("clear", "2", "clear 5")

	logs, err := f.store.ListLogs(context.Background(), time.Unix(0, 0))
	if err != nil || len(logs) != 2 {
		t.Fatalf("expected two rows, got %+v (%v)", logs, err)
	}
	for _, entry := range logs {
		if entry.UserID != "2" || !strings.HasPrefix(entry.Message, "error: ") {
			t.Fatalf("unexpected row %+v", entry)
		}
	}
}

func TestRepliesSelfDelete(t *testing.T) {
	f := newFixture(t)
	f.run("ping", "7", "ping")
	if !f.gw.WasDeleted("cmd-ping") {
		t.Fatalf("command message not deleted")
	}
	reply := f.lastIn(t, "c1")
	if !strings.HasPrefix(reply.Content, "Pong!") {
		t.Fatalf("unexpected reply %q", reply.Content)
	}
	if f.gw.WasDeleted(reply.ID) {
		t.Fatalf("reply deleted too early")
	}
	f.clock.Advance(10 * time.Second)
	if !f.gw.WasDeleted(reply.ID) {
		t.Fatalf("reply not deleted after the delay")
	}
}

func TestCommandsTouchUserAndLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run("tiers", "7", "tiers")

	if _, err := f.store.GetUser(ctx, "7"); err != nil {
		t.Fatalf("user not upserted: %v", err)
	}
	logs, err := f.store.ListLogs(ctx, time.Unix(0, 0))
	if err != nil || len(logs) != 1 || logs[0].Command != "tiers" {
		t.Fatalf("unexpected logs %+v (%v)", logs, err)
	}

	f.clock.Advance(time.Hour)
	f.run("tiers", "7", "tiers")
	user, _ := f.store.GetUser(ctx, "7")
	if !user.LastActive.Equal(f.clock.Now()) || !user.JoinedAt.Equal(f.clock.Now().Add(-time.Hour)) {
		t.Fatalf("timestamps ignore the clock: joined=%v active=%v", user.JoinedAt, user.LastActive)
	}
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t)
	boom := command{name: "boom", run: func(context.Context, request) (reply, error) { panic("boom") }}
	msg := &discordgo.Message{ID: "x", ChannelID: "c1", GuildID: "g1", Author: &discordgo.User{ID: "7"}}
	f.bot.execute(context.Background(), boom, request{msg: msg, args: []string{"boom"}})
	if got := errorText(f.lastIn(t, "c1")); got != genericFailure {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestReactionDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	menuID, err := f.bot.roles.PostMenu(ctx, "")
	if err != nil {
		t.Fatalf("post menu: %v", err)
	}

	carol := &discordgo.User{ID: "9", Username: "carol"}
	reaction := &discordgo.MessageReaction{UserID: "9", MessageID: menuID, ChannelID: "react", GuildID: "g1", Emoji: discordgo.Emoji{Name: "🐍"}}
	f.bot.handleReactionAdd(ctx, "bot", reaction, carol)
	if !f.gw.HasRole("9", "r-python") {
		t.Fatalf("role not granted")
	}
	f.bot.handleReactionRemove(ctx, "bot", reaction, nil)
	if f.gw.HasRole("9", "r-python") {
		t.Fatalf("role not revoked")
	}

	own := &discordgo.MessageReaction{UserID: "bot", MessageID: menuID, GuildID: "g1", Emoji: discordgo.Emoji{Name: "🐍"}}
	f.bot.handleReactionAdd(ctx, "bot", own, nil)
	if f.gw.HasRole("bot", "r-python") {
		t.Fatalf("bot reacted to its own menu")
	}
}

func TestOtherBotsReactionsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	menuID, err := f.bot.roles.PostMenu(ctx, "")
	if err != nil {
		t.Fatalf("post menu: %v", err)
	}

	other := &discordgo.User{ID: "55", Username: "otherbot", Bot: true}
	reaction := &discordgo.MessageReaction{UserID: "55", MessageID: menuID, ChannelID: "react", GuildID: "g1", Emoji: discordgo.Emoji{Name: "🐍"}}
	f.bot.handleReactionAdd(ctx, "bot", reaction, other)
	if f.gw.HasRole("55", "r-python") {
		t.Fatalf("role granted to another bot")
	}

	f.gw.Roles["55"] = map[string]bool{"r-python": true}
	f.bot.handleReactionRemove(ctx, "bot", reaction, other)
	if !f.gw.HasRole("55", "r-python") {
		t.Fatalf("role revoked for another bot")
	}
}

func TestJoinAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.handleJoin(ctx, &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "11", Username: "dave"}})
	prompt := f.lastIn(t, "verify")

	reaction := &discordgo.MessageReaction{UserID: "11", MessageID: prompt.ID, GuildID: "g1", Emoji: discordgo.Emoji{Name: verification.EmojiAgree}}
	f.bot.handleReactionAdd(ctx, "bot", reaction, &discordgo.User{ID: "11", Username: "dave"})
	if !f.gw.HasRole("11", "verified") || f.gw.HasRole("11", "unverified") {
		t.Fatalf("member not verified: %v", f.gw.Roles["11"])
	}
}

func TestDirectMessagesAreNotRouted(t *testing.T) {
	f := newFixture(t)
	dm := &discordgo.Message{ChannelID: "dm", Content: "..ping", Author: &discordgo.User{ID: "7"}}
	if f.bot.handleMessage(context.Background(), dm) {
		t.Fatalf("direct messages must not reach the router")
	}
	bot := &discordgo.Message{GuildID: "g1", Content: "..ping", Author: &discordgo.User{ID: "8", Bot: true}}
	if f.bot.handleMessage(context.Background(), bot) {
		t.Fatalf("bot messages must not reach the router")
	}
	user := &discordgo.Message{ID: "m", GuildID: "g1", ChannelID: "c1", Content: "..ping", Author: &discordgo.User{ID: "7"}}
	if !f.bot.handleMessage(context.Background(), user) {
		t.Fatalf("clean guild message should be routed")
	}
}

func TestHelpCategoriesCoverCommands(t *testing.T) {
	f := newFixture(t)
	seen := 0
	for _, cat := range f.bot.helpCategories() {
		seen += len(cat.Commands)
	}
	if seen != len(f.bot.commands) {
		t.Fatalf("help lists %d of %d commands", seen, len(f.bot.commands))
	}
}

func TestClearPurgesRecentMessages(t *testing.T) {
	f := newFixture(t)
	f.run("clear", "5", "clear 2")
	if got := errorText(f.lastIn(t, "c1")); got != "You do not have permission to use this command." {
		t.Fatalf("unexpected reply %q", got)
	}

	f.gw.Perms["5"] = discordgo.PermissionManageMessages
	f.run("clear", "5", "clear 0")
	if got := errorText(f.lastIn(t, "c1")); got != "Usage: ..clear <amount>" {
		t.Fatalf("unexpected reply %q", got)
	}
	f.run("clear", "5", "clear 500")
	if got := errorText(f.lastIn(t, "c1")); got != "You can remove at most 100 messages at a time." {
		t.Fatalf("unexpected reply %q", got)
	}

	var seeded []string
	for _, text := range []string{"one", "two", "three"} {
		id, err := f.gw.SendMessage("c1", text)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		seeded = append(seeded, id)
	}
	f.run("clear", "5", "clear 2")
	if got := f.lastIn(t, "c1").Content; got != "2 messages removed." {
		t.Fatalf("unexpected reply %q", got)
	}
	if !f.gw.WasDeleted(seeded[1]) || !f.gw.WasDeleted(seeded[2]) {
		t.Fatalf("recent messages not purged: %v", f.gw.Deleted)
	}
	if f.gw.WasDeleted(seeded[0]) {
		t.Fatalf("purged past the requested amount")
	}
}

func TestUserTierOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run("usertier", "1", "usertier <@3> 2")
	user, err := f.store.GetUser(ctx, "3")
	if err != nil || user.CurrentTier != 2 {
		t.Fatalf("tier not set: %+v (%v)", user, err)
	}
	if got := f.lastIn(t, "c1").Content; got != "Set <@3>'s tier to Intermediate." {
		t.Fatalf("unexpected reply %q", got)
	}

	f.run("usertier", "1", "usertier <@3> 9")
	if got := errorText(f.lastIn(t, "c1")); got != "Unknown tier 9." {
		t.Fatalf("unexpected reply %q", got)
	}
	f.run("usertier", "4", "usertier <@3> 1")
	if got := errorText(f.lastIn(t, "c1")); got != "This command is restricted to the bot owner." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestAllUsersCount(t *testing.T) {
	f := newFixture(t)
	f.run("adduser", "1", "adduser <@3>")
	f.run("allusers", "1", "allusers")
	if got := f.lastIn(t, "c1").Content; got != "2 users registered." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestMemberEventsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := &discordgo.User{ID: "12", Username: "erin"}

	f.bot.handleLeave(ctx, &discordgo.Member{GuildID: "g1", User: user})
	if post := f.lastIn(t, "audit"); post.Embed == nil || !strings.Contains(post.Embed.Description, "has left the server") {
		t.Fatalf("leave not posted: %+v", post.Embed)
	}

	before := &discordgo.Member{GuildID: "g1", User: user, Roles: []string{"a", "b"}}
	f.bot.handleMemberUpdate(ctx, before, &discordgo.Member{GuildID: "g1", User: user, Roles: []string{"b", "a"}})
	f.bot.handleMemberUpdate(ctx, before, &discordgo.Member{GuildID: "g1", User: user, Roles: []string{"a"}})

	logs, err := f.store.ListLogs(ctx, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	commands := map[string]int{}
	for _, entry := range logs {
		commands[entry.Command]++
		if !entry.Timestamp.Equal(f.clock.Now()) {
			t.Fatalf("audit row ignores the clock: %v", entry.Timestamp)
		}
	}
	if commands["member_leave"] != 1 || commands["member_roles"] != 1 {
		t.Fatalf("unexpected audit rows %v", commands)
	}
}
