package help

import (
	"testing"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway/gatewaytest"

	"go.uber.org/zap"
)

var testCategories = []Category{
	{Key: "moderation", Title: "Moderation", Emoji: "🔨", Commands: []Command{{Name: "kick", Usage: "<user> [reason]", Description: "Kick a member."}}},
	{Key: "quiz", Title: "Quiz & Tiers", Emoji: "🧠", Commands: []Command{{Name: "quiz", Description: "Start a quiz round."}}},
}

func newBrowser(t *testing.T, shared bool) (*Browser, *gatewaytest.Fake, *clock.Fake) {
	t.Helper()
	gw := gatewaytest.New()
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	b := New(config.HelpConfig{SharedSessions: shared, TimeoutSeconds: 60}, "..", testCategories, config.EmbedConfig{}, gw, zap.NewNop())
	b.WithClock(fake)
	return b, gw, fake
}

func embedTitle(gw *gatewaytest.Fake, id string) string {
	for _, msg := range gw.Sent() {
		if msg.ID == id && msg.Embed != nil {
			return msg.Embed.Title
		}
	}
	return ""
}

func TestNavigateCategoryAndBack(t *testing.T) {
	b, gw, _ := newBrowser(t, true)
	id, err := b.Open("c1", "u1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := gw.Reactions[id]; len(got) != 3 || got[2] != EmojiClose {
		t.Fatalf("unexpected root reactions: %v", got)
	}

	if !b.HandleReaction(id, "u1", "🧠") {
		t.Fatalf("category reaction not handled")
	}
	if title := embedTitle(gw, id); title != "🧠 Quiz & Tiers" {
		t.Fatalf("expected category embed, got %q", title)
	}
	if got := gw.Reactions[id]; len(got) != 2 || got[0] != EmojiBack {
		t.Fatalf("expected back/close reactions, got %v", got)
	}
	if len(gw.Sent()) != 1 {
		t.Fatalf("navigation must edit in place")
	}

	b.HandleReaction(id, "u1", "⬅")
	if title := embedTitle(gw, id); title != "Help" {
		t.Fatalf("expected root embed after back, got %q", title)
	}
}

func TestCloseDeletesMessage(t *testing.T) {
	b, gw, _ := newBrowser(t, true)
	id, _ := b.Open("c1", "u1")
	b.HandleReaction(id, "u1", EmojiClose)
	if !gw.WasDeleted(id) || b.Sessions() != 0 {
		t.Fatalf("close must delete the message and the session")
	}
	if b.HandleReaction(id, "u1", "🧠") {
		t.Fatalf("closed session still handled")
	}
}

func TestSharedSessionsAcceptOtherUsers(t *testing.T) {
	b, gw, _ := newBrowser(t, true)
	id, _ := b.Open("c1", "u1")
	if !b.HandleReaction(id, "u2", "🔨") {
		t.Fatalf("shared session should accept another user")
	}
	if title := embedTitle(gw, id); title != "🔨 Moderation" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestPrivateSessionsIgnoreOtherUsers(t *testing.T) {
	b, gw, _ := newBrowser(t, false)
	id, _ := b.Open("c1", "u1")
	if b.HandleReaction(id, "u2", "🔨") {
		t.Fatalf("private session accepted another user")
	}
	if title := embedTitle(gw, id); title != "Help" {
		t.Fatalf("embed changed by another user: %q", title)
	}
}

func TestSessionsExpireWhenIdle(t *testing.T) {
	b, _, fake := newBrowser(t, true)
	id, _ := b.Open("c1", "u1")

	fake.Advance(59 * time.Second)
	if !b.HandleReaction(id, "u1", "🔨") {
		t.Fatalf("session expired early")
	}
	fake.Advance(59 * time.Second)
	if b.Sessions() != 1 {
		t.Fatalf("activity should extend the session")
	}
	fake.Advance(time.Second)
	if b.Sessions() != 0 {
		t.Fatalf("idle session not pruned")
	}
	if b.HandleReaction(id, "u1", EmojiBack) {
		t.Fatalf("expired session still handled")
	}
}
