package verification

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway/gatewaytest"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/state"
	"sentinel-community/internal/storage"

	"go.uber.org/zap"
)

var ids = config.Identifiers{
	VerificationChannelID: "verify",
	UnverifiedRoleID:      "unverified",
	VerifiedRoleID:        "verified",
}

func newFlow(t *testing.T) (*Flow, *gatewaytest.Fake, *storage.Store, *state.Store) {
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
	gw := gatewaytest.New()
	return New(ids, store, menus, gw, audit.NewLogger(store, zap.NewNop()), zap.NewNop()), gw, store, menus
}

func TestJoinPostsPrompt(t *testing.T) {
	flow, gw, store, menus := newFlow(t)
	ctx := context.Background()

	id, err := flow.HandleJoin(ctx, "g1", "u1", "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !gw.HasRole("u1", "unverified") {
		t.Fatalf("unverified role not granted")
	}
	if got := gw.Reactions[id]; len(got) != 1 || got[0] != EmojiAgree {
		t.Fatalf("unexpected reactions %v", got)
	}
	user, err := store.GetUser(ctx, "u1")
	if err != nil || user.Verified {
		t.Fatalf("expected unverified row, got %+v (%v)", user, err)
	}
	stored, _ := menus.ListMenus(state.MenuVerification)
	if len(stored) != 1 || stored[0].UserID != "u1" {
		t.Fatalf("prompt not persisted: %+v", stored)
	}
}

func TestVerifyTransition(t *testing.T) {
	flow, gw, store, menus := newFlow(t)
	ctx := context.Background()
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")

	verified, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree)
	if err != nil || !verified {
		t.Fatalf("expected verification, got %v (%v)", verified, err)
	}
	if gw.HasRole("u1", "unverified") || !gw.HasRole("u1", "verified") {
		t.Fatalf("roles not swapped: %v", gw.Roles["u1"])
	}
	user, _ := store.GetUser(ctx, "u1")
	if !user.Verified || user.Username != "alice" {
		t.Fatalf("user row not updated: %+v", user)
	}
	if gw.DMCount("u1") != 1 || !gw.WasDeleted(id) {
		t.Fatalf("expected dm and prompt deletion")
	}
	if stored, _ := menus.ListMenus(state.MenuVerification); len(stored) != 0 {
		t.Fatalf("prompt still persisted")
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	flow, gw, store, _ := newFlow(t)
	ctx := context.Background()
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")
	_, _ = flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree)

	verified, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree)
	if err != nil || verified {
		t.Fatalf("second reaction must be a no-op, got %v (%v)", verified, err)
	}
	if gw.DMCount("u1") != 1 {
		t.Fatalf("confirmation sent twice")
	}
	users, _ := store.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("expected a single user row, got %d", len(users))
	}
}

func TestAlreadyVerifiedUserIsNoop(t *testing.T) {
	flow, gw, store, _ := newFlow(t)
	ctx := context.Background()
	_ = store.SetVerified(ctx, "u1", "alice")
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")
	gw.SetFail("add_role", errors.New("should not be called"))

	verified, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree)
	if err != nil || verified {
		t.Fatalf("verified user must be a no-op, got %v (%v)", verified, err)
	}
	if flow.Tracks(id) {
		t.Fatalf("stale prompt still tracked")
	}
}

func TestOtherUsersAndEmojisIgnored(t *testing.T) {
	flow, gw, _, _ := newFlow(t)
	ctx := context.Background()
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")

	if ok, _ := flow.HandleReaction(ctx, "g1", id, "u2", EmojiAgree); ok {
		t.Fatalf("another user verified the prompt owner")
	}
	if ok, _ := flow.HandleReaction(ctx, "g1", id, "u1", "👍"); ok {
		t.Fatalf("wrong emoji verified")
	}
	if gw.HasRole("u1", "verified") || !flow.Tracks(id) {
		t.Fatalf("prompt state changed")
	}
}

func TestRoleFailureKeepsPrompt(t *testing.T) {
	flow, gw, store, _ := newFlow(t)
	ctx := context.Background()
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")
	gw.SetFail("remove_role", errors.New("missing access"))

	if _, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree); err == nil {
		t.Fatalf("expected error")
	}
	if !flow.Tracks(id) {
		t.Fatalf("prompt should stay open for a retry")
	}
	user, _ := store.GetUser(ctx, "u1")
	if user.Verified {
		t.Fatalf("user verified despite failure")
	}
}

func TestStoreFailureKeepsPrompt(t *testing.T) {
	flow, gw, store, _ := newFlow(t)
	ctx := context.Background()
	id, _ := flow.HandleJoin(ctx, "g1", "u1", "alice")
	if err := store.Exec(ctx, `ALTER TABLE users RENAME TO users_offline`); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree); err == nil {
		t.Fatalf("expected error")
	}
	if !flow.Tracks(id) {
		t.Fatalf("prompt should stay open for a retry")
	}

	if err := store.Exec(ctx, `ALTER TABLE users_offline RENAME TO users`); err != nil {
		t.Fatalf("rename back: %v", err)
	}
	verified, err := flow.HandleReaction(ctx, "g1", id, "u1", EmojiAgree)
	if err != nil || !verified {
		t.Fatalf("retry failed: %v (%v)", verified, err)
	}
	if !gw.HasRole("u1", "verified") {
		t.Fatalf("verified role missing after retry")
	}
}

func TestLoadRestoresPrompts(t *testing.T) {
	flow, _, _, menus := newFlow(t)
	_ = menus.PutMenu(state.Menu{Kind: state.MenuVerification, ChannelID: "verify", MessageID: "p1", UserID: "u9"})
	if err := flow.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !flow.Tracks("p1") {
		t.Fatalf("prompt not restored")
	}
}
