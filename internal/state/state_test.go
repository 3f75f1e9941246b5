package state

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store
}

func TestPendingUnmuteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := openTestStore(t, path)

	expires := time.Unix(1_700_000_000, 0).UTC()
	if err := store.PutPendingUnmute(PendingUnmute{GuildID: "g1", UserID: "u1", ChannelID: "c1", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutPendingUnmute(PendingUnmute{GuildID: "g1", UserID: "u2", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.DeletePendingUnmute("g1", "u2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store = openTestStore(t, path)
	defer store.Close()
	pending, err := store.ListPendingUnmutes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "u1" || !pending[0].ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected pending unmutes: %+v", pending)
	}
}

func TestPendingUnmuteRequiresKey(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer store.Close()
	if err := store.PutPendingUnmute(PendingUnmute{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for missing guild")
	}
}

func TestMenusFilterByKind(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer store.Close()

	_ = store.PutMenu(Menu{Kind: MenuRoles, ChannelID: "c1", MessageID: "m1"})
	_ = store.PutMenu(Menu{Kind: MenuVerification, ChannelID: "c2", MessageID: "m2", UserID: "u1"})

	roles, err := store.ListMenus(MenuRoles)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roles) != 1 || roles[0].MessageID != "m1" {
		t.Fatalf("unexpected role menus: %+v", roles)
	}
	all, _ := store.ListMenus("")
	if len(all) != 2 {
		t.Fatalf("expected 2 menus, got %d", len(all))
	}
	_ = store.DeleteMenu("m2")
	all, _ = store.ListMenus("")
	if len(all) != 1 {
		t.Fatalf("expected 1 menu after delete, got %d", len(all))
	}
}
