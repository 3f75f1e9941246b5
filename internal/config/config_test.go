package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
discord_token: file-token
prefix: "!"
identifiers:
  muted_role_id: "111"
moderation:
  spam_threshold: 7
  spam_message_count: 4
  first_mute_duration: 60
  second_mute_duration: 120
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "env-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.DiscordToken)
	}
	if cfg.Prefix != "!" {
		t.Fatalf("expected prefix from file, got %q", cfg.Prefix)
	}
	if cfg.Moderation.SpamThreshold != 7 || cfg.Moderation.SpamMessageCount != 4 {
		t.Fatalf("unexpected moderation section: %+v", cfg.Moderation)
	}
	if cfg.Moderation.WallOfTextLength != 1500 {
		t.Fatalf("expected default wall of text length, got %d", cfg.Moderation.WallOfTextLength)
	}
	if len(cfg.Tiers) == 0 {
		t.Fatalf("expected default tiers")
	}
}

func TestValidateReportsMissingSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tiers = nil
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"DISCORD_TOKEN", "muted_role_id", "tiers"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateRejectsDuplicateTiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiscordToken = "x"
	cfg.Identifiers.MutedRoleID = "1"
	cfg.Tiers = []Tier{{TierID: 1}, {TierID: 1, RequiredPoints: 10}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate tier_id 1") {
		t.Fatalf("expected duplicate tier error, got %v", err)
	}
}
