package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string           `yaml:"discord_token"`
	Prefix        string           `yaml:"prefix"`
	OwnerID       string           `yaml:"owner_id"`
	DatabasePath  string           `yaml:"database_path"`
	StatePath     string           `yaml:"state_path"`
	QuestionsPath string           `yaml:"questions_path"`
	TipsPath      string           `yaml:"tips_path"`
	LogLevel      string           `yaml:"log_level"`
	RetentionDays int              `yaml:"retention_days"`
	Identifiers   Identifiers      `yaml:"identifiers"`
	Moderation    ModerationConfig `yaml:"moderation"`
	Settings      Settings         `yaml:"settings"`
	Quiz          QuizConfig       `yaml:"quiz"`
	Tiers         []Tier           `yaml:"tiers"`
	Roles         []RoleMapping    `yaml:"roles"`
	Help          HelpConfig       `yaml:"help"`
	Tasks         TasksConfig      `yaml:"tasks"`
	Embeds        EmbedConfig      `yaml:"embeds"`
	Health        HealthConfig     `yaml:"health"`
}

type Identifiers struct {
	GuildID               string `yaml:"guild_id"`
	MutedRoleID           string `yaml:"muted_role_id"`
	AuditChannelID        string `yaml:"audit_channel_id"`
	VerificationChannelID string `yaml:"verification_channel_id"`
	UnverifiedRoleID      string `yaml:"unverified_role_id"`
	VerifiedRoleID        string `yaml:"verified_role_id"`
	ReactChannelID        string `yaml:"react_channel_id"`
	QuizChannelID         string `yaml:"quiz_channel_id"`
	TipsChannelID         string `yaml:"tips_channel_id"`
}

// ModerationConfig durations are in seconds.
type ModerationConfig struct {
	SpamThreshold          int      `yaml:"spam_threshold"`
	SpamMessageCount       int      `yaml:"spam_message_count"`
	WallOfTextLength       int      `yaml:"wall_of_text_length"`
	MaxEmojis              int      `yaml:"max_emojis"`
	MaxAttachments         int      `yaml:"max_attachments"`
	MaxMentions            int      `yaml:"max_mentions"`
	FirstMuteDuration      int      `yaml:"first_mute_duration"`
	SecondMuteDuration     int      `yaml:"second_mute_duration"`
	CommandCooldownSeconds int      `yaml:"command_cooldown_seconds"`
	BlockedDomains         []string `yaml:"blocked_domains"`
}

type Settings struct {
	DeleteCommands      bool `yaml:"delete_commands"`
	DeleteCommandDelay  int  `yaml:"delete_command_delay"`
	DeleteResponses     bool `yaml:"delete_responses"`
	DeleteResponseDelay int  `yaml:"delete_response_delay"`
	DeleteErrors        bool `yaml:"delete_errors"`
	DeleteErrorsDelay   int  `yaml:"delete_errors_delay"`
}

type QuizConfig struct {
	ChoiceTimeoutSeconds int         `yaml:"choice_timeout_seconds"`
	AnswerTimeoutSeconds int         `yaml:"answer_timeout_seconds"`
	MaxWinners           int         `yaml:"max_winners"`
	CooldownSeconds      int         `yaml:"cooldown_seconds"`
	TierPoints           map[int]int `yaml:"tier_points"`
}

type Tier struct {
	TierID         int    `yaml:"tier_id"`
	Name           string `yaml:"name"`
	RoleName       string `yaml:"role_name"`
	RequiredPoints int    `yaml:"required_points"`
}

type RoleMapping struct {
	Emoji  string `yaml:"emoji"`
	RoleID string `yaml:"role_id"`
	Name   string `yaml:"name"`
}

type HelpConfig struct {
	SharedSessions bool `yaml:"shared_sessions"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type TasksConfig struct {
	StatusRotationMinutes int      `yaml:"status_rotation_minutes"`
	Statuses              []string `yaml:"statuses"`
	TipIntervalMinutes    int      `yaml:"tip_interval_minutes"`
	QuizIntervalMinutes   int      `yaml:"quiz_interval_minutes"`
}

type EmbedConfig struct {
	Footer string      `yaml:"footer"`
	Colors EmbedColors `yaml:"colors"`
}

type EmbedColors struct {
	Primary int `yaml:"primary"`
	Success int `yaml:"success"`
	Error   int `yaml:"error"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		Prefix:        "..",
		DatabasePath:  "data/bot.db",
		StatePath:     "data/state.db",
		QuestionsPath: "files/questions.json",
		TipsPath:      "files/tips.json",
		LogLevel:      "info",
		RetentionDays: 90,
		Moderation: ModerationConfig{
			SpamThreshold:          10,
			SpamMessageCount:       5,
			WallOfTextLength:       1500,
			MaxEmojis:              10,
			MaxAttachments:         5,
			MaxMentions:            5,
			FirstMuteDuration:      300,
			SecondMuteDuration:     900,
			CommandCooldownSeconds: 60,
		},
		Settings: Settings{
			DeleteCommands:      true,
			DeleteCommandDelay:  0,
			DeleteResponses:     true,
			DeleteResponseDelay: 10,
			DeleteErrors:        true,
			DeleteErrorsDelay:   10,
		},
		Quiz: QuizConfig{
			ChoiceTimeoutSeconds: 30,
			AnswerTimeoutSeconds: 60,
			MaxWinners:           3,
			CooldownSeconds:      60,
			TierPoints:           map[int]int{1: 10, 2: 50, 3: 75, 4: 100, 5: 200},
		},
		Tiers: []Tier{
			{TierID: 1, Name: "Novice", RoleName: "Tier 1", RequiredPoints: 0},
			{TierID: 2, Name: "Apprentice", RoleName: "Tier 2", RequiredPoints: 50},
			{TierID: 3, Name: "Adept", RoleName: "Tier 3", RequiredPoints: 100},
			{TierID: 4, Name: "Expert", RoleName: "Tier 4", RequiredPoints: 250},
			{TierID: 5, Name: "Master", RoleName: "Tier 5", RequiredPoints: 500},
		},
		Help:  HelpConfig{SharedSessions: true, TimeoutSeconds: 60},
		Tasks: TasksConfig{StatusRotationMinutes: 10, Statuses: []string{"over the server"}},
		Embeds: EmbedConfig{
			Footer: "sentinel community",
			Colors: EmbedColors{Primary: 0x6900FF, Success: 0x22C55E, Error: 0xEF4444},
		},
		Health: HealthConfig{Enabled: false, Addr: ":8080"},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix is required"))
	}
	if c.Identifiers.MutedRoleID == "" {
		errs = append(errs, errors.New("identifiers.muted_role_id is required"))
	}
	m := c.Moderation
	if m.SpamThreshold <= 0 || m.SpamMessageCount <= 0 {
		errs = append(errs, errors.New("moderation.spam_threshold and moderation.spam_message_count must be positive"))
	}
	if m.FirstMuteDuration <= 0 || m.SecondMuteDuration <= 0 {
		errs = append(errs, errors.New("moderation mute durations must be positive"))
	}
	if len(c.Tiers) == 0 {
		errs = append(errs, errors.New("tiers section is required"))
	}
	seen := make(map[int]struct{}, len(c.Tiers))
	for _, tier := range c.Tiers {
		if _, ok := seen[tier.TierID]; ok {
			errs = append(errs, fmt.Errorf("duplicate tier_id %d", tier.TierID))
		}
		seen[tier.TierID] = struct{}{}
		if tier.RequiredPoints < 0 {
			errs = append(errs, fmt.Errorf("tier %d has negative required_points", tier.TierID))
		}
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.Prefix = envString("COMMAND_PREFIX", cfg.Prefix)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.StatePath = envString("STATE_PATH", cfg.StatePath)
	cfg.QuestionsPath = envString("QUESTIONS_PATH", cfg.QuestionsPath)
	cfg.TipsPath = envString("TIPS_PATH", cfg.TipsPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Identifiers.GuildID = envString("GUILD_ID", cfg.Identifiers.GuildID)
	cfg.Identifiers.MutedRoleID = envString("MUTED_ROLE_ID", cfg.Identifiers.MutedRoleID)
	cfg.Identifiers.AuditChannelID = envString("AUDIT_CHANNEL_ID", cfg.Identifiers.AuditChannelID)
	cfg.Identifiers.VerificationChannelID = envString("VERIFICATION_CHANNEL_ID", cfg.Identifiers.VerificationChannelID)
	cfg.Identifiers.UnverifiedRoleID = envString("UNVERIFIED_ROLE_ID", cfg.Identifiers.UnverifiedRoleID)
	cfg.Identifiers.VerifiedRoleID = envString("VERIFIED_ROLE_ID", cfg.Identifiers.VerifiedRoleID)
	cfg.Identifiers.ReactChannelID = envString("REACT_CHANNEL_ID", cfg.Identifiers.ReactChannelID)
	cfg.Identifiers.QuizChannelID = envString("QUIZ_CHANNEL_ID", cfg.Identifiers.QuizChannelID)
	cfg.Identifiers.TipsChannelID = envString("TIPS_CHANNEL_ID", cfg.Identifiers.TipsChannelID)
	cfg.Moderation.SpamThreshold = envInt("SPAM_THRESHOLD", cfg.Moderation.SpamThreshold)
	cfg.Moderation.SpamMessageCount = envInt("SPAM_MESSAGE_COUNT", cfg.Moderation.SpamMessageCount)
	cfg.Moderation.FirstMuteDuration = envInt("FIRST_MUTE_DURATION", cfg.Moderation.FirstMuteDuration)
	cfg.Moderation.SecondMuteDuration = envInt("SECOND_MUTE_DURATION", cfg.Moderation.SecondMuteDuration)
	cfg.Settings.DeleteCommands = envBool("DELETE_COMMANDS", cfg.Settings.DeleteCommands)
	cfg.Settings.DeleteResponses = envBool("DELETE_RESPONSES", cfg.Settings.DeleteResponses)
	cfg.Settings.DeleteErrors = envBool("DELETE_ERRORS", cfg.Settings.DeleteErrors)
	cfg.Help.SharedSessions = envBool("HELP_SHARED_SESSIONS", cfg.Help.SharedSessions)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
