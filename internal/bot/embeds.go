package bot

import (
	"fmt"
	"strings"
	"time"

	"sentinel-community/internal/analytics"
	"sentinel-community/internal/modules/audit"
	"sentinel-community/internal/modules/moderation"
	"sentinel-community/internal/storage"
	"sentinel-community/internal/sysinfo"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) embed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   b.clock.Now().Format(time.RFC3339),
		Fields:      fields,
	}
	if b.cfg.Embeds.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: b.cfg.Embeds.Footer}
	}
	return embed
}

func (b *Bot) errorEmbed(message string) *discordgo.MessageEmbed {
	return b.embed("Error", message, b.cfg.Embeds.Colors.Error, nil)
}

func (b *Bot) caseEmbed(out moderation.Outcome, verb string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Member", Value: "<@" + out.TargetID + ">", Inline: true},
		{Name: "Case", Value: "`" + out.CaseID + "`", Inline: true},
	}
	if out.Reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: out.Reason})
	}
	if out.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: out.Duration.String(), Inline: true})
	}
	if out.WarnCount > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Warnings", Value: fmt.Sprint(out.WarnCount), Inline: true})
	}
	return b.embed("Member "+verb, "", b.cfg.Embeds.Colors.Success, fields)
}

func (b *Bot) leaderboardEmbed(users []storage.User) *discordgo.MessageEmbed {
	if len(users) == 0 {
		return b.embed("Leaderboard", "Nobody has scored yet.", b.cfg.Embeds.Colors.Primary, nil)
	}
	lines := make([]string, 0, len(users))
	for i, user := range users {
		lines = append(lines, fmt.Sprintf("**%d.** %s · %d correct · %d pts · %s", i+1, user.Username, user.CorrectQuizAnswers, user.Points, b.tierName(user.CurrentTier)))
	}
	return b.embed("Leaderboard", strings.Join(lines, "\n"), b.cfg.Embeds.Colors.Primary, nil)
}

func (b *Bot) tiersEmbed(tiers []storage.Tier) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(tiers))
	for _, tier := range tiers {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d. %s", tier.TierID, tier.Name),
			Value: fmt.Sprintf("%d points · role %s", tier.RequiredPoints, tier.RoleName),
		})
	}
	return b.embed("Tiers", "", b.cfg.Embeds.Colors.Primary, fields)
}

func (b *Bot) profileEmbed(user storage.User, answered, correct int) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Points", Value: fmt.Sprint(user.Points), Inline: true},
		{Name: "Tier", Value: b.tierName(user.CurrentTier), Inline: true},
		{Name: "Quiz answers", Value: fmt.Sprintf("%d correct of %d", correct, answered), Inline: true},
		{Name: "Warnings", Value: fmt.Sprint(user.WarnCount), Inline: true},
		{Name: "Joined", Value: user.JoinedAt.UTC().Format("2006-01-02"), Inline: true},
	}
	return b.embed(user.Username, "", b.cfg.Embeds.Colors.Primary, fields)
}

func (b *Bot) statsEmbed(snap sysinfo.Snapshot, report analytics.Report) *discordgo.MessageEmbed {
	var usage []string
	for _, entry := range report.Top(5) {
		usage = append(usage, fmt.Sprintf("`%s` %d", entry.Command, entry.Count))
	}
	if len(usage) == 0 {
		usage = append(usage, "none")
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Uptime", Value: snap.Uptime.String(), Inline: true},
		{Name: "CPU", Value: fmt.Sprintf("%.1f%% of %d cores", snap.CPUPercent, snap.CPUs), Inline: true},
		{Name: "Memory", Value: fmt.Sprintf("%d / %d MB (%.1f%%)", snap.MemUsedMB, snap.MemTotalMB, snap.MemPercent), Inline: true},
		{Name: "Runtime", Value: fmt.Sprintf("%s · %d goroutines", snap.GoVersion, snap.Goroutines), Inline: true},
		{Name: "Database", Value: fmt.Sprintf("%.1f KB", float64(snap.DatabaseBytes)/1024), Inline: true},
		{Name: "Commands (24h)", Value: fmt.Sprintf("%d by %d users", report.Total, report.ActiveUsers), Inline: true},
		{Name: "Top commands", Value: strings.Join(usage, "\n")},
	}
	return b.embed("Stats", snap.Platform, b.cfg.Embeds.Colors.Primary, fields)
}

func (b *Bot) auditEmbed(entry audit.Entry) *discordgo.MessageEmbed {
	color := b.cfg.Embeds.Colors.Primary
	if entry.Level != audit.LevelInfo {
		color = b.cfg.Embeds.Colors.Error
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Action", Value: entry.Command, Inline: true},
		{Name: "Level", Value: entry.Level, Inline: true},
	}
	if entry.UserID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	if entry.ChannelID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: "<#" + entry.ChannelID + ">", Inline: true})
	}
	return b.embed("Audit", entry.Message, color, fields)
}

func (b *Bot) tierName(tierID int) string {
	for _, tier := range b.quiz.Tiers() {
		if tier.TierID == tierID {
			return tier.Name
		}
	}
	return fmt.Sprintf("Tier %d", tierID)
}
