package quiz

import (
	"sort"

	"sentinel-community/internal/config"
	"sentinel-community/internal/storage"
)

// ComputeTier returns the best tier whose required_points is covered by points.
// Below every threshold it falls back to the lowest tier.
func ComputeTier(tiers []storage.Tier, points int) (storage.Tier, bool) {
	if len(tiers) == 0 {
		return storage.Tier{}, false
	}
	sorted := sortTiers(tiers)
	best := sorted[0]
	for _, tier := range sorted {
		if tier.RequiredPoints <= points {
			best = tier
		}
	}
	return best, true
}

// StaticTiers converts the configured tier list.
func StaticTiers(cfg []config.Tier) []storage.Tier {
	tiers := make([]storage.Tier, 0, len(cfg))
	for _, t := range cfg {
		tiers = append(tiers, storage.Tier{TierID: t.TierID, Name: t.Name, RoleName: t.RoleName, RequiredPoints: t.RequiredPoints})
	}
	return sortTiers(tiers)
}

func sortTiers(tiers []storage.Tier) []storage.Tier {
	sorted := append([]storage.Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RequiredPoints == sorted[j].RequiredPoints {
			return sorted[i].TierID < sorted[j].TierID
		}
		return sorted[i].RequiredPoints < sorted[j].RequiredPoints
	})
	return sorted
}

func tierByID(tiers []storage.Tier, id int) (storage.Tier, bool) {
	for _, tier := range tiers {
		if tier.TierID == id {
			return tier, true
		}
	}
	return storage.Tier{}, false
}

// isUpgrade compares by threshold so tier ids need not be ordered.
func isUpgrade(tiers []storage.Tier, currentID int, next storage.Tier) bool {
	current, ok := tierByID(tiers, currentID)
	if !ok {
		return next.TierID != currentID
	}
	return next.RequiredPoints > current.RequiredPoints
}
