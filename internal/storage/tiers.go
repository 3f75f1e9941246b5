package storage

import "context"

type Tier struct {
	TierID         int    `db:"tier_id"`
	Name           string `db:"name"`
	RoleName       string `db:"role_name"`
	RequiredPoints int    `db:"required_points"`
}

// SeedTiers inserts the static tier list; existing rows are left alone.
func (s *Store) SeedTiers(ctx context.Context, tiers []Tier) error {
	for _, tier := range tiers {
		err := s.Exec(ctx, `
			INSERT OR IGNORE INTO tiers (tier_id, name, role_name, required_points)
			VALUES (?, ?, ?, ?)
		`, tier.TierID, tier.Name, tier.RoleName, tier.RequiredPoints)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListTiers(ctx context.Context) ([]Tier, error) {
	var tiers []Tier
	if err := s.Fetch(ctx, &tiers, `SELECT tier_id, name, role_name, required_points FROM tiers ORDER BY required_points, tier_id`); err != nil {
		return nil, err
	}
	return tiers, nil
}

// TierForPoints returns the best tier whose threshold is covered by points.
func (s *Store) TierForPoints(ctx context.Context, points int) (Tier, error) {
	var tier Tier
	err := s.FetchOne(ctx, &tier, `
		SELECT tier_id, name, role_name, required_points FROM tiers
		WHERE required_points <= ?
		ORDER BY required_points DESC, tier_id DESC
		LIMIT 1
	`, points)
	return tier, err
}
