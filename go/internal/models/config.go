package models

// BoxTables holds the box score values per reward tier. The values are
// external configuration, not derived arithmetically from each other.
type BoxTables struct {
	Full    []int `json:"full" yaml:"full"`
	Half    []int `json:"half" yaml:"half"`
	Failure []int `json:"failure" yaml:"failure"`
}

// GameConfig holds per-game tunables fixed at session creation.
type GameConfig struct {
	BoxTables    BoxTables `json:"box_tables" yaml:"box_tables"`
	BetIncrement int       `json:"bet_increment" yaml:"bet_increment"`
}

// Table returns the box values for a reward tier.
func (c GameConfig) Table(tier RewardTier) []int {
	switch tier {
	case RewardTierHalf:
		return c.BoxTables.Half
	case RewardTierFailure:
		return c.BoxTables.Failure
	default:
		return c.BoxTables.Full
	}
}

// DefaultGameConfig returns the stock box tables and bet increment.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		BoxTables: BoxTables{
			Full:    []int{10, 20, 30, 40, 50},
			Half:    []int{5, 10, 15, 20, 25},
			Failure: []int{-20, -10, 0, 10, 20},
		},
		BetIncrement: 10,
	}
}
