// Package retrieval turns nearest-neighbour hits into an ordered, bounded
// context string for the answer model.
//
// Selection is two-stage. Hits are first scored by embedding distance and
// filtered with a threshold that depends on whether the query asks for an
// exhaustive list. The survivors are then reordered by lexical overlap with
// the query, and list-heavy chunks are boosted for exhaustive queries.
package retrieval

// Config holds the ranking constants. They were tuned empirically and are
// exposed so deployments can adjust recall and precision.
type Config struct {
	// SearchK is how many nearest neighbours to request from the index.
	SearchK int `yaml:"search_k"`

	ComprehensiveThreshold float64 `yaml:"comprehensive_threshold"`
	ComprehensiveCap       int     `yaml:"comprehensive_cap"`

	// NarrowRatio scales the best candidate's score into the narrow threshold.
	NarrowRatio            float64 `yaml:"narrow_ratio"`
	NarrowDefaultThreshold float64 `yaml:"narrow_default_threshold"`
	NarrowCap              int     `yaml:"narrow_cap"`

	// MaxDistance excludes hits at or beyond this distance from threshold selection.
	MaxDistance float64 `yaml:"max_distance"`

	ListBoost   float64 `yaml:"list_boost"`
	ListItemMin int     `yaml:"list_item_min"`
}

// DefaultConfig returns the standard ranking constants.
func DefaultConfig() Config {
	return Config{
		SearchK:                12,
		ComprehensiveThreshold: 0.2,
		ComprehensiveCap:       12,
		NarrowRatio:            0.4,
		NarrowDefaultThreshold: 0.3,
		NarrowCap:              8,
		MaxDistance:            3.0,
		ListBoost:              0.3,
		ListItemMin:            3,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SearchK <= 0 {
		c.SearchK = d.SearchK
	}
	if c.ComprehensiveThreshold <= 0 {
		c.ComprehensiveThreshold = d.ComprehensiveThreshold
	}
	if c.ComprehensiveCap <= 0 {
		c.ComprehensiveCap = d.ComprehensiveCap
	}
	if c.NarrowRatio <= 0 {
		c.NarrowRatio = d.NarrowRatio
	}
	if c.NarrowDefaultThreshold <= 0 {
		c.NarrowDefaultThreshold = d.NarrowDefaultThreshold
	}
	if c.NarrowCap <= 0 {
		c.NarrowCap = d.NarrowCap
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = d.MaxDistance
	}
	if c.ListBoost <= 0 {
		c.ListBoost = d.ListBoost
	}
	if c.ListItemMin <= 0 {
		c.ListItemMin = d.ListItemMin
	}
	return c
}
