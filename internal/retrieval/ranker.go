package retrieval

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/storage"
)

var comprehensivePhrases = []string{
	"what are", "list all", "show all", "all the", "commands", "what commands",
}

// Section is one chunk chosen for the context.
type Section struct {
	Text     string
	Score    float64 // 1/(1+distance)
	Distance float64
	Lexical  float64 // keyword overlap plus list boost
}

// Context is the assembled result for one query.
type Context struct {
	Query    string
	Sections []Section
	Text     string
}

// Empty reports whether no chunk was selected.
func (c *Context) Empty() bool {
	return len(c.Sections) == 0
}

// Ranker selects and orders search hits. It is stateless and safe for concurrent use.
type Ranker struct {
	cfg Config
}

// NewRanker creates a Ranker, filling unset config fields with defaults.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (r *Ranker) Config() Config {
	return r.cfg
}

// Score converts a distance into a relevance score in (0, 1].
func Score(distance float64) float64 {
	return 1 / (1 + distance)
}

// IsComprehensive reports whether the query asks for an exhaustive list.
func IsComprehensive(query string) bool {
	q := strings.ToLower(query)
	for _, phrase := range comprehensivePhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// Select scores hits, keeps those passing the threshold up to the cap, and
// falls back to the top-cap hits when none pass. Output is in descending
// score order; equal scores keep their input order.
func (r *Ranker) Select(query string, hits []storage.Hit) []Section {
	if len(hits) == 0 {
		return nil
	}

	candidates := make([]Section, len(hits))
	for i, h := range hits {
		candidates[i] = Section{Text: h.Text, Score: Score(h.Distance), Distance: h.Distance}
	}
	slices.SortStableFunc(candidates, func(a, b Section) int {
		return cmp.Compare(b.Score, a.Score)
	})

	threshold, limit := r.thresholdAndCap(query, candidates)

	var selected []Section
	for _, c := range candidates {
		if len(selected) == limit {
			break
		}
		if c.Score >= threshold && c.Distance < r.cfg.MaxDistance {
			selected = append(selected, c)
		}
	}

	if len(selected) == 0 {
		selected = candidates[:min(limit, len(candidates))]
	}
	return selected
}

func (r *Ranker) thresholdAndCap(query string, sorted []Section) (float64, int) {
	if IsComprehensive(query) {
		return r.cfg.ComprehensiveThreshold, r.cfg.ComprehensiveCap
	}
	if len(sorted) == 0 {
		return r.cfg.NarrowDefaultThreshold, r.cfg.NarrowCap
	}
	return sorted[0].Score * r.cfg.NarrowRatio, r.cfg.NarrowCap
}

// Rank runs Select then Assemble.
func (r *Ranker) Rank(query string, hits []storage.Hit) *Context {
	return r.Assemble(query, r.Select(query, hits))
}
