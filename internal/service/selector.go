package service

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/vantagemedia/adserver/internal/domain"
)

// Selector picks one ad from an eligible candidate set. Priority is a
// hard tier: only the numerically highest tier is considered, and the
// zone-scoped override wins over the ad's own priority. Within the tier
// the draw is weight-proportional over a stable ascending-id order.
//
// The random source is injected so tests can assert exact
// distributions with a fixed seed.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector drawing from the given source
func NewSelector(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// Pick returns one candidate, or nil when the set is empty
func (s *Selector) Pick(candidates []domain.Candidate) *domain.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	// Keep only the top priority tier
	top := candidates[0].EffectivePriority()
	for _, c := range candidates[1:] {
		if p := c.EffectivePriority(); p > top {
			top = p
		}
	}
	tier := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.EffectivePriority() == top {
			tier = append(tier, c)
		}
	}

	// Stable walk order so a given draw is reproducible
	sort.Slice(tier, func(i, j int) bool { return tier[i].Ad.ID < tier[j].Ad.ID })

	total := 0.0
	for _, c := range tier {
		total += c.Ad.EffectiveWeight()
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	acc := 0.0
	for i := range tier {
		acc += tier[i].Ad.EffectiveWeight()
		if r < acc {
			return &tier[i]
		}
	}
	// Floating point edge: r landed on the total
	return &tier[len(tier)-1]
}

// PickN draws up to n distinct candidates. Each draw repeats Pick over
// the remaining set, so slots fill from the top priority tier first and
// spill into lower tiers only once it runs out.
func (s *Selector) PickN(candidates []domain.Candidate, n int) []domain.Candidate {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	remaining := make([]domain.Candidate, len(candidates))
	copy(remaining, candidates)

	picked := make([]domain.Candidate, 0, n)
	for len(picked) < n && len(remaining) > 0 {
		c := s.Pick(remaining)
		picked = append(picked, *c)
		for i := range remaining {
			if remaining[i].Ad.ID == c.Ad.ID {
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}
	return picked
}
