package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vantagemedia/adserver/internal/domain"
)

func intPtr(v int) *int { return &v }

func cand(id string, priority int, weight float64) domain.Candidate {
	return domain.Candidate{
		Ad: &domain.Ad{ID: id, Priority: priority, Weight: weight},
	}
}

func TestPick_Empty(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	assert.Nil(t, s.Pick(nil))
	assert.Nil(t, s.Pick([]domain.Candidate{}))
}

func TestPick_SingleCandidate(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	picked := s.Pick([]domain.Candidate{cand("a", 1, 1)})
	assert.NotNil(t, picked)
	assert.Equal(t, "a", picked.Ad.ID)
}

func TestPick_HigherPriorityTierExcludesLower(t *testing.T) {
	s := NewSelector(rand.NewSource(42))
	candidates := []domain.Candidate{
		cand("low-1", 1, 100),
		cand("low-2", 1, 100),
		cand("high", 5, 1),
	}

	for i := 0; i < 1000; i++ {
		picked := s.Pick(candidates)
		assert.Equal(t, "high", picked.Ad.ID)
	}
}

func TestPick_PriorityOverrideWins(t *testing.T) {
	s := NewSelector(rand.NewSource(42))
	override := cand("overridden", 1, 1)
	override.PriorityOverride = intPtr(10)
	candidates := []domain.Candidate{
		cand("plain", 5, 1),
		override,
	}

	for i := 0; i < 100; i++ {
		assert.Equal(t, "overridden", s.Pick(candidates).Ad.ID)
	}
}

func TestPick_WeightProportional(t *testing.T) {
	s := NewSelector(rand.NewSource(7))
	candidates := []domain.Candidate{
		cand("a", 1, 1),
		cand("b", 1, 1),
		cand("c", 1, 2),
	}

	const trials = 40000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[s.Pick(candidates).Ad.ID]++
	}

	// Expected shares: a 25%, b 25%, c 50%
	assert.InDelta(t, 0.25, float64(counts["a"])/trials, 0.02)
	assert.InDelta(t, 0.25, float64(counts["b"])/trials, 0.02)
	assert.InDelta(t, 0.50, float64(counts["c"])/trials, 0.02)
}

func TestPick_ZeroWeightTreatedAsOne(t *testing.T) {
	s := NewSelector(rand.NewSource(9))
	candidates := []domain.Candidate{
		cand("zero", 1, 0),
		cand("neg", 1, -5),
	}

	const trials = 20000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[s.Pick(candidates).Ad.ID]++
	}

	assert.InDelta(t, 0.5, float64(counts["zero"])/trials, 0.02)
	assert.InDelta(t, 0.5, float64(counts["neg"])/trials, 0.02)
}

func TestPick_AllZeroWeightTierStillServes(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	picked := s.Pick([]domain.Candidate{cand("only", 2, 0)})
	assert.NotNil(t, picked)
	assert.Equal(t, "only", picked.Ad.ID)
}

func TestPickN_DistinctAds(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	candidates := []domain.Candidate{
		cand("a", 1, 1),
		cand("b", 1, 1),
		cand("c", 1, 1),
	}

	for i := 0; i < 100; i++ {
		picked := s.PickN(candidates, 2)
		assert.Len(t, picked, 2)
		assert.NotEqual(t, picked[0].Ad.ID, picked[1].Ad.ID)
	}
}

func TestPickN_FillsTopTierBeforeSpilling(t *testing.T) {
	s := NewSelector(rand.NewSource(9))
	candidates := []domain.Candidate{
		cand("high-1", 5, 1),
		cand("high-2", 5, 1),
		cand("low", 1, 100),
	}

	for i := 0; i < 100; i++ {
		picked := s.PickN(candidates, 3)
		assert.Len(t, picked, 3)
		assert.NotEqual(t, "low", picked[0].Ad.ID)
		assert.NotEqual(t, "low", picked[1].Ad.ID)
		assert.Equal(t, "low", picked[2].Ad.ID)
	}
}

func TestPickN_BoundedBySetSize(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	picked := s.PickN([]domain.Candidate{cand("a", 1, 1)}, 4)
	assert.Len(t, picked, 1)

	assert.Nil(t, s.PickN(nil, 2))
	assert.Nil(t, s.PickN([]domain.Candidate{cand("a", 1, 1)}, 0))
}
