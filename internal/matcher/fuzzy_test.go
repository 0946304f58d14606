package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-reconciliation-service/internal/models"
)

func fuzzyConfig(threshold float64) *MatchingConfig {
	config := DefaultMatchingConfig()
	config.FuzzyThreshold = threshold
	return config
}

func TestCandidatePool(t *testing.T) {
	pool := NewCandidatePool([]models.AggregatedRecord{ana("B", 1), ana("A", 2)})

	require.Equal(t, 2, pool.Len())
	assert.Equal(t, "A", pool.Get(0).Identifier, "pool is kept in identifier order")

	assert.True(t, pool.Remove(0))
	assert.False(t, pool.Remove(0), "a removed candidate cannot be removed twice")
	assert.False(t, pool.Available(0))
	assert.False(t, pool.Available(5))
	assert.Equal(t, 1, pool.Remaining())

	residual := pool.Residual()
	require.Len(t, residual, 1)
	assert.Equal(t, "B", residual[0].Identifier)
}

func TestFuzzyMatcher_OneCharacterDifference(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(85), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("E1234567", 75)},
		[]models.AggregatedRecord{ana("E1234568", 75)},
	)

	require.Len(t, result.Pairs, 1)
	pair := result.Pairs[0]
	assert.Equal(t, models.MatchKindFuzzy, pair.Kind)
	assert.Equal(t, "E1234567", pair.Identifier)
	assert.Equal(t, "E1234568", pair.AnalyticsIdentifier)
	assert.Equal(t, 87.5, pair.Confidence)
	assert.Empty(t, result.ResidualSource)
	assert.Empty(t, result.ResidualAnalytics)
	assert.Equal(t, 1, result.Comparisons)
}

func TestFuzzyMatcher_BelowThresholdIsNotForced(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(85), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("E123", 75), src("D1", 200)},
		[]models.AggregatedRecord{ana("E124", 75), ana("ZZZ999", 10)},
	)

	assert.Empty(t, result.Pairs)
	assert.Len(t, result.ResidualSource, 2)
	assert.Len(t, result.ResidualAnalytics, 2)
}

func TestFuzzyMatcher_PicksHighestScore(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(70), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("A1234567", 10)},
		[]models.AggregatedRecord{ana("A1234500", 10), ana("A1234568", 10)},
	)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, "A1234568", result.Pairs[0].AnalyticsIdentifier)
	require.Len(t, result.ResidualAnalytics, 1)
	assert.Equal(t, "A1234500", result.ResidualAnalytics[0].Identifier)
}

func TestFuzzyMatcher_TiesKeepLowerIdentifier(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(75), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("ABCD1", 10)},
		[]models.AggregatedRecord{ana("ABCD3", 10), ana("ABCD2", 10)},
	)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, "ABCD2", result.Pairs[0].AnalyticsIdentifier)
	assert.Equal(t, 80.0, result.Pairs[0].Confidence)
}

func TestFuzzyMatcher_CandidateUsedOnce(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(75), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("ABCD9", 1), src("ABCD1", 2)},
		[]models.AggregatedRecord{ana("ABCD2", 3)},
	)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, "ABCD1", result.Pairs[0].Identifier, "source records are processed in identifier order")
	require.Len(t, result.ResidualSource, 1)
	assert.Equal(t, "ABCD9", result.ResidualSource[0].Identifier)
	assert.Empty(t, result.ResidualAnalytics)
	assert.Equal(t, 1, result.Comparisons, "an exhausted pool is not scanned")
}

func TestFuzzyMatcher_ZeroThresholdMatchesAnything(t *testing.T) {
	fm := NewFuzzyMatcher(fuzzyConfig(0), nil)

	result := fm.Match(
		[]models.AggregatedRecord{src("AAAA", 1)},
		[]models.AggregatedRecord{ana("ZZZZ", 1)},
	)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, 0.0, result.Pairs[0].Confidence)
}

func TestFuzzyMatcher_Deterministic(t *testing.T) {
	source := []models.AggregatedRecord{src("T-100", 1), src("T-200", 2), src("T-300", 3)}
	analytics := []models.AggregatedRecord{ana("T-201", 2), ana("T-101", 1), ana("T-301", 3)}

	first := NewFuzzyMatcher(fuzzyConfig(75), nil).Match(source, analytics)
	second := NewFuzzyMatcher(fuzzyConfig(75), nil).Match(source, analytics)

	assert.Equal(t, first.Pairs, second.Pairs)
	assert.Equal(t, first.Comparisons, second.Comparisons)
}
