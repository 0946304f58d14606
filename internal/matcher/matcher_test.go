package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
)

func TestMatchingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *MatchingConfig
		wantErr bool
	}{
		{"default", DefaultMatchingConfig(), false},
		{"strict", StrictMatchingConfig(), false},
		{"relaxed", RelaxedMatchingConfig(), false},
		{"threshold above 100", &MatchingConfig{FuzzyThreshold: 101, Scorers: AllScorers()}, true},
		{"negative threshold", &MatchingConfig{FuzzyThreshold: -1, Scorers: AllScorers()}, true},
		{"negative warn limit", &MatchingConfig{FuzzyComparisonWarnLimit: -1, Scorers: AllScorers()}, true},
		{"fuzzy without scorers", &MatchingConfig{EnableFuzzyMatching: true, FuzzyThreshold: 85}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchingConfig_CloneAndProfile(t *testing.T) {
	original := DefaultMatchingConfig()
	clone := original.Clone()
	clone.FuzzyThreshold = 50

	assert.Equal(t, 85.0, original.FuzzyThreshold)
	assert.Nil(t, (*MatchingConfig)(nil).Clone())

	config := ConfigForProfile(models.ClientProfile{Client: "KIOSKO", FuzzyThreshold: 90})
	assert.Equal(t, 90.0, config.FuzzyThreshold)
	assert.True(t, config.EnableFuzzyMatching)
	assert.Contains(t, config.String(), "Threshold: 90.0")
}

func TestMatchingEngine_Match(t *testing.T) {
	source := []models.AggregatedRecord{
		src("A1", 100),
		src("E1234567", 75),
		src("D1", 200),
	}
	analytics := []models.AggregatedRecord{
		ana("a1", 100),
		ana("E1234568", 75),
		ana("X-77", 12),
	}

	result, err := NewMatchingEngine(DefaultMatchingConfig()).Match(source, analytics)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 2)
	assert.Equal(t, models.MatchKindExact, result.Pairs[0].Kind)
	assert.Equal(t, models.MatchKindFuzzy, result.Pairs[1].Kind)

	require.Len(t, result.Missing, 2)
	assert.Equal(t, "D1", result.Missing[0].Identifier)
	assert.Equal(t, models.CategoryMissingInAnalytics, result.Missing[0].Side)
	assert.Equal(t, "X-77", result.Missing[1].Identifier)
	assert.Equal(t, models.CategoryMissingInSource, result.Missing[1].Side)

	assert.Equal(t, MatchSummary{
		SourceRecords:      3,
		AnalyticsRecords:   3,
		ExactMatches:       1,
		FuzzyMatches:       1,
		FuzzyComparisons:   4,
		MissingInSource:    1,
		MissingInAnalytics: 1,
	}, result.Summary)
	assert.Len(t, result.StageTimings, 2)
}

func TestMatchingEngine_StrictSkipsFuzzy(t *testing.T) {
	result, err := NewMatchingEngine(StrictMatchingConfig()).Match(
		[]models.AggregatedRecord{src("E1234567", 75)},
		[]models.AggregatedRecord{ana("E1234568", 75)},
	)
	require.NoError(t, err)

	assert.Empty(t, result.Pairs)
	assert.Len(t, result.Missing, 2)
	assert.Zero(t, result.Summary.FuzzyComparisons)
}

func TestMatchingEngine_InvalidConfig(t *testing.T) {
	config := DefaultMatchingConfig()
	config.FuzzyThreshold = 150

	_, err := NewMatchingEngine(config).Match(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))
}

func TestMatchingEngine_DuplicateInputRejected(t *testing.T) {
	_, err := NewMatchingEngine(nil).Match(
		[]models.AggregatedRecord{src("A1", 1), src("A1", 2)},
		[]models.AggregatedRecord{ana("A1", 3)},
	)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDataInconsistent))
}

func TestVerifyPartition(t *testing.T) {
	source := []models.AggregatedRecord{src("A1", 1), src("B1", 1)}
	analytics := []models.AggregatedRecord{ana("A1", 1)}

	complete := &MatchResult{
		Pairs:   []models.MatchedPair{{Identifier: "A1", AnalyticsIdentifier: "A1"}},
		Missing: []models.MissingRecord{{Identifier: "B1", Side: models.CategoryMissingInAnalytics}},
	}
	assert.NoError(t, VerifyPartition(source, analytics, complete))

	lost := &MatchResult{
		Pairs: []models.MatchedPair{{Identifier: "A1", AnalyticsIdentifier: "A1"}},
	}
	assert.Error(t, VerifyPartition(source, analytics, lost))

	duplicated := &MatchResult{
		Pairs: []models.MatchedPair{{Identifier: "A1", AnalyticsIdentifier: "A1"}},
		Missing: []models.MissingRecord{
			{Identifier: "B1", Side: models.CategoryMissingInAnalytics},
			{Identifier: "A1", Side: models.CategoryMissingInSource},
		},
	}
	assert.Error(t, VerifyPartition(source, analytics, duplicated))
}
