package matcher

import (
	"pos-reconciliation-service/internal/models"
)

// ExactConfidence is the confidence assigned to identifier-equal pairs
const ExactConfidence = 100.0

// StageResult holds the pairs produced by one matching stage and what it left over
type StageResult struct {
	Pairs             []models.MatchedPair
	ResidualSource    []models.AggregatedRecord
	ResidualAnalytics []models.AggregatedRecord
}

// MatchExact pairs records whose normalized identifiers are equal.
// It indexes the analytics side and looks up each source record once.
func MatchExact(source, analytics []models.AggregatedRecord) (*StageResult, error) {
	if _, err := NewIdentifierIndex(source); err != nil {
		return nil, err
	}
	analyticsIndex, err := NewIdentifierIndex(analytics)
	if err != nil {
		return nil, err
	}

	result := &StageResult{}
	consumed := make(map[string]bool)

	for _, src := range source {
		match, ok := analyticsIndex.Lookup(src.Identifier)
		if !ok {
			result.ResidualSource = append(result.ResidualSource, src)
			continue
		}

		consumed[IndexKey(match.Identifier)] = true
		result.Pairs = append(result.Pairs, models.MatchedPair{
			Identifier:          src.Identifier,
			AnalyticsIdentifier: match.Identifier,
			SourceAmount:        src.Amount,
			AnalyticsAmount:     match.Amount,
			Kind:                models.MatchKindExact,
			Confidence:          ExactConfidence,
		})
	}

	for _, rec := range analytics {
		if !consumed[IndexKey(rec.Identifier)] {
			result.ResidualAnalytics = append(result.ResidualAnalytics, rec)
		}
	}

	return result, nil
}
