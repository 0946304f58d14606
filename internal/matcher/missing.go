package matcher

import (
	"pos-reconciliation-service/internal/models"
)

// DetectMissing relabels the records left after exact and fuzzy matching.
// Leftover source records are missing in analytics and leftover analytics
// records are missing in source. Each side is emitted in identifier order.
func DetectMissing(residualSource, residualAnalytics []models.AggregatedRecord) []models.MissingRecord {
	missing := make([]models.MissingRecord, 0, len(residualSource)+len(residualAnalytics))

	for _, rec := range SortByIdentifier(residualSource) {
		missing = append(missing, models.MissingRecord{
			Identifier: rec.Identifier,
			Amount:     rec.Amount,
			Side:       models.CategoryMissingInAnalytics,
		})
	}

	for _, rec := range SortByIdentifier(residualAnalytics) {
		missing = append(missing, models.MissingRecord{
			Identifier: rec.Identifier,
			Amount:     rec.Amount,
			Side:       models.CategoryMissingInSource,
		})
	}

	return missing
}
