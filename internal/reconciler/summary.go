package reconciler

import (
	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/models"
)

// Summarize reduces the categorized records of one run.
//
// Side totals cover every record, using whichever amount a missing record has.
// The net difference covers matched records only. The average percentage covers
// matched records that are not exact. The reconciliation rate is zero for an
// empty run.
func Summarize(records []models.ReconciledRecord) models.SummaryStats {
	stats := models.SummaryStats{
		TotalRecords:       len(records),
		CategoryCounts:     make(map[models.Category]int, len(models.AllCategories)),
		SourceTotal:        decimal.Zero,
		AnalyticsTotal:     decimal.Zero,
		NetDifference:      decimal.Zero,
		AverageDiffPct:     decimal.Zero,
		MaxAbsDifference:   decimal.Zero,
		ReconciliationRate: decimal.Zero,
	}
	for _, c := range models.AllCategories {
		stats.CategoryCounts[c] = 0
	}

	pctSum := decimal.Zero
	pctCount := 0

	for _, rec := range records {
		stats.CategoryCounts[rec.Category]++
		stats.SourceTotal = stats.SourceTotal.Add(rec.SourceAmount)
		stats.AnalyticsTotal = stats.AnalyticsTotal.Add(rec.AnalyticsAmount)

		if rec.AbsDifference.GreaterThan(stats.MaxAbsDifference) {
			stats.MaxAbsDifference = rec.AbsDifference
		}

		if rec.Category.IsMissing() {
			continue
		}

		stats.NetDifference = stats.NetDifference.Add(rec.Difference)

		switch rec.MatchKind {
		case models.MatchKindExact:
			stats.ExactMatches++
		case models.MatchKindFuzzy:
			stats.FuzzyMatches++
		}

		if rec.Category != models.CategoryExactMatch {
			pctSum = pctSum.Add(rec.DifferencePct)
			pctCount++
		}
	}

	if pctCount > 0 {
		stats.AverageDiffPct = pctSum.Div(decimal.NewFromInt(int64(pctCount)))
	}

	stats.SuccessfulMatches = stats.CategoryCounts[models.CategoryExactMatch] +
		stats.CategoryCounts[models.CategoryWithinTolerance]

	if stats.TotalRecords > 0 {
		stats.ReconciliationRate = decimal.NewFromInt(int64(stats.SuccessfulMatches)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(stats.TotalRecords)))
	}

	return stats
}
