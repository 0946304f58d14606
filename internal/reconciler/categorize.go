package reconciler

import (
	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/models"
)

var (
	hundred      = decimal.NewFromInt(100)
	minusHundred = decimal.NewFromInt(-100)
)

// CalculateDifference returns source-analytics, its magnitude and the percentage
// of the source amount. A zero source amount yields +100 or -100 following the
// sign of the analytics amount, or 0 when both are zero.
func CalculateDifference(sourceAmount, analyticsAmount decimal.Decimal) (diff, absDiff, pct decimal.Decimal) {
	diff = sourceAmount.Sub(analyticsAmount)
	absDiff = diff.Abs()

	switch {
	case !sourceAmount.IsZero():
		pct = diff.Mul(hundred).Div(sourceAmount)
	case analyticsAmount.IsPositive():
		pct = hundred
	case analyticsAmount.IsNegative():
		pct = minusHundred
	default:
		pct = decimal.Zero
	}

	return diff, absDiff, pct
}

// Categorize applies the decision rule in its fixed order: exact, then within
// tolerance (percentage or absolute), then minor (multiplied percentage), else
// major. Percentages are compared by magnitude.
func Categorize(absDiff, pct decimal.Decimal, profile models.ClientProfile) models.Category {
	absPct := pct.Abs()

	switch {
	case absDiff.IsZero():
		return models.CategoryExactMatch
	case absPct.LessThanOrEqual(profile.TolerancePercentage) || absDiff.LessThanOrEqual(profile.ToleranceAbsolute):
		return models.CategoryWithinTolerance
	case absPct.LessThanOrEqual(profile.MinorTolerance()):
		return models.CategoryMinorDifference
	default:
		return models.CategoryMajorDifference
	}
}

// BuildMatchedRecord computes differences and the category of a matched pair
func BuildMatchedRecord(pair models.MatchedPair, profile models.ClientProfile) models.ReconciledRecord {
	diff, absDiff, pct := CalculateDifference(pair.SourceAmount, pair.AnalyticsAmount)
	category := Categorize(absDiff, pct, profile)

	return models.ReconciledRecord{
		Identifier:          pair.Identifier,
		AnalyticsIdentifier: pair.AnalyticsIdentifier,
		SourceAmount:        pair.SourceAmount,
		AnalyticsAmount:     pair.AnalyticsAmount,
		MatchKind:           pair.Kind,
		MatchConfidence:     pair.Confidence,
		Difference:          diff,
		AbsDifference:       absDiff,
		DifferencePct:       pct,
		Category:            category,
		Label:               profile.Tag(category),
	}
}

// BuildMissingRecord turns a one-sided record into its terminal form. The
// difference is the full one-sided amount, signed as source minus analytics
// with the absent side at zero, and no percentage is computed.
func BuildMissingRecord(missing models.MissingRecord, profile models.ClientProfile) models.ReconciledRecord {
	rec := models.ReconciledRecord{
		Identifier:    missing.Identifier,
		AbsDifference: missing.Amount.Abs(),
		DifferencePct: decimal.Zero,
		Category:      missing.Side,
		Label:         profile.Tag(missing.Side),
	}

	if missing.Side == models.CategoryMissingInAnalytics {
		rec.SourceAmount = missing.Amount
		rec.AnalyticsAmount = decimal.Zero
		rec.Difference = missing.Amount
	} else {
		rec.SourceAmount = decimal.Zero
		rec.AnalyticsAmount = missing.Amount
		rec.Difference = missing.Amount.Neg()
	}

	return rec
}
