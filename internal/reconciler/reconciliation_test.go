package reconciler

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/internal/profiles"
	"pos-reconciliation-service/pkg/errors"
)

func oxxoInput(source, analytics *models.Dataset) Input {
	return Input{
		Source:    DatasetInput{Dataset: source, IdentifierColumn: "pedido_adicional", AmountColumn: "valor"},
		Analytics: DatasetInput{Dataset: analytics, IdentifierColumn: "No. Pedido", AmountColumn: "Venta"},
	}
}

func reconcileOXXO(t *testing.T, source, analytics [][2]string) *Result {
	t.Helper()

	result, err := NewEngine(nil).Reconcile(oxxoInput(
		dataset("source", "pedido_adicional", "valor", source...),
		dataset("analytics", "No. Pedido", "Venta", analytics...),
	), profiles.DefaultProfile(profiles.ClientOXXO))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func recordFor(t *testing.T, result *Result, id string) models.ReconciledRecord {
	t.Helper()
	for _, rec := range result.Records {
		if rec.Identifier == id {
			return rec
		}
	}
	t.Fatalf("no record for identifier %s", id)
	return models.ReconciledRecord{}
}

func TestReconcile_ExactMatch(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"A1", "100.00"}},
		[][2]string{{"A1", "100.00"}},
	)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, models.CategoryExactMatch, rec.Category)
	assert.Equal(t, models.MatchKindExact, rec.MatchKind)
	assert.True(t, rec.Difference.IsZero())
	assert.True(t, result.Stats.ReconciliationRate.Equal(decimal.NewFromInt(100)))
}

func TestReconcile_DuplicateRowsAggregateBeforeMatching(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"A1", "100.00"}, {"A1", "50.00"}},
		[][2]string{{"A1", "150.00"}},
	)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.True(t, rec.SourceAmount.Equal(d("150")))
	assert.Equal(t, models.CategoryExactMatch, rec.Category)
	assert.Equal(t, 1, result.Preparation.SourceDeduplication.RowsAbsorbed)
	assert.Equal(t, 1, result.Preparation.SourceDeduplication.UniqueIdentifiers)
}

func TestReconcile_WithinTolerance(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"B1", "1000.00"}},
		[][2]string{{"B1", "970.00"}},
	)

	rec := recordFor(t, result, "B1")
	assert.True(t, rec.AbsDifference.Equal(d("30")))
	assert.True(t, rec.DifferencePct.Equal(d("3")))
	assert.Equal(t, models.CategoryWithinTolerance, rec.Category)
}

func TestReconcile_MajorDifference(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"C1", "1000.00"}},
		[][2]string{{"C1", "500.00"}},
	)

	rec := recordFor(t, result, "C1")
	assert.True(t, rec.DifferencePct.Equal(d("50")))
	assert.Equal(t, models.CategoryMajorDifference, rec.Category)
	assert.True(t, result.Stats.ReconciliationRate.IsZero())
}

func TestReconcile_MissingInAnalytics(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"D1", "200.00"}},
		[][2]string{{"Z9", "40.00"}},
	)

	require.Len(t, result.Records, 2)

	d1 := recordFor(t, result, "D1")
	assert.Equal(t, models.CategoryMissingInAnalytics, d1.Category)
	assert.True(t, d1.AnalyticsAmount.IsZero())
	assert.Equal(t, "MISSING_IN_ANALYTICS", d1.Label)

	z9 := recordFor(t, result, "Z9")
	assert.Equal(t, models.CategoryMissingInSource, z9.Category)
	assert.Equal(t, "MISSING_IN_OXXO", z9.Label)
}

func TestReconcile_FuzzyMatch(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"E1234567", "75.00"}},
		[][2]string{{"E1234568", "75.00"}},
	)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, models.MatchKindFuzzy, rec.MatchKind)
	assert.Equal(t, "E1234567", rec.Identifier)
	assert.Equal(t, "E1234568", rec.AnalyticsIdentifier)
	assert.GreaterOrEqual(t, rec.MatchConfidence, 85.0)
	assert.Equal(t, models.CategoryExactMatch, rec.Category)
	assert.Equal(t, 1, result.Stats.FuzzyMatches)
}

func TestReconcile_FuzzyThresholdFromProfile(t *testing.T) {
	profile := profiles.DefaultProfile(profiles.ClientOXXO)
	input := oxxoInput(
		dataset("source", "pedido_adicional", "valor", [2]string{"E123", "75.00"}),
		dataset("analytics", "No. Pedido", "Venta", [2]string{"E124", "75.00"}),
	)

	// "E123" and "E124" score 75: below the default threshold
	result, err := Reconcile(input, profile)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 0, result.Stats.FuzzyMatches)

	profile.FuzzyThreshold = 75
	result, err = Reconcile(input, profile)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.MatchKindFuzzy, result.Records[0].MatchKind)
}

func TestReconcile_MixedRun(t *testing.T) {
	result := reconcileOXXO(t,
		[][2]string{{"A1", "100"}, {"B1", "1000"}, {"C1", "1000"}, {"D1", "200"}},
		[][2]string{{"A1", "100"}, {"B1", "970"}, {"C1", "500"}, {"Z9", "40"}},
	)

	stats := result.Stats
	assert.Equal(t, 5, stats.TotalRecords)
	assert.True(t, stats.SourceTotal.Equal(d("2300")), "source total %s", stats.SourceTotal)
	assert.True(t, stats.AnalyticsTotal.Equal(d("1610")), "analytics total %s", stats.AnalyticsTotal)
	assert.True(t, stats.NetDifference.Equal(d("530")), "net difference %s", stats.NetDifference)
	assert.True(t, stats.AverageDiffPct.Equal(d("26.5")), "average pct %s", stats.AverageDiffPct)
	assert.True(t, stats.MaxAbsDifference.Equal(d("500")), "max abs %s", stats.MaxAbsDifference)
	assert.True(t, stats.ReconciliationRate.Equal(d("40")), "rate %s", stats.ReconciliationRate)

	ids := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		ids = append(ids, rec.Identifier)
	}
	assert.Equal(t, []string{"A1", "B1", "C1", "D1", "Z9"}, ids)

	assert.Len(t, result.BillingReady(), 2)
	assert.Len(t, result.RequiringAttention(), 3)
	assert.Len(t, result.ByCategory(models.CategoryMissingInSource), 1)

	export := result.Export()
	assert.Equal(t, "OXXO", export.Client)
	assert.Equal(t, "5", export.TolerancePercentage)
	assert.Equal(t, "50.00", export.ToleranceAbsolute)
	assert.Equal(t, "3", export.MinorMultiplier)
	assert.Equal(t, 2, export.BillingReady)
	assert.Equal(t, 3, export.RequiringAttention)
	assert.Contains(t, export.CategoryLabels, "MISSING_IN_OXXO")
	assert.Equal(t, result.CompletedAt, export.GeneratedAt)

	stages := make([]string, 0, len(result.StageTimings))
	for _, s := range result.StageTimings {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, "normalize", stages[0])
	assert.Contains(t, stages, "deduplicate")
	assert.Contains(t, stages, "exact_match")
	assert.Contains(t, stages, "categorize")
	assert.GreaterOrEqual(t, result.Duration().Nanoseconds(), int64(0))
}

func TestReconcile_Properties(t *testing.T) {
	source := [][2]string{
		{"A1", "100"}, {"A1", "20.50"}, {"B1", "1000"}, {"C1", "1000"},
		{"D1", "200"}, {"PED-77", "80"}, {"nan", "9"}, {"F1", "x"},
	}
	analytics := [][2]string{
		{"A1", "120.50"}, {"B1", "990"}, {"C1", "500"}, {"Z9", "40"},
		{"PED-78", "80"}, {"F1", "0"}, {"Z9", "2"},
	}

	result := reconcileOXXO(t, source, analytics)

	t.Run("conservation", func(t *testing.T) {
		sourceSum, analyticsSum := decimal.Zero, decimal.Zero
		for _, r := range source {
			if amount, err := models.ParseAmount(r[1]); err == nil && models.NormalizeIdentifier(r[0]) != "" {
				sourceSum = sourceSum.Add(amount)
			}
		}
		for _, r := range analytics {
			if amount, err := models.ParseAmount(r[1]); err == nil && models.NormalizeIdentifier(r[0]) != "" {
				analyticsSum = analyticsSum.Add(amount)
			}
		}
		assert.True(t, result.Stats.SourceTotal.Equal(sourceSum), "%s != %s", result.Stats.SourceTotal, sourceSum)
		assert.True(t, result.Stats.AnalyticsTotal.Equal(analyticsSum), "%s != %s", result.Stats.AnalyticsTotal, analyticsSum)
	})

	t.Run("partition", func(t *testing.T) {
		sourceIDs := map[string]int{}
		analyticsIDs := map[string]int{}
		for _, rec := range result.Records {
			switch {
			case rec.Category == models.CategoryMissingInSource:
				analyticsIDs[rec.Identifier]++
			case rec.Category == models.CategoryMissingInAnalytics:
				sourceIDs[rec.Identifier]++
			case rec.MatchKind == models.MatchKindFuzzy:
				sourceIDs[rec.Identifier]++
				analyticsIDs[rec.AnalyticsIdentifier]++
			default:
				sourceIDs[rec.Identifier]++
				analyticsIDs[rec.Identifier]++
			}
		}
		assert.Len(t, sourceIDs, result.Preparation.SourceDeduplication.UniqueIdentifiers)
		assert.Len(t, analyticsIDs, result.Preparation.AnalyticsDeduplication.UniqueIdentifiers)
		for id, n := range sourceIDs {
			assert.Equal(t, 1, n, "source identifier %s", id)
		}
		for id, n := range analyticsIDs {
			assert.Equal(t, 1, n, "analytics identifier %s", id)
		}
	})

	t.Run("totality", func(t *testing.T) {
		total := 0
		for _, c := range models.AllCategories {
			total += result.Stats.Count(c)
		}
		assert.Equal(t, result.Stats.TotalRecords, total)
		for _, rec := range result.Records {
			assert.True(t, rec.Category.IsValid(), "record %s", rec.Identifier)
		}
	})

	t.Run("rate bound", func(t *testing.T) {
		assert.True(t, result.Stats.ReconciliationRate.GreaterThanOrEqual(decimal.Zero))
		assert.True(t, result.Stats.ReconciliationRate.LessThanOrEqual(decimal.NewFromInt(100)))
	})

	t.Run("idempotence", func(t *testing.T) {
		again := reconcileOXXO(t, source, analytics)
		require.Len(t, again.Records, len(result.Records))
		for i := range result.Records {
			a, b := result.Records[i], again.Records[i]
			assert.Equal(t, a.Identifier, b.Identifier)
			assert.Equal(t, a.Category, b.Category)
			assert.Equal(t, a.MatchKind, b.MatchKind)
			assert.True(t, a.Difference.Equal(b.Difference))
		}
		assert.True(t, result.Stats.ReconciliationRate.Equal(again.Stats.ReconciliationRate))

		first, err := json.Marshal(result.Stats)
		require.NoError(t, err)
		second, err := json.Marshal(again.Stats)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	})

	assert.Equal(t, 1, result.Preparation.SourceNormalization.DroppedEmptyID)
	assert.Equal(t, 1, result.Preparation.SourceNormalization.DefaultedAmounts)
}

func TestReconcile_Errors(t *testing.T) {
	profile := profiles.DefaultProfile(profiles.ClientOXXO)

	t.Run("empty source", func(t *testing.T) {
		_, err := Reconcile(oxxoInput(
			dataset("source", "pedido_adicional", "valor", [2]string{"", "10"}),
			dataset("analytics", "No. Pedido", "Venta", [2]string{"A1", "10"}),
		), profile)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeEmptyDataset))
	})

	t.Run("empty analytics", func(t *testing.T) {
		_, err := Reconcile(oxxoInput(
			dataset("source", "pedido_adicional", "valor", [2]string{"A1", "10"}),
			dataset("analytics", "No. Pedido", "Venta"),
		), profile)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeEmptyDataset))
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := Reconcile(oxxoInput(
			dataset("source", "pedido_adicional", "valor", [2]string{"A1", "10"}),
			dataset("analytics", "No. Pedido", "Importe", [2]string{"A1", "10"}),
		), profile)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeMissingColumn))
	})

	t.Run("nil dataset", func(t *testing.T) {
		_, err := Reconcile(Input{}, profile)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeMissingField))
	})

	t.Run("invalid profile", func(t *testing.T) {
		bad := profile
		bad.TolerancePercentage = decimal.NewFromInt(-1)
		_, err := Reconcile(oxxoInput(
			dataset("source", "pedido_adicional", "valor", [2]string{"A1", "10"}),
			dataset("analytics", "No. Pedido", "Venta", [2]string{"A1", "10"}),
		), bad)
		require.Error(t, err)
		re, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CategoryConfiguration, re.Category)
	})
}

func TestReconcileRecords(t *testing.T) {
	source := []models.NormalizedRecord{
		{Identifier: "T-1", Amount: d("80"), Origin: models.OriginSource},
		{Identifier: "T-1", Amount: d("20"), Origin: models.OriginSource},
	}
	analytics := []models.NormalizedRecord{
		{Identifier: "T-1", Amount: d("100"), Origin: models.OriginAnalytics},
	}

	result, err := NewEngine(nil).ReconcileRecords(source, analytics, profiles.DefaultProfile(profiles.ClientKIOSKO))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.CategoryExactMatch, result.Records[0].Category)
	assert.Equal(t, "KIOSKO", result.Client)
	assert.Equal(t, 2, result.Preparation.SourceNormalization.RetainedRows)
}

func TestReconcile_RateIsFullOnlyWhenEveryRecordIsBillingReady(t *testing.T) {
	t.Run("all billing ready", func(t *testing.T) {
		result := reconcileOXXO(t,
			[][2]string{{"A1", "100"}, {"B1", "1000"}},
			[][2]string{{"A1", "100"}, {"B1", "970"}},
		)
		assert.Len(t, result.BillingReady(), len(result.Records))
		assert.True(t, result.Stats.ReconciliationRate.Equal(decimal.NewFromInt(100)), "rate %s", result.Stats.ReconciliationRate)
	})

	t.Run("one record needs attention", func(t *testing.T) {
		result := reconcileOXXO(t,
			[][2]string{{"A1", "100"}, {"B1", "1000"}, {"C1", "1000"}},
			[][2]string{{"A1", "100"}, {"B1", "970"}, {"C1", "500"}},
		)
		assert.Len(t, result.BillingReady(), 2)
		assert.True(t, result.Stats.ReconciliationRate.LessThan(decimal.NewFromInt(100)), "rate %s", result.Stats.ReconciliationRate)
	})
}

func TestReconcileRecords_IdentifierCaseAndSpacing(t *testing.T) {
	source := []models.NormalizedRecord{
		{Identifier: "a1", Amount: d("60"), Origin: models.OriginSource},
		{Identifier: "A1", Amount: d("40"), Origin: models.OriginSource},
		{Identifier: "B  7", Amount: d("10"), Origin: models.OriginSource},
		{Identifier: "B 7", Amount: d("15"), Origin: models.OriginSource},
	}
	analytics := []models.NormalizedRecord{
		{Identifier: "A1", Amount: d("100"), Origin: models.OriginAnalytics},
		{Identifier: "b 7", Amount: d("25"), Origin: models.OriginAnalytics},
	}

	result, err := NewEngine(nil).ReconcileRecords(source, analytics, profiles.DefaultProfile(profiles.ClientOXXO))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, models.CategoryExactMatch, rec.Category, "record %s", rec.Identifier)
		assert.Equal(t, models.MatchKindExact, rec.MatchKind, "record %s", rec.Identifier)
	}
	assert.Equal(t, 2, result.Preparation.SourceDeduplication.UniqueIdentifiers)
	assert.Equal(t, 2, result.Preparation.SourceDeduplication.RowsAbsorbed)
}

func TestReconcile_RawIdentifiersStillAggregateByKey(t *testing.T) {
	engine := NewEngine(&EngineConfig{Preprocessing: &PreprocessingConfig{
		NormalizeIdentifiers: false,
		Aggregate:            SumAmounts,
	}})

	result, err := engine.Reconcile(oxxoInput(
		dataset("source", "pedido_adicional", "valor", [2]string{"a1", "60"}, [2]string{"A1", "40"}),
		dataset("analytics", "No. Pedido", "Venta", [2]string{"A1", "100"}),
	), profiles.DefaultProfile(profiles.ClientOXXO))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.CategoryExactMatch, result.Records[0].Category)
	assert.True(t, result.Records[0].SourceAmount.Equal(d("100")))
	assert.Equal(t, 1, result.Preparation.SourceDeduplication.RowsAbsorbed)
}

func TestReconcileRecords_ProfileWithoutMinorMultiplier(t *testing.T) {
	profile := models.ClientProfile{
		Client:              "OXXO",
		TolerancePercentage: d("5"),
		ToleranceAbsolute:   d("50"),
		FuzzyThreshold:      85,
	}

	source := []models.NormalizedRecord{
		{Identifier: "M1", Amount: d("2000"), Origin: models.OriginSource},
		{Identifier: "M2", Amount: d("2000"), Origin: models.OriginSource},
	}
	analytics := []models.NormalizedRecord{
		{Identifier: "M1", Amount: d("1800"), Origin: models.OriginAnalytics},
		{Identifier: "M2", Amount: d("1000"), Origin: models.OriginAnalytics},
	}

	result, err := NewEngine(nil).ReconcileRecords(source, analytics, profile)
	require.NoError(t, err)
	// 10% sits inside the default x3 band of 15%, 50% does not
	assert.Equal(t, models.CategoryMinorDifference, recordFor(t, result, "M1").Category)
	assert.Equal(t, models.CategoryMajorDifference, recordFor(t, result, "M2").Category)
	assert.Equal(t, "3", result.Export().MinorMultiplier)
}
