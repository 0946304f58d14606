package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
)

func dataset(name, idColumn, amountColumn string, rows ...[2]string) *models.Dataset {
	ds := models.NewDataset(name, []string{idColumn, amountColumn})
	for _, r := range rows {
		ds.AddRow(models.RawRow{idColumn: r[0], amountColumn: r[1]})
	}
	return ds
}

func TestNormalize(t *testing.T) {
	ds := dataset("source", "pedido", "valor",
		[2]string{" a1 ", "100.00"},
		[2]string{"", "5"},
		[2]string{"nan", "5"},
		[2]string{"12345.0", "$1,200.50"},
		[2]string{"B2", "abc"},
		[2]string{"C3", "(20)"},
	)

	dp := NewDataPreprocessor(nil, nil)
	records, stats, err := dp.Normalize(ds, "pedido", "valor", models.OriginSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if stats.InputRows != 6 || stats.RetainedRows != 4 || stats.DroppedEmptyID != 2 || stats.DefaultedAmounts != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	want := []struct {
		id     string
		amount string
		row    int
	}{
		{"A1", "100", 1},
		{"12345", "1200.50", 4},
		{"B2", "0", 5},
		{"C3", "-20", 6},
	}
	for i, w := range want {
		if records[i].Identifier != w.id || !records[i].Amount.Equal(d(w.amount)) || records[i].RowNumber != w.row {
			t.Errorf("record %d = %+v, want %+v", i, records[i], w)
		}
		if records[i].Origin != models.OriginSource {
			t.Errorf("record %d has origin %s", i, records[i].Origin)
		}
	}
}

func TestNormalize_MissingColumn(t *testing.T) {
	ds := dataset("analytics", "No. Pedido", "Venta", [2]string{"A1", "10"})
	dp := NewDataPreprocessor(nil, nil)

	_, _, err := dp.Normalize(ds, "No. Pedido", "Importe", models.OriginAnalytics)
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}

	re, _ := errors.AsReconcilerError(err)
	if re.Category != errors.CategorySchema {
		t.Errorf("expected schema category, got %s", re.Category)
	}
}

func TestNormalize_RawIdentifiers(t *testing.T) {
	ds := dataset("source", "id", "amount", [2]string{" ab ", "1"})
	dp := NewDataPreprocessor(&PreprocessingConfig{NormalizeIdentifiers: false}, nil)

	records, _, err := dp.Normalize(ds, "id", "amount", models.OriginSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Identifier != "ab" {
		t.Errorf("expected trimmed identifier only, got %q", records[0].Identifier)
	}
}

func TestDeduplicate(t *testing.T) {
	records := []models.NormalizedRecord{
		{Identifier: "A1", Amount: d("100.00"), Origin: models.OriginSource},
		{Identifier: "B1", Amount: d("10"), Origin: models.OriginSource},
		{Identifier: "A1", Amount: d("50.00"), Origin: models.OriginSource},
		{Identifier: "A1", Amount: d("-5"), Origin: models.OriginSource},
	}

	dp := NewDataPreprocessor(nil, nil)
	aggregated, stats := dp.Deduplicate(records)

	if len(aggregated) != 2 {
		t.Fatalf("expected 2 identifiers, got %d", len(aggregated))
	}
	if aggregated[0].Identifier != "A1" || !aggregated[0].Amount.Equal(d("145")) || aggregated[0].RowCount != 3 {
		t.Errorf("unexpected A1 aggregate %+v", aggregated[0])
	}
	if aggregated[1].Identifier != "B1" || aggregated[1].RowCount != 1 {
		t.Errorf("unexpected B1 aggregate %+v", aggregated[1])
	}

	total := 0
	for _, a := range aggregated {
		total += a.RowCount
	}
	if total != len(records) {
		t.Errorf("row counts add up to %d, want %d", total, len(records))
	}
	if stats.RowsAbsorbed != 2 || stats.UniqueIdentifiers != 2 || stats.InputRecords != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDeduplicate_GroupsByNormalizedKey(t *testing.T) {
	dp := NewDataPreprocessor(&PreprocessingConfig{NormalizeIdentifiers: false, Aggregate: SumAmounts}, nil)

	aggregated, stats := dp.Deduplicate([]models.NormalizedRecord{
		{Identifier: "a1", Amount: d("60")},
		{Identifier: "A1", Amount: d("40")},
		{Identifier: " A 1", Amount: d("1")},
	})

	if len(aggregated) != 2 {
		t.Fatalf("expected 2 identifiers, got %d: %+v", len(aggregated), aggregated)
	}
	if aggregated[0].Identifier != "a1" || !aggregated[0].Amount.Equal(d("100")) || aggregated[0].RowCount != 2 {
		t.Errorf("unexpected a1 aggregate %+v", aggregated[0])
	}
	if stats.RowsAbsorbed != 1 {
		t.Errorf("expected 1 absorbed row, got %d", stats.RowsAbsorbed)
	}
}

func TestDeduplicate_CustomAggregate(t *testing.T) {
	keepMax := func(acc, next decimal.Decimal) decimal.Decimal { return decimal.Max(acc, next) }
	dp := NewDataPreprocessor(&PreprocessingConfig{NormalizeIdentifiers: true, Aggregate: keepMax}, nil)

	aggregated, _ := dp.Deduplicate([]models.NormalizedRecord{
		{Identifier: "A1", Amount: d("10")},
		{Identifier: "A1", Amount: d("30")},
		{Identifier: "A1", Amount: d("20")},
	})

	if !aggregated[0].Amount.Equal(d("30")) || aggregated[0].RowCount != 3 {
		t.Errorf("unexpected aggregate %+v", aggregated[0])
	}
}
