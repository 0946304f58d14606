package reconciler

import (
	"strings"

	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/matcher"
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// DataPreprocessor turns loaded datasets into typed, deduplicated records
type DataPreprocessor struct {
	config *PreprocessingConfig
	logger logger.Logger
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	// NormalizeIdentifiers applies models.NormalizeIdentifier to every identifier
	NormalizeIdentifiers bool

	// Aggregate combines the amounts of rows sharing an identifier
	Aggregate AggregateFunc

	// MaxLoggedAmountWarnings caps the per-row warnings for unparsable amounts.
	// Further occurrences are only counted. Zero logs every occurrence.
	MaxLoggedAmountWarnings int
}

// AggregateFunc folds the next amount into the running total of an identifier
type AggregateFunc func(acc, next decimal.Decimal) decimal.Decimal

// SumAmounts is the default AggregateFunc: split line items of one ticket add up
func SumAmounts(acc, next decimal.Decimal) decimal.Decimal {
	return acc.Add(next)
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		NormalizeIdentifiers:    true,
		Aggregate:               SumAmounts,
		MaxLoggedAmountWarnings: 20,
	}
}

// NormalizationStats counts what the normalizer kept and dropped
type NormalizationStats struct {
	Dataset          string `json:"dataset"`
	InputRows        int    `json:"input_rows"`
	RetainedRows     int    `json:"retained_rows"`
	DroppedEmptyID   int    `json:"dropped_empty_id"`
	DefaultedAmounts int    `json:"defaulted_amounts"`
}

// DeduplicationStats counts how many rows were folded into shared identifiers
type DeduplicationStats struct {
	InputRecords      int `json:"input_records"`
	UniqueIdentifiers int `json:"unique_identifiers"`
	RowsAbsorbed      int `json:"rows_absorbed"`
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig, log logger.Logger) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	if config.Aggregate == nil {
		config.Aggregate = SumAmounts
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &DataPreprocessor{
		config: config,
		logger: log.WithComponent("preprocessor"),
	}
}

// Normalize extracts {identifier, amount} records from a dataset.
//
// Rows whose identifier is empty after coercion are dropped. Unparsable amounts
// become zero and are logged; they never fail the run. A missing identifier or
// amount column is fatal.
func (dp *DataPreprocessor) Normalize(
	ds *models.Dataset,
	idColumn, amountColumn string,
	origin models.Origin,
) ([]models.NormalizedRecord, NormalizationStats, error) {

	stats := NormalizationStats{Dataset: ds.Name, InputRows: ds.Len()}

	for _, column := range []string{idColumn, amountColumn} {
		if !ds.HasColumn(column) {
			return nil, stats, errors.MissingColumnError(ds.Name, column, ds.Columns)
		}
	}

	records := make([]models.NormalizedRecord, 0, ds.Len())
	for i, row := range ds.Rows {
		rowNumber := i + 1

		id := row[idColumn]
		if dp.config.NormalizeIdentifiers {
			id = models.NormalizeIdentifier(id)
		} else {
			id = strings.TrimSpace(id)
		}
		if id == "" {
			stats.DroppedEmptyID++
			continue
		}

		raw := row[amountColumn]
		amount, err := models.ParseAmount(raw)
		if err != nil {
			stats.DefaultedAmounts++
			if dp.config.MaxLoggedAmountWarnings == 0 || stats.DefaultedAmounts <= dp.config.MaxLoggedAmountWarnings {
				dp.logger.WithFields(logger.Fields{
					"dataset":    ds.Name,
					"row":        rowNumber,
					"column":     amountColumn,
					"identifier": id,
					"raw_value":  raw,
				}).Warn("Unparsable amount defaulted to 0")
			}
			amount = decimal.Zero
		}

		records = append(records, models.NormalizedRecord{
			Identifier: id,
			Amount:     amount,
			Origin:     origin,
			RowNumber:  rowNumber,
		})
	}

	stats.RetainedRows = len(records)

	dp.logger.WithFields(logger.Fields{
		"dataset":           ds.Name,
		"origin":            origin,
		"input_rows":        stats.InputRows,
		"retained_rows":     stats.RetainedRows,
		"dropped_empty_id":  stats.DroppedEmptyID,
		"defaulted_amounts": stats.DefaultedAmounts,
	}).Info("Dataset normalized")

	return records, stats, nil
}

// Deduplicate groups records by identifier, producing one AggregatedRecord per
// identifier in order of first appearance. Identifiers are compared by the same
// key the exact matcher indexes on, and the first spelling seen is kept. The row
// counts of the output always add up to the number of input records.
func (dp *DataPreprocessor) Deduplicate(records []models.NormalizedRecord) ([]models.AggregatedRecord, DeduplicationStats) {
	positions := make(map[string]int, len(records))
	aggregated := make([]models.AggregatedRecord, 0, len(records))

	for _, rec := range records {
		key := matcher.IndexKey(rec.Identifier)
		if pos, seen := positions[key]; seen {
			aggregated[pos].Amount = dp.config.Aggregate(aggregated[pos].Amount, rec.Amount)
			aggregated[pos].RowCount++
			continue
		}

		positions[key] = len(aggregated)
		aggregated = append(aggregated, models.AggregatedRecord{
			Identifier: rec.Identifier,
			Amount:     rec.Amount,
			RowCount:   1,
			Origin:     rec.Origin,
		})
	}

	stats := DeduplicationStats{
		InputRecords:      len(records),
		UniqueIdentifiers: len(aggregated),
		RowsAbsorbed:      len(records) - len(aggregated),
	}

	if stats.RowsAbsorbed > 0 {
		dp.logger.WithFields(logger.Fields{
			"input_records":      stats.InputRecords,
			"unique_identifiers": stats.UniqueIdentifiers,
			"rows_absorbed":      stats.RowsAbsorbed,
		}).Info("Duplicate identifiers aggregated")
	}

	return aggregated, stats
}
