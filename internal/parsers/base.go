// Package parsers loads tabular exports (CSV, XLSX and legacy XLS) into
// models.Dataset values for the reconciliation engine.
//
// Real POS and BI exports are rarely clean tables. The loader handles:
//   - a header row that is not the first row, and banner rows after it
//   - subtotal lines ("TOTAL POR FECHA", "TOTALES") scattered through the data
//   - blank spacer rows
//   - BI extracts that mix several clients and must be filtered on a column
//   - duplicated or empty header cells
//
// Every cell is kept as raw text; typing happens in the normalizer so that a
// bad amount degrades to a warning instead of failing the load.
//
// Example usage:
//
//	loader := parsers.NewLoader(nil)
//	ds, err := loader.Load(ctx, "ventas.xlsx", &parsers.DatasetConfig{HeaderRow: 2})
//	idColumn, err := parsers.ResolveColumn(ds, "pedido_adicional", "Pedido")
package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// cancellation is checked every this many rows while building a dataset
const cancelCheckInterval = 1024

// sheetReader reads the raw grid of one file
type sheetReader func(ctx context.Context, path string, config *DatasetConfig) ([][]string, error)

// Loader reads dataset exports from disk
type Loader struct {
	logger  logger.Logger
	readers map[Format]sheetReader
}

// LoadStats counts what happened to the rows of one file
type LoadStats struct {
	GridRows      int `json:"grid_rows"`
	DataRows      int `json:"data_rows"`
	BlankRows     int `json:"blank_rows"`
	TotalRows     int `json:"total_rows"`
	FilteredRows  int `json:"filtered_rows"`
	BannerSkipped int `json:"banner_skipped"`
}

// Skipped returns the number of rows discarded after the header
func (s LoadStats) Skipped() int {
	return s.BlankRows + s.TotalRows + s.FilteredRows + s.BannerSkipped
}

// String returns a human-readable summary of load statistics
func (s LoadStats) String() string {
	return fmt.Sprintf("Loaded %d data rows from %d grid rows (%d blank, %d totals, %d filtered, %d skipped)",
		s.DataRows, s.GridRows, s.BlankRows, s.TotalRows, s.FilteredRows, s.BannerSkipped)
}

// NewLoader creates a Loader for CSV, XLSX and XLS files
func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Loader{
		logger: log.WithComponent("loader"),
		readers: map[Format]sheetReader{
			FormatCSV:  readCSV,
			FormatXLSX: readXLSX,
			FormatXLS:  readXLS,
		},
	}
}

// Load reads the file at path and returns its data rows keyed by header name
func (l *Loader) Load(ctx context.Context, path string, config *DatasetConfig) (*models.Dataset, error) {
	ds, _, err := l.LoadWithStats(ctx, path, config)
	return ds, err
}

// LoadWithStats is Load plus the row accounting of the file
func (l *Loader) LoadWithStats(ctx context.Context, path string, config *DatasetConfig) (*models.Dataset, LoadStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if config == nil {
		config = DefaultDatasetConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, LoadStats{}, errors.ConfigurationError(errors.CodeInvalidConfig, "dataset", path, err)
	}

	if err := checkFile(path); err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Dataset file is not readable")
		return nil, LoadStats{}, err
	}

	format := config.ResolveFormat(path)
	read, ok := l.readers[format]
	if !ok {
		return nil, LoadStats{}, errors.FileError(errors.CodeUnsupportedFormat, path, nil).
			WithContext("extension", filepath.Ext(path))
	}

	name := config.Name
	if name == "" {
		name = filepath.Base(path)
	}

	log := l.logger.WithFields(logger.Fields{
		"dataset": name,
		"format":  format,
	})
	log.WithField("file_path", path).Debug("Reading dataset")

	grid, err := read(ctx, path, config)
	if err != nil {
		return nil, LoadStats{}, err
	}

	ds, stats, err := BuildDataset(ctx, name, grid, config)
	if err != nil {
		return nil, stats, err
	}
	ds.Path = path

	log.WithFields(logger.Fields{
		"columns":       len(ds.Columns),
		"data_rows":     stats.DataRows,
		"blank_rows":    stats.BlankRows,
		"total_rows":    stats.TotalRows,
		"filtered_rows": stats.FilteredRows,
	}).Info("Dataset loaded")

	return ds, stats, nil
}

// checkFile maps stat failures to file errors before any reader touches the path
func checkFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return errors.FileError(errors.CodeUnsupportedFormat, path, fmt.Errorf("path is a directory"))
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

// BuildDataset turns a raw grid into a Dataset: it picks the header row, drops
// banner, blank and subtotal rows, and applies the row filter.
func BuildDataset(ctx context.Context, name string, grid [][]string, config *DatasetConfig) (*models.Dataset, LoadStats, error) {
	stats := LoadStats{GridRows: len(grid)}

	if config.HeaderRow >= len(grid) {
		return nil, stats, errors.ParseError(errors.CodeMissingHeader, name, config.HeaderRow+1, nil).
			WithContext("grid_rows", len(grid))
	}

	headers := cleanHeaders(grid[config.HeaderRow])
	ds := models.NewDataset(name, headers)

	filterColumn := ""
	if !config.RowFilter.IsZero() {
		col, err := ResolveColumn(ds, config.RowFilter.Column)
		if err != nil {
			return nil, stats, err
		}
		filterColumn = col
	}

	for i := config.HeaderRow + 1; i < len(grid); i++ {
		if (i-config.HeaderRow)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, errors.ReconciliationError(errors.CodeCancelled, "load "+name, err)
			}
		}

		record := grid[i]

		if i <= config.HeaderRow+config.SkipRows {
			stats.BannerSkipped++
			continue
		}
		if isEmptyRecord(record) {
			stats.BlankRows++
			continue
		}
		if isTotalRow(record, config.TotalRowIndicators) {
			stats.TotalRows++
			continue
		}

		row := make(models.RawRow, len(headers))
		for j, header := range headers {
			if j < len(record) {
				row[header] = strings.TrimSpace(record[j])
			} else {
				row[header] = ""
			}
		}

		if filterColumn != "" && !config.RowFilter.Matches(row[filterColumn]) {
			stats.FilteredRows++
			continue
		}

		ds.AddRow(row)
	}

	stats.DataRows = ds.Len()
	ds.SkippedRows = stats.Skipped()
	return ds, stats, nil
}

// cleanHeaders trims header names, names empty cells after their position and
// suffixes repeated names so every column stays addressable
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	suffix := make(map[string]int, len(headers))

	for i, header := range headers {
		name := strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			base := name
			for used[name] {
				suffix[base]++
				name = fmt.Sprintf("%s.%d", base, suffix[base])
			}
		}
		used[name] = true
		cleaned[i] = name
	}

	return cleaned
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// isTotalRow checks the first non-empty cell against the subtotal markers
func isTotalRow(record []string, indicators []string) bool {
	if len(indicators) == 0 {
		return false
	}

	for _, field := range record {
		cell := strings.ToUpper(strings.TrimSpace(field))
		if cell == "" {
			continue
		}
		for _, indicator := range indicators {
			if indicator != "" && strings.Contains(cell, strings.ToUpper(indicator)) {
				return true
			}
		}
		return false
	}

	return false
}
