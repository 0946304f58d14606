package parsers

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies the container of a dataset export
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DefaultTotalRowIndicators are the markers POS exports put on subtotal lines
var DefaultTotalRowIndicators = []string{"TOTAL POR FECHA", "TOTALES", "TOTAL GENERAL"}

// RowFilter keeps only rows whose Column equals Value, ignoring case and
// surrounding spaces
type RowFilter struct {
	Column string `json:"column" yaml:"column"`
	Value  string `json:"value" yaml:"value"`
}

// IsZero reports whether the filter is unset
func (f RowFilter) IsZero() bool {
	return strings.TrimSpace(f.Column) == ""
}

// Matches reports whether a cell value passes the filter
func (f RowFilter) Matches(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(f.Value))
}

// DatasetConfig describes how one export is laid out
type DatasetConfig struct {
	// Name labels the dataset in logs and errors; defaults to the file name
	Name   string `json:"name"`
	Format Format `json:"format"`

	// HeaderRow is the 0-based row holding column names
	HeaderRow int `json:"header_row"`
	// SkipRows drops this many rows right after the header
	SkipRows  int    `json:"skip_rows"`
	Delimiter rune   `json:"delimiter"`
	Sheet     string `json:"sheet,omitempty"`

	// TotalRowIndicators skips rows whose first non-empty cell contains any of
	// these markers
	TotalRowIndicators []string  `json:"total_row_indicators,omitempty"`
	RowFilter          RowFilter `json:"row_filter"`

	// ValidateEncoding rejects CSV files that are not UTF-8
	ValidateEncoding bool `json:"validate_encoding"`
}

// DefaultDatasetConfig returns a configuration for a plain header-first export
func DefaultDatasetConfig() *DatasetConfig {
	return &DatasetConfig{
		Format:             FormatAuto,
		HeaderRow:          0,
		Delimiter:          ',',
		TotalRowIndicators: append([]string(nil), DefaultTotalRowIndicators...),
		ValidateEncoding:   true,
	}
}

// Validate checks if the dataset configuration is valid
func (c *DatasetConfig) Validate() error {
	if c.HeaderRow < 0 {
		return fmt.Errorf("header row cannot be negative, got %d", c.HeaderRow)
	}

	if c.SkipRows < 0 {
		return fmt.Errorf("skip rows cannot be negative, got %d", c.SkipRows)
	}

	switch c.Format {
	case FormatAuto, FormatCSV, FormatXLSX, FormatXLS:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}

	if !c.RowFilter.IsZero() && strings.TrimSpace(c.RowFilter.Value) == "" {
		return fmt.Errorf("row filter on column %q needs a value", c.RowFilter.Column)
	}

	return nil
}

// ResolveFormat returns the configured format, or the one implied by the file
// extension
func (c *DatasetConfig) ResolveFormat(path string) Format {
	if c.Format != FormatAuto {
		return c.Format
	}
	return DetectFormat(path)
}

// DetectFormat maps a file extension to a Format, or FormatAuto when unknown
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	default:
		return FormatAuto
	}
}

// ParseFormat parses a user-supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAuto, FormatCSV, FormatXLSX, FormatXLS:
		return f, nil
	case "auto":
		return FormatAuto, nil
	default:
		return FormatAuto, fmt.Errorf("unsupported format %q (expected csv, xlsx or xls)", s)
	}
}
