package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Origin identifies which dataset a record came from
type Origin string

const (
	// OriginSource is the client's point-of-sale export
	OriginSource Origin = "SOURCE"
	// OriginAnalytics is the BI-tool extract
	OriginAnalytics Origin = "ANALYTICS"
)

// String returns the string representation of Origin
func (o Origin) String() string {
	return string(o)
}

// IsValid checks if the origin is one of the two known sides
func (o Origin) IsValid() bool {
	return o == OriginSource || o == OriginAnalytics
}

// MatchKind describes how a matched pair was established
type MatchKind string

const (
	MatchKindExact MatchKind = "EXACT"
	MatchKindFuzzy MatchKind = "FUZZY"
)

// Category is the terminal classification of a reconciled record
type Category string

const (
	CategoryExactMatch         Category = "EXACT_MATCH"
	CategoryWithinTolerance    Category = "WITHIN_TOLERANCE"
	CategoryMinorDifference    Category = "MINOR_DIFFERENCE"
	CategoryMajorDifference    Category = "MAJOR_DIFFERENCE"
	CategoryMissingInSource    Category = "MISSING_IN_SOURCE"
	CategoryMissingInAnalytics Category = "MISSING_IN_ANALYTICS"
)

// AllCategories lists every category in report order
var AllCategories = []Category{
	CategoryExactMatch,
	CategoryWithinTolerance,
	CategoryMinorDifference,
	CategoryMajorDifference,
	CategoryMissingInSource,
	CategoryMissingInAnalytics,
}

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a known value
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// IsMissing reports whether the category marks a one-sided record
func (c Category) IsMissing() bool {
	return c == CategoryMissingInSource || c == CategoryMissingInAnalytics
}

// IsReconciled reports whether the category counts towards the reconciliation rate
func (c Category) IsReconciled() bool {
	return c == CategoryExactMatch || c == CategoryWithinTolerance
}

// ParseCategory parses a category name, case-insensitively
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid category '%s'", s)
	}
	return c, nil
}

// RawRow is one tabular row keyed by column name, holding the raw cell text
type RawRow map[string]string

// Dataset is a loaded table handed to the normalizer
type Dataset struct {
	Name    string   `json:"name"`
	Path    string   `json:"path,omitempty"`
	Columns []string `json:"columns"`
	Rows    []RawRow `json:"-"`
	// SkippedRows counts rows discarded at load time (totals, filtered out, blank).
	SkippedRows int `json:"skipped_rows"`
}

// NewDataset creates a dataset with the given header
func NewDataset(name string, columns []string) *Dataset {
	return &Dataset{
		Name:    name,
		Columns: columns,
	}
}

// AddRow appends a row to the dataset
func (d *Dataset) AddRow(row RawRow) {
	d.Rows = append(d.Rows, row)
}

// HasColumn checks whether the header contains the exact column name
func (d *Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// NormalizedRecord is one typed row after normalization
type NormalizedRecord struct {
	Identifier string          `json:"identifier"`
	Amount     decimal.Decimal `json:"amount"`
	Origin     Origin          `json:"origin"`
	// RowNumber is the 1-based position of the row in its dataset.
	RowNumber int `json:"row_number"`
}

// AggregatedRecord is the single record per identifier after deduplication
type AggregatedRecord struct {
	Identifier string          `json:"identifier"`
	Amount     decimal.Decimal `json:"amount"`
	RowCount   int             `json:"row_count"`
	Origin     Origin          `json:"origin"`
}

// String returns a string representation of the AggregatedRecord
func (r AggregatedRecord) String() string {
	return fmt.Sprintf("AggregatedRecord{ID: %s, Amount: %s, Rows: %d, Origin: %s}",
		r.Identifier, r.Amount.String(), r.RowCount, r.Origin)
}

// MatchedPair joins one source record with one analytics record
type MatchedPair struct {
	Identifier          string          `json:"identifier"`
	AnalyticsIdentifier string          `json:"analytics_identifier"`
	SourceAmount        decimal.Decimal `json:"source_amount"`
	AnalyticsAmount     decimal.Decimal `json:"analytics_amount"`
	Kind                MatchKind       `json:"match_kind"`
	Confidence          float64         `json:"match_confidence"`
}

// MissingRecord is a record present on only one side
type MissingRecord struct {
	Identifier string          `json:"identifier"`
	Amount     decimal.Decimal `json:"amount"`
	Side       Category        `json:"missing_side"`
}

// ReconciledRecord is the terminal output unit, one per identifier across both sides
type ReconciledRecord struct {
	Identifier          string          `json:"identifier"`
	AnalyticsIdentifier string          `json:"analytics_identifier,omitempty"`
	SourceAmount        decimal.Decimal `json:"source_amount"`
	AnalyticsAmount     decimal.Decimal `json:"analytics_amount"`
	MatchKind           MatchKind       `json:"match_kind,omitempty"`
	MatchConfidence     float64         `json:"match_confidence"`
	Difference          decimal.Decimal `json:"difference"`
	AbsDifference       decimal.Decimal `json:"abs_difference"`
	DifferencePct       decimal.Decimal `json:"difference_pct"`
	Category            Category        `json:"category"`
	// Label is the client-facing tag, e.g. MISSING_IN_OXXO for MISSING_IN_SOURCE.
	Label string `json:"label"`
}

// IsMatched reports whether the record came from a matched pair
func (r ReconciledRecord) IsMatched() bool {
	return r.MatchKind != ""
}

// MarshalJSON renders money as strings so no precision is lost
func (r ReconciledRecord) MarshalJSON() ([]byte, error) {
	type Alias ReconciledRecord
	return json.Marshal(&struct {
		SourceAmount    string `json:"source_amount"`
		AnalyticsAmount string `json:"analytics_amount"`
		Difference      string `json:"difference"`
		AbsDifference   string `json:"abs_difference"`
		DifferencePct   string `json:"difference_pct"`
		Alias
	}{
		SourceAmount:    r.SourceAmount.StringFixed(2),
		AnalyticsAmount: r.AnalyticsAmount.StringFixed(2),
		Difference:      r.Difference.StringFixed(2),
		AbsDifference:   r.AbsDifference.StringFixed(2),
		DifferencePct:   r.DifferencePct.StringFixed(4),
		Alias:           Alias(r),
	})
}

// SummaryStats is the read-only reduction of one run's reconciled records
type SummaryStats struct {
	TotalRecords       int              `json:"total_records"`
	CategoryCounts     map[Category]int `json:"category_counts"`
	SourceTotal        decimal.Decimal  `json:"source_total"`
	AnalyticsTotal     decimal.Decimal  `json:"analytics_total"`
	NetDifference      decimal.Decimal  `json:"net_difference"`
	AverageDiffPct     decimal.Decimal  `json:"average_difference_pct"`
	MaxAbsDifference   decimal.Decimal  `json:"max_abs_difference"`
	ReconciliationRate decimal.Decimal  `json:"reconciliation_rate"`
	SuccessfulMatches  int              `json:"successful_matches"`
	ExactMatches       int              `json:"exact_matches"`
	FuzzyMatches       int              `json:"fuzzy_matches"`
}

// Count returns the number of records in a category
func (s SummaryStats) Count(c Category) int {
	return s.CategoryCounts[c]
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	floatArtifact = regexp.MustCompile(`^(\d+)\.0+$`)
	accountingNeg = regexp.MustCompile(`^\((.*)\)$`)
)

// NormalizeIdentifier trims, collapses inner whitespace and upper-cases an identifier.
// Spreadsheet exports often turn numeric ids into floats, so "12345.0" becomes "12345".
func NormalizeIdentifier(id string) string {
	normalized := strings.TrimSpace(id)
	if normalized == "" {
		return ""
	}

	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	normalized = strings.ToUpper(normalized)

	if m := floatArtifact.FindStringSubmatch(normalized); m != nil {
		normalized = m[1]
	}

	switch normalized {
	case "NAN", "NONE", "NULL", "<NA>":
		return ""
	}

	return normalized
}

// ParseAmount parses a monetary cell. It accepts a currency symbol, thousands
// separators and accounting negatives such as "(123.45)".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if m := accountingNeg.FindStringSubmatch(s); m != nil {
		negative = true
		s = m[1]
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}
