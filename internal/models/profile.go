package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pos-reconciliation-service/pkg/errors"
)

// DefaultMinorMultiplier separates MINOR from MAJOR differences as a multiple of
// the percentage tolerance.
var DefaultMinorMultiplier = decimal.NewFromInt(3)

// ClientProfile carries the per-client reconciliation policy. It is passed by
// value into every engine call and never mutated during a run.
type ClientProfile struct {
	Client              string          `json:"client" yaml:"client"`
	TolerancePercentage decimal.Decimal `json:"tolerance_percentage" yaml:"-"`
	ToleranceAbsolute   decimal.Decimal `json:"tolerance_absolute" yaml:"-"`
	FuzzyThreshold      float64         `json:"fuzzy_threshold" yaml:"-"`
	MinorMultiplier     decimal.Decimal `json:"minor_multiplier" yaml:"-"`
	Display             DisplayConfig   `json:"display" yaml:"display"`
	Fields              FieldMapping    `json:"fields" yaml:"fields"`
}

// DisplayConfig holds client-facing names used by reports
type DisplayConfig struct {
	SourceName      string              `json:"source_name" yaml:"source_name"`
	IdentifierLabel string              `json:"identifier_label" yaml:"identifier_label"`
	UnitName        string              `json:"unit_name" yaml:"unit_name"`
	CurrencySymbol  string              `json:"currency_symbol" yaml:"currency_symbol"`
	CategoryLabels  map[Category]string `json:"category_labels" yaml:"category_labels"`
}

// FieldMapping lists candidate column names for each side, in priority order
type FieldMapping struct {
	SourceID        []string `json:"source_id" yaml:"source_id"`
	SourceAmount    []string `json:"source_amount" yaml:"source_amount"`
	AnalyticsID     []string `json:"analytics_id" yaml:"analytics_id"`
	AnalyticsAmount []string `json:"analytics_amount" yaml:"analytics_amount"`
	// AnalyticsClientColumn, when set, restricts analytics rows to this client.
	AnalyticsClientColumn string `json:"analytics_client_column,omitempty" yaml:"analytics_client_column"`
}

// Validate checks the profile's thresholds
func (p ClientProfile) Validate() error {
	if strings.TrimSpace(p.Client) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "client", p.Client, nil)
	}
	if p.TolerancePercentage.IsNegative() {
		return errors.InvalidProfileError(p.Client, "tolerance_percentage", p.TolerancePercentage.String(), "must not be negative")
	}
	if p.ToleranceAbsolute.IsNegative() {
		return errors.InvalidProfileError(p.Client, "tolerance_absolute", p.ToleranceAbsolute.String(), "must not be negative")
	}
	if p.FuzzyThreshold < 0 || p.FuzzyThreshold > 100 {
		return errors.InvalidProfileError(p.Client, "fuzzy_threshold", p.FuzzyThreshold, "must be between 0 and 100")
	}
	if !p.MinorMultiplier.IsZero() && p.MinorMultiplier.LessThan(decimal.NewFromInt(1)) {
		return errors.InvalidProfileError(p.Client, "minor_multiplier", p.MinorMultiplier.String(), "must be at least 1")
	}
	return nil
}

// EffectiveMinorMultiplier returns MinorMultiplier, or DefaultMinorMultiplier
// when the profile leaves it unset
func (p ClientProfile) EffectiveMinorMultiplier() decimal.Decimal {
	if p.MinorMultiplier.IsZero() {
		return DefaultMinorMultiplier
	}
	return p.MinorMultiplier
}

// MinorTolerance returns the percentage bound of the MINOR_DIFFERENCE band
func (p ClientProfile) MinorTolerance() decimal.Decimal {
	return p.TolerancePercentage.Mul(p.EffectiveMinorMultiplier())
}

// MissingInSourceTag returns the client-specific tag for analytics-only records
func (p ClientProfile) MissingInSourceTag() string {
	return "MISSING_IN_" + strings.ToUpper(p.Client)
}

// Tag returns the tag written on a record of the given category
func (p ClientProfile) Tag(c Category) string {
	if c == CategoryMissingInSource {
		return p.MissingInSourceTag()
	}
	return string(c)
}

// CategoryLabel returns the human label for a category, falling back to the tag
func (p ClientProfile) CategoryLabel(c Category) string {
	if label, ok := p.Display.CategoryLabels[c]; ok && label != "" {
		return label
	}
	return p.Tag(c)
}

// String returns a short description of the profile's thresholds
func (p ClientProfile) String() string {
	return fmt.Sprintf("ClientProfile{Client: %s, Tolerance: %s%%/%s, Fuzzy: %.1f, Minor: x%s}",
		p.Client, p.TolerancePercentage.String(), p.ToleranceAbsolute.StringFixed(2),
		p.FuzzyThreshold, p.EffectiveMinorMultiplier().String())
}
