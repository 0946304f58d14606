// Package reporter renders reconciliation runs for people and for other tools.
//
// Supported output formats:
//   - Console: plain text summary, per-category breakdown and the records that
//     need attention
//   - JSON: run metadata, summary export and every record, for programmatic use
//   - CSV: one line per reconciled record, for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format: reporter.FormatJSON,
//		Only:   reporter.SelectAttention,
//	})
//	err = generator.GenerateReport(run, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/matcher"
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/internal/reconciler"
	"pos-reconciliation-service/pkg/logger"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Selection restricts which records a report lists
type Selection string

const (
	SelectAll       Selection = ""
	SelectBilling   Selection = "billing"
	SelectAttention Selection = "attention"
)

// ParseSelection parses the value of the --only flag
func ParseSelection(s string) (Selection, error) {
	switch sel := Selection(strings.ToLower(strings.TrimSpace(s))); sel {
	case SelectAll, SelectBilling, SelectAttention:
		return sel, nil
	case "all":
		return SelectAll, nil
	default:
		return "", fmt.Errorf("invalid selection '%s', valid: all, billing, attention", s)
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Only limits the listed records; summary figures always cover the whole run
	Only Selection `json:"only"`

	IncludeRecords      bool `json:"include_records"`
	IncludeStageTimings bool `json:"include_stage_timings"`

	// MaxConsoleRows caps the per-record lines of the console report. Zero lists all.
	MaxConsoleRows int `json:"max_console_rows"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		Only:                SelectAll,
		IncludeRecords:      true,
		IncludeStageTimings: false,
		MaxConsoleRows:      25,
		CSVDelimiter:        ',',
		CSVHeaders:          true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if _, err := ParseSelection(string(c.Only)); err != nil {
		return err
	}
	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report of the run to writer
func (rg *ReportGenerator) GenerateReport(run *reconciler.RunResult, writer io.Writer) error {
	if run == nil || run.Result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(run, writer)
	case FormatJSON:
		return rg.generateJSONReport(run, writer)
	case FormatCSV:
		return rg.generateCSVReport(run, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// selectRecords applies the Only selection
func (rg *ReportGenerator) selectRecords(result *reconciler.Result) []models.ReconciledRecord {
	switch rg.config.Only {
	case SelectBilling:
		return result.BillingReady()
	case SelectAttention:
		return result.RequiringAttention()
	default:
		return result.Records
	}
}

func (rg *ReportGenerator) generateConsoleReport(run *reconciler.RunResult, w io.Writer) error {
	result := run.Result
	profile := result.Profile
	stats := result.Stats

	cw := &consoleWriter{w: w}

	cw.printf("RECONCILIATION REPORT: %s\n", displayName(profile))
	if run.RunID != "" {
		cw.printf("Run:       %s\n", run.RunID)
	}
	cw.printf("Generated: %s\n", result.CompletedAt.Format(time.RFC3339))
	if run.SourceFile != "" {
		cw.printf("Source:    %s\n", run.SourceFile)
		cw.printf("Analytics: %s\n", run.AnalyticsFile)
	}
	cw.printf("Profile:   tolerance %s%% / %s%s, minor x%s, fuzzy %.1f\n\n",
		profile.TolerancePercentage.String(),
		profile.Display.CurrencySymbol, profile.ToleranceAbsolute.StringFixed(2),
		profile.MinorMultiplier.String(), profile.FuzzyThreshold)

	cw.printf("=== SUMMARY ===\n")
	cw.printf("Records:             %d\n", stats.TotalRecords)
	cw.printf("Reconciliation Rate: %s%%\n", stats.ReconciliationRate.StringFixed(2))
	cw.printf("Source Total:        %s\n", money(profile, stats.SourceTotal))
	cw.printf("Analytics Total:     %s\n", money(profile, stats.AnalyticsTotal))
	cw.printf("Net Difference:      %s\n", money(profile, stats.NetDifference))
	cw.printf("Average Difference:  %s%%\n", stats.AverageDiffPct.StringFixed(2))
	cw.printf("Max Abs Difference:  %s\n\n", money(profile, stats.MaxAbsDifference))

	cw.printf("=== CATEGORY BREAKDOWN ===\n")
	for _, c := range models.AllCategories {
		count := stats.Count(c)
		cw.printf("%-22s %-26s %6d (%5.1f%%)\n",
			profile.Tag(c), profile.CategoryLabel(c), count, percentage(count, stats.TotalRecords))
	}
	cw.printf("\n")

	cw.printf("=== MATCHING ===\n")
	cw.printf("Exact Matches:     %d\n", result.Matching.ExactMatches)
	cw.printf("Fuzzy Matches:     %d\n", result.Matching.FuzzyMatches)
	cw.printf("Fuzzy Comparisons: %d\n\n", result.Matching.FuzzyComparisons)

	prep := result.Preparation
	cw.printf("=== DATA QUALITY ===\n")
	cw.printf("Source:    %d rows, %d without id, %d amounts defaulted, %d duplicate rows aggregated\n",
		prep.SourceNormalization.InputRows, prep.SourceNormalization.DroppedEmptyID,
		prep.SourceNormalization.DefaultedAmounts, prep.SourceDeduplication.RowsAbsorbed)
	cw.printf("Analytics: %d rows, %d without id, %d amounts defaulted, %d duplicate rows aggregated\n",
		prep.AnalyticsNormalization.InputRows, prep.AnalyticsNormalization.DroppedEmptyID,
		prep.AnalyticsNormalization.DefaultedAmounts, prep.AnalyticsDeduplication.RowsAbsorbed)
	if run.AnalyticsRowsOtherClients > 0 {
		cw.printf("Analytics rows of other clients skipped: %d\n", run.AnalyticsRowsOtherClients)
	}
	cw.printf("\n")

	if rg.config.IncludeRecords {
		records := rg.selectRecords(result)
		cw.printf("=== %s ===\n", recordsTitle(rg.config.Only))
		rg.printRecordList(cw, profile, records)
		cw.printf("\n")
	}

	if rg.config.IncludeStageTimings && len(result.StageTimings) > 0 {
		cw.printf("=== STAGE TIMINGS ===\n")
		for _, s := range result.StageTimings {
			cw.printf("%-14s %8d items  %v\n", s.Stage, s.Processed, s.Duration)
		}
		if run.LoadDuration > 0 {
			cw.printf("%-14s %v\n", "load", run.LoadDuration)
		}
	}

	return cw.err
}

func (rg *ReportGenerator) printRecordList(cw *consoleWriter, profile models.ClientProfile, records []models.ReconciledRecord) {
	if len(records) == 0 {
		cw.printf("No records\n")
		return
	}

	idLabel := profile.Display.IdentifierLabel
	if idLabel == "" {
		idLabel = "Identifier"
	}
	cw.printf("%-20s %14s %14s %14s %9s  %s\n", idLabel, "Source", "Analytics", "Difference", "Pct", "Category")

	for i, rec := range records {
		if rg.config.MaxConsoleRows > 0 && i >= rg.config.MaxConsoleRows {
			cw.printf("... and %d more\n", len(records)-i)
			break
		}

		id := rec.Identifier
		if rec.MatchKind == models.MatchKindFuzzy {
			id = fmt.Sprintf("%s~%s", rec.Identifier, rec.AnalyticsIdentifier)
		}
		cw.printf("%-20s %14s %14s %14s %8s%%  %s\n",
			id,
			rec.SourceAmount.StringFixed(2),
			rec.AnalyticsAmount.StringFixed(2),
			rec.Difference.StringFixed(2),
			rec.DifferencePct.StringFixed(2),
			rec.Label)
	}
}

// jsonReport is the document written by the JSON format
type jsonReport struct {
	RunID         string                      `json:"run_id,omitempty"`
	SourceFile    string                      `json:"source_file,omitempty"`
	AnalyticsFile string                      `json:"analytics_file,omitempty"`
	Columns       *reconciler.ResolvedColumns `json:"columns,omitempty"`
	StartedAt     time.Time                   `json:"started_at"`
	FinishedAt    time.Time                   `json:"finished_at"`
	Summary       reconciler.SummaryExport    `json:"summary"`
	Preparation   reconciler.PreparationStats `json:"preparation"`
	Matching      matcher.MatchSummary        `json:"matching"`
	Selection     string                      `json:"selection"`
	Records       []models.ReconciledRecord   `json:"records,omitempty"`
	StageTimings  []logger.StageStats         `json:"stage_timings,omitempty"`
}

func (rg *ReportGenerator) generateJSONReport(run *reconciler.RunResult, writer io.Writer) error {
	result := run.Result

	report := jsonReport{
		RunID:         run.RunID,
		SourceFile:    run.SourceFile,
		AnalyticsFile: run.AnalyticsFile,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Summary:       result.Export(),
		Preparation:   result.Preparation,
		Matching:      result.Matching,
		Selection:     selectionName(rg.config.Only),
	}
	if run.Columns != (reconciler.ResolvedColumns{}) {
		columns := run.Columns
		report.Columns = &columns
	}
	if report.StartedAt.IsZero() {
		report.StartedAt = result.StartedAt
		report.FinishedAt = result.CompletedAt
	}
	if rg.config.IncludeRecords {
		report.Records = rg.selectRecords(result)
		if report.Records == nil {
			report.Records = []models.ReconciledRecord{}
		}
	}
	if rg.config.IncludeStageTimings {
		report.StageTimings = result.StageTimings
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

// CSVHeaders is the header row of the CSV format
var CSVHeaders = []string{
	"identifier",
	"analytics_identifier",
	"source_amount",
	"analytics_amount",
	"difference",
	"abs_difference",
	"difference_pct",
	"category",
	"label",
	"category_label",
	"match_kind",
	"match_confidence",
}

func (rg *ReportGenerator) generateCSVReport(run *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(CSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	profile := run.Profile
	for _, rec := range rg.selectRecords(run.Result) {
		confidence := ""
		if rec.IsMatched() {
			confidence = fmt.Sprintf("%.2f", rec.MatchConfidence)
		}

		line := []string{
			rec.Identifier,
			rec.AnalyticsIdentifier,
			rec.SourceAmount.StringFixed(2),
			rec.AnalyticsAmount.StringFixed(2),
			rec.Difference.StringFixed(2),
			rec.AbsDifference.StringFixed(2),
			rec.DifferencePct.StringFixed(4),
			string(rec.Category),
			rec.Label,
			profile.CategoryLabel(rec.Category),
			string(rec.MatchKind),
			confidence,
		}
		if err := csvWriter.Write(line); err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.Identifier, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// consoleWriter keeps the first write error so the report body stays readable
type consoleWriter struct {
	w   io.Writer
	err error
}

func (cw *consoleWriter) printf(format string, args ...interface{}) {
	if cw.err != nil {
		return
	}
	_, cw.err = fmt.Fprintf(cw.w, format, args...)
}

func displayName(profile models.ClientProfile) string {
	if profile.Display.SourceName != "" {
		return profile.Display.SourceName
	}
	return profile.Client
}

func money(profile models.ClientProfile, amount decimal.Decimal) string {
	return profile.Display.CurrencySymbol + amount.StringFixed(2)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func recordsTitle(sel Selection) string {
	switch sel {
	case SelectBilling:
		return "BILLING READY"
	case SelectAttention:
		return "REQUIRING ATTENTION"
	default:
		return "RECORDS"
	}
}

func selectionName(sel Selection) string {
	if sel == SelectAll {
		return "all"
	}
	return string(sel)
}
