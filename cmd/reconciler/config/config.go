package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/matcher"
	"pos-reconciliation-service/internal/parsers"
	"pos-reconciliation-service/internal/profiles"
	"pos-reconciliation-service/internal/reconciler"
	"pos-reconciliation-service/internal/reporter"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// DatasetOptions holds the per-file ingestion flags
type DatasetOptions struct {
	Format             string
	HeaderRow          int
	SkipRows           int
	Sheet              string
	Delimiter          string
	TotalRowIndicators []string
	FilterColumn       string
	FilterValue        string
}

// CreateDatasetConfig creates the loader configuration of one input file
func CreateDatasetConfig(name string, opts DatasetOptions) (*parsers.DatasetConfig, error) {
	config := parsers.DefaultDatasetConfig()
	config.Name = name
	config.HeaderRow = opts.HeaderRow
	config.SkipRows = opts.SkipRows
	config.Sheet = strings.TrimSpace(opts.Sheet)

	format, err := parsers.ParseFormat(opts.Format)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, name+"-format", opts.Format, err)
	}
	config.Format = format

	if opts.Delimiter != "" {
		delimiter, err := parseDelimiter(opts.Delimiter)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, name+"-delimiter", opts.Delimiter, err)
		}
		config.Delimiter = delimiter
	}

	if len(opts.TotalRowIndicators) > 0 {
		config.TotalRowIndicators = append([]string(nil), opts.TotalRowIndicators...)
	}

	if opts.FilterColumn != "" {
		config.RowFilter = parsers.RowFilter{Column: opts.FilterColumn, Value: opts.FilterValue}
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, name, config.Name, err)
	}

	return config, nil
}

// parseDelimiter accepts a single character or the names "tab" and "semicolon"
func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "comma":
		return ',', nil
	case "pipe":
		return '|', nil
	}

	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// CreateOverrides parses the per-run profile override flags. Empty values are
// left unset so the profile keeps its own setting.
func CreateOverrides(tolerancePct, toleranceAbs, fuzzyThreshold, minorMultiplier string) (profiles.Overrides, error) {
	var overrides profiles.Overrides

	parse := func(setting, value string) (*decimal.Decimal, error) {
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, setting, value, err)
		}
		return &d, nil
	}

	var err error
	if overrides.TolerancePercentage, err = parse("tolerance-pct", tolerancePct); err != nil {
		return overrides, err
	}
	if overrides.ToleranceAbsolute, err = parse("tolerance-abs", toleranceAbs); err != nil {
		return overrides, err
	}
	if overrides.MinorMultiplier, err = parse("minor-multiplier", minorMultiplier); err != nil {
		return overrides, err
	}

	threshold, err := parse("fuzzy-threshold", fuzzyThreshold)
	if err != nil {
		return overrides, err
	}
	if threshold != nil {
		f := threshold.InexactFloat64()
		overrides.FuzzyThreshold = &f
	}

	return overrides, nil
}

// CreateProfileStore creates a profile store seeded with the built-in profiles
// and the settings_<client>.yaml files of dir, if any
func CreateProfileStore(dir string, log logger.Logger) (*profiles.Store, error) {
	store := profiles.NewStore(log)
	if strings.TrimSpace(dir) == "" {
		return store, nil
	}

	if _, err := store.LoadDir(dir); err != nil {
		return nil, err
	}
	return store, nil
}

// CreateMatchingConfig creates the base matching configuration. The fuzzy
// threshold itself always comes from the client profile.
func CreateMatchingConfig(disableFuzzy bool) *matcher.MatchingConfig {
	if disableFuzzy {
		return matcher.StrictMatchingConfig()
	}
	return matcher.DefaultMatchingConfig()
}

// CreateEngine creates the reconciliation engine used by the CLI
func CreateEngine(disableFuzzy bool, log logger.Logger) *reconciler.Engine {
	return reconciler.NewEngine(&reconciler.EngineConfig{
		Preprocessing: reconciler.DefaultPreprocessingConfig(),
		Matching:      CreateMatchingConfig(disableFuzzy),
		Logger:        log,
	})
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format, only string, showTimings bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	selection, err := reporter.ParseSelection(only)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "only", only, err)
	}
	config.Only = selection
	config.IncludeStageTimings = showTimings

	switch format {
	case "console", "":
		config.Format = reporter.FormatConsole
		if selection != reporter.SelectAll {
			config.MaxConsoleRows = 0
		}
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format,
			fmt.Errorf("valid formats: console, json, csv"))
	}

	return config, nil
}

// CreateLoggerConfig creates the logger configuration. Verbose forces debug level.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()

	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", fmt.Sprintf("%s/%s", level, format), err)
	}
	return config, nil
}
