// Package reconciler implements the reconciliation pipeline between a client's
// point-of-sale export (source) and a BI-tool extract (analytics).
//
// The pipeline is a sequence of pure, in-memory stages:
//
//	Normalize -> Deduplicate (both sides) -> Exact match -> Fuzzy match
//	-> Missing detection -> Differences -> Categorize -> Summarize
//
// Every run is parameterized only by its two datasets and a ClientProfile
// value, so independent runs may execute concurrently without coordination.
//
// Example usage:
//
//	engine := reconciler.NewEngine(nil)
//	result, err := engine.Reconcile(reconciler.Input{
//		Source:    reconciler.DatasetInput{Dataset: src, IdentifierColumn: "pedido_adicional", AmountColumn: "valor"},
//		Analytics: reconciler.DatasetInput{Dataset: bi, IdentifierColumn: "No. Pedido", AmountColumn: "Venta"},
//	}, profile)
package reconciler

import (
	"sort"
	"time"

	"pos-reconciliation-service/internal/matcher"
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// Engine runs the reconciliation pipeline. It holds configuration only; no
// state is carried from one run to the next.
type Engine struct {
	preprocessing *PreprocessingConfig
	matching      *matcher.MatchingConfig
	logger        logger.Logger
}

// EngineConfig configures an Engine. Nil fields take their defaults.
type EngineConfig struct {
	Preprocessing *PreprocessingConfig
	// Matching is the base matching configuration; the fuzzy threshold is
	// always taken from the client profile of the run.
	Matching *matcher.MatchingConfig
	Logger   logger.Logger
}

// DatasetInput names the identifier and amount columns of a loaded dataset
type DatasetInput struct {
	Dataset          *models.Dataset
	IdentifierColumn string
	AmountColumn     string
}

// Input holds both sides of a run
type Input struct {
	Source    DatasetInput
	Analytics DatasetInput
}

// PreparationStats records what normalization and deduplication did to each side
type PreparationStats struct {
	SourceNormalization    NormalizationStats `json:"source_normalization"`
	AnalyticsNormalization NormalizationStats `json:"analytics_normalization"`
	SourceDeduplication    DeduplicationStats `json:"source_deduplication"`
	AnalyticsDeduplication DeduplicationStats `json:"analytics_deduplication"`
}

// NewEngine creates a reconciliation engine
func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}

	engine := &Engine{
		preprocessing: config.Preprocessing,
		matching:      config.Matching,
		logger:        config.Logger,
	}
	if engine.preprocessing == nil {
		engine.preprocessing = DefaultPreprocessingConfig()
	}
	if engine.matching == nil {
		engine.matching = matcher.DefaultMatchingConfig()
	}
	if engine.logger == nil {
		engine.logger = logger.GetGlobalLogger()
	}
	engine.logger = engine.logger.WithComponent("reconciler")

	return engine
}

// Reconcile normalizes both datasets and runs the full pipeline.
func (e *Engine) Reconcile(input Input, profile models.ClientProfile) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if input.Source.Dataset == nil || input.Analytics.Dataset == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "dataset", nil, nil).
			WithSuggestion("load both the source and the analytics dataset before reconciling")
	}

	preprocessor := NewDataPreprocessor(e.preprocessing, e.logger)
	stats := PreparationStats{}

	timer := logger.StartStage(logger.StageConfig{
		Stage:  "normalize",
		Total:  int64(input.Source.Dataset.Len() + input.Analytics.Dataset.Len()),
		Logger: e.logger,
	})

	source, sourceStats, err := preprocessor.Normalize(
		input.Source.Dataset, input.Source.IdentifierColumn, input.Source.AmountColumn, models.OriginSource)
	if err != nil {
		return nil, err
	}
	analytics, analyticsStats, err := preprocessor.Normalize(
		input.Analytics.Dataset, input.Analytics.IdentifierColumn, input.Analytics.AmountColumn, models.OriginAnalytics)
	if err != nil {
		return nil, err
	}
	timer.Add(int64(sourceStats.InputRows + analyticsStats.InputRows))
	normalizeTiming := timer.Complete(nil)

	stats.SourceNormalization = sourceStats
	stats.AnalyticsNormalization = analyticsStats

	result, err := e.run(preprocessor, source, analytics, profile, stats)
	if err != nil {
		return nil, err
	}
	result.StageTimings = append([]logger.StageStats{normalizeTiming}, result.StageTimings...)
	return result, nil
}

// ReconcileRecords runs the pipeline on records that are already normalized
func (e *Engine) ReconcileRecords(source, analytics []models.NormalizedRecord, profile models.ClientProfile) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	stats := PreparationStats{
		SourceNormalization:    NormalizationStats{Dataset: "source", InputRows: len(source), RetainedRows: len(source)},
		AnalyticsNormalization: NormalizationStats{Dataset: "analytics", InputRows: len(analytics), RetainedRows: len(analytics)},
	}

	return e.run(NewDataPreprocessor(e.preprocessing, e.logger), source, analytics, profile, stats)
}

func (e *Engine) run(
	preprocessor *DataPreprocessor,
	source, analytics []models.NormalizedRecord,
	profile models.ClientProfile,
	stats PreparationStats,
) (*Result, error) {

	startedAt := time.Now()

	if len(source) == 0 {
		return nil, errors.EmptyDatasetError("source", stats.SourceNormalization.InputRows)
	}
	if len(analytics) == 0 {
		return nil, errors.EmptyDatasetError("analytics", stats.AnalyticsNormalization.InputRows)
	}

	dedupTimer := logger.StartStage(logger.StageConfig{
		Stage:  "deduplicate",
		Total:  int64(len(source) + len(analytics)),
		Logger: e.logger,
	})
	sourceAgg, sourceDedup := preprocessor.Deduplicate(source)
	analyticsAgg, analyticsDedup := preprocessor.Deduplicate(analytics)
	dedupTimer.Add(int64(len(source) + len(analytics)))
	timings := []logger.StageStats{dedupTimer.Complete(logger.Fields{
		"source_unique":    sourceDedup.UniqueIdentifiers,
		"analytics_unique": analyticsDedup.UniqueIdentifiers,
	})}

	stats.SourceDeduplication = sourceDedup
	stats.AnalyticsDeduplication = analyticsDedup

	matchingConfig := e.matching.Clone()
	matchingConfig.FuzzyThreshold = profile.FuzzyThreshold

	matched, err := matcher.NewMatchingEngine(matchingConfig).WithLogger(e.logger).Match(sourceAgg, analyticsAgg)
	if err != nil {
		return nil, err
	}
	timings = append(timings, matched.StageTimings...)

	categorizeTimer := logger.StartStage(logger.StageConfig{
		Stage:  "categorize",
		Total:  int64(len(matched.Pairs) + len(matched.Missing)),
		Logger: e.logger,
	})
	records := make([]models.ReconciledRecord, 0, len(matched.Pairs)+len(matched.Missing))
	for _, pair := range matched.Pairs {
		records = append(records, BuildMatchedRecord(pair, profile))
		categorizeTimer.Increment()
	}
	for _, missing := range matched.Missing {
		records = append(records, BuildMissingRecord(missing, profile))
		categorizeTimer.Increment()
	}
	sortRecords(records)
	timings = append(timings, categorizeTimer.Complete(nil))

	summary := Summarize(records)

	e.logSummary(profile, summary)

	return &Result{
		Client:       profile.Client,
		Profile:      profile,
		Records:      records,
		Stats:        summary,
		Preparation:  stats,
		Matching:     matched.Summary,
		StageTimings: timings,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
	}, nil
}

// sortRecords orders records by identifier, then category, so output is
// reproducible regardless of the stage that produced each record.
func sortRecords(records []models.ReconciledRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Identifier != records[j].Identifier {
			return records[i].Identifier < records[j].Identifier
		}
		return records[i].Category < records[j].Category
	})
}

func (e *Engine) logSummary(profile models.ClientProfile, stats models.SummaryStats) {
	fields := logger.Fields{
		"client":              profile.Client,
		"total_records":       stats.TotalRecords,
		"reconciliation_rate": stats.ReconciliationRate.StringFixed(2),
		"net_difference":      stats.NetDifference.StringFixed(2),
	}
	for _, c := range models.AllCategories {
		fields[profile.Tag(c)] = stats.Count(c)
	}
	e.logger.WithFields(fields).Info("Reconciliation completed")
}

// Reconcile runs the pipeline with a default engine
func Reconcile(input Input, profile models.ClientProfile) (*Result, error) {
	return NewEngine(nil).Reconcile(input, profile)
}
