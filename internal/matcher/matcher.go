package matcher

import (
	"fmt"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// MatchingEngine runs the exact, fuzzy and missing-record stages in order
type MatchingEngine struct {
	Config *MatchingConfig
	logger logger.Logger
}

// MatchResult represents the partition of both sides into pairs and one-sided records
type MatchResult struct {
	Pairs        []models.MatchedPair
	Missing      []models.MissingRecord
	Summary      MatchSummary
	StageTimings []logger.StageStats
}

// MatchSummary provides counts about the matching run
type MatchSummary struct {
	SourceRecords      int
	AnalyticsRecords   int
	ExactMatches       int
	FuzzyMatches       int
	FuzzyComparisons   int
	MissingInSource    int
	MissingInAnalytics int
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// WithLogger sets the logger used by the engine and its stages
func (me *MatchingEngine) WithLogger(log logger.Logger) *MatchingEngine {
	if log != nil {
		me.logger = log.WithComponent("matcher")
	}
	return me
}

// Match partitions two deduplicated record sets. Every identifier of either
// side ends up in exactly one pair or one missing record.
func (me *MatchingEngine) Match(source, analytics []models.AggregatedRecord) (*MatchResult, error) {
	if err := me.Config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", me.Config.String(), err)
	}

	result := &MatchResult{
		Summary: MatchSummary{
			SourceRecords:    len(source),
			AnalyticsRecords: len(analytics),
		},
	}

	exactTimer := logger.StartStage(logger.StageConfig{
		Stage:  "exact_match",
		Total:  int64(len(source)),
		Logger: me.logger,
	})
	exact, err := MatchExact(source, analytics)
	if err != nil {
		return nil, err
	}
	exactTimer.Add(int64(len(source)))
	result.StageTimings = append(result.StageTimings, exactTimer.Complete(logger.Fields{
		"matches":            len(exact.Pairs),
		"residual_source":    len(exact.ResidualSource),
		"residual_analytics": len(exact.ResidualAnalytics),
	}))

	result.Pairs = append(result.Pairs, exact.Pairs...)
	result.Summary.ExactMatches = len(exact.Pairs)

	residualSource := exact.ResidualSource
	residualAnalytics := exact.ResidualAnalytics

	if me.Config.EnableFuzzyMatching && len(residualSource) > 0 && len(residualAnalytics) > 0 {
		fuzzy := NewFuzzyMatcher(me.Config, me.logger).Match(residualSource, residualAnalytics)
		result.Pairs = append(result.Pairs, fuzzy.Pairs...)
		result.Summary.FuzzyMatches = len(fuzzy.Pairs)
		result.Summary.FuzzyComparisons = fuzzy.Comparisons
		result.StageTimings = append(result.StageTimings, fuzzy.Timing)
		residualSource = fuzzy.ResidualSource
		residualAnalytics = fuzzy.ResidualAnalytics
	} else if me.Config.EnableFuzzyMatching {
		me.logger.Debug("Fuzzy matching skipped: one residual side is empty")
	}

	result.Missing = DetectMissing(residualSource, residualAnalytics)
	for _, m := range result.Missing {
		if m.Side == models.CategoryMissingInSource {
			result.Summary.MissingInSource++
		} else {
			result.Summary.MissingInAnalytics++
		}
	}

	if err := VerifyPartition(source, analytics, result); err != nil {
		return nil, err
	}

	me.logger.WithFields(logger.Fields{
		"exact_matches":        result.Summary.ExactMatches,
		"fuzzy_matches":        result.Summary.FuzzyMatches,
		"missing_in_source":    result.Summary.MissingInSource,
		"missing_in_analytics": result.Summary.MissingInAnalytics,
	}).Info("Matching completed")

	return result, nil
}

// VerifyPartition checks that every input identifier appears exactly once in
// the match output, on the side it came from.
func VerifyPartition(source, analytics []models.AggregatedRecord, result *MatchResult) error {
	seenSource := make(map[string]int, len(source))
	seenAnalytics := make(map[string]int, len(analytics))

	for _, p := range result.Pairs {
		seenSource[IndexKey(p.Identifier)]++
		seenAnalytics[IndexKey(p.AnalyticsIdentifier)]++
	}
	for _, m := range result.Missing {
		if m.Side == models.CategoryMissingInAnalytics {
			seenSource[IndexKey(m.Identifier)]++
		} else {
			seenAnalytics[IndexKey(m.Identifier)]++
		}
	}

	check := func(side string, records []models.AggregatedRecord, seen map[string]int) error {
		if len(seen) != len(records) {
			return partitionError(side, fmt.Sprintf("%d identifiers in, %d out", len(records), len(seen)))
		}
		for _, rec := range records {
			if n := seen[IndexKey(rec.Identifier)]; n != 1 {
				return partitionError(side, fmt.Sprintf("identifier %s appears %d times", rec.Identifier, n))
			}
		}
		return nil
	}

	if err := check("source", source, seenSource); err != nil {
		return err
	}
	return check("analytics", analytics, seenAnalytics)
}

func partitionError(side, detail string) error {
	return errors.ReconciliationError(errors.CodeDataInconsistent, "matching partition check", fmt.Errorf("%s", detail)).
		WithContext("side", side)
}
