package matcher

import (
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/logger"
)

// CandidatePool is the removable working set of analytics records offered to
// the fuzzy stage. Records are kept in identifier order; a removed record is
// never offered again.
type CandidatePool struct {
	records   []models.AggregatedRecord
	taken     []bool
	remaining int
}

// NewCandidatePool builds a pool from the given records
func NewCandidatePool(records []models.AggregatedRecord) *CandidatePool {
	sorted := SortByIdentifier(records)
	return &CandidatePool{
		records:   sorted,
		taken:     make([]bool, len(sorted)),
		remaining: len(sorted),
	}
}

// Len returns the pool size including removed records
func (p *CandidatePool) Len() int {
	return len(p.records)
}

// Remaining returns how many records are still available
func (p *CandidatePool) Remaining() int {
	return p.remaining
}

// Available reports whether position i can still be assigned
func (p *CandidatePool) Available(i int) bool {
	return i >= 0 && i < len(p.records) && !p.taken[i]
}

// Get returns the record at position i
func (p *CandidatePool) Get(i int) models.AggregatedRecord {
	return p.records[i]
}

// Remove takes position i out of the pool. It returns false if the position
// was already removed.
func (p *CandidatePool) Remove(i int) bool {
	if !p.Available(i) {
		return false
	}
	p.taken[i] = true
	p.remaining--
	return true
}

// Residual returns the records never removed, in identifier order
func (p *CandidatePool) Residual() []models.AggregatedRecord {
	var residual []models.AggregatedRecord
	for i, rec := range p.records {
		if !p.taken[i] {
			residual = append(residual, rec)
		}
	}
	return residual
}

// FuzzyMatcher assigns residual source records to residual analytics records by
// identifier similarity
type FuzzyMatcher struct {
	config *MatchingConfig
	score  Scorer
	logger logger.Logger
}

// FuzzyResult extends StageResult with the work performed
type FuzzyResult struct {
	StageResult
	Comparisons int
	Timing      logger.StageStats
}

// NewFuzzyMatcher creates a fuzzy matcher for the configuration
func NewFuzzyMatcher(config *MatchingConfig, log logger.Logger) *FuzzyMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &FuzzyMatcher{
		config: config,
		score:  CompositeScorer(config.Scorers),
		logger: log.WithComponent("fuzzy_matcher"),
	}
}

// Match runs the greedy one-to-one assignment. Source records are processed in
// ascending identifier order; for each, the highest-scoring available candidate
// at or above the threshold is taken. Equal scores keep the candidate with the
// lower identifier.
func (fm *FuzzyMatcher) Match(source, analytics []models.AggregatedRecord) *FuzzyResult {
	result := &FuzzyResult{}
	ordered := SortByIdentifier(source)
	pool := NewCandidatePool(analytics)

	workload := len(ordered) * pool.Len()
	if fm.config.FuzzyComparisonWarnLimit > 0 && workload > fm.config.FuzzyComparisonWarnLimit {
		fm.logger.WithFields(logger.Fields{
			"residual_source":    len(ordered),
			"residual_analytics": pool.Len(),
			"max_comparisons":    workload,
			"warn_limit":         fm.config.FuzzyComparisonWarnLimit,
		}).Warn("Fuzzy matching residue is large; exact-match rate may have regressed upstream")
	}

	timer := logger.StartStage(logger.StageConfig{
		Stage:  "fuzzy_match",
		Total:  int64(len(ordered)),
		Logger: fm.logger,
	})

	for _, src := range ordered {
		best := -1
		bestScore := -1.0

		for i := 0; i < pool.Len() && pool.Remaining() > 0; i++ {
			if !pool.Available(i) {
				continue
			}
			result.Comparisons++
			score := fm.score(src.Identifier, pool.Get(i).Identifier)
			if score >= fm.config.FuzzyThreshold && score > bestScore {
				best = i
				bestScore = score
			}
		}

		timer.Increment()

		if best < 0 {
			result.ResidualSource = append(result.ResidualSource, src)
			continue
		}

		candidate := pool.Get(best)
		pool.Remove(best)
		result.Pairs = append(result.Pairs, models.MatchedPair{
			Identifier:          src.Identifier,
			AnalyticsIdentifier: candidate.Identifier,
			SourceAmount:        src.Amount,
			AnalyticsAmount:     candidate.Amount,
			Kind:                models.MatchKindFuzzy,
			Confidence:          roundScore(bestScore),
		})

		fm.logger.WithFields(logger.Fields{
			"source_identifier":    src.Identifier,
			"analytics_identifier": candidate.Identifier,
			"score":                roundScore(bestScore),
		}).Debug("Fuzzy match assigned")
	}

	result.ResidualAnalytics = pool.Residual()

	result.Timing = timer.Complete(logger.Fields{
		"comparisons": result.Comparisons,
		"matches":     len(result.Pairs),
	})

	return result
}
