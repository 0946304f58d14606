// Package matcher pairs deduplicated source records with analytics records.
//
// Matching runs in three stages over per-side collections in which every
// identifier is unique:
//  1. Exact matching through a hash index on the normalized identifier
//  2. Fuzzy matching of the residue, scoring identifier strings with the best
//     of a character ratio, a partial (substring) ratio and a token-sort ratio
//  3. Missing-record detection, which relabels whatever is still unmatched
//
// Fuzzy assignment is greedy and one-to-one: source records are visited in
// ascending identifier order and each takes the best-scoring analytics record
// still in the candidate pool. A candidate that has been assigned is removed
// from the pool and can never be reused.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.FuzzyThreshold = profile.FuzzyThreshold
//
//	engine := matcher.NewMatchingEngine(config)
//	result, err := engine.Match(sourceRecords, analyticsRecords)
package matcher

import (
	"fmt"

	"pos-reconciliation-service/internal/models"
)

// MatchingConfig holds the parameters of the exact/fuzzy matching stages.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): fuzzy fallback at the usual client threshold
//   - StrictMatchingConfig(): exact identifiers only
//   - RelaxedMatchingConfig(): lower threshold for exploratory runs
type MatchingConfig struct {
	// EnableFuzzyMatching runs the fuzzy stage on the exact-match residue
	EnableFuzzyMatching bool `json:"enable_fuzzy_matching"`

	// FuzzyThreshold is the minimum composite similarity (0 to 100) for a fuzzy pair
	FuzzyThreshold float64 `json:"fuzzy_threshold"`

	// FuzzyComparisonWarnLimit is the residual_source x residual_analytics size
	// above which the fuzzy stage logs a scalability warning. Zero disables it.
	FuzzyComparisonWarnLimit int `json:"fuzzy_comparison_warn_limit"`

	// Scorers selects the similarity functions combined by the fuzzy stage
	Scorers ScorerSet `json:"scorers"`
}

// ScorerSet toggles the individual similarity measures
type ScorerSet struct {
	Ratio          bool `json:"ratio"`
	PartialRatio   bool `json:"partial_ratio"`
	TokenSortRatio bool `json:"token_sort_ratio"`
}

// AllScorers enables every similarity measure
func AllScorers() ScorerSet {
	return ScorerSet{Ratio: true, PartialRatio: true, TokenSortRatio: true}
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		EnableFuzzyMatching:      true,
		FuzzyThreshold:           85,
		FuzzyComparisonWarnLimit: 250000,
		Scorers:                  AllScorers(),
	}
}

// StrictMatchingConfig returns a configuration that only pairs identical identifiers
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		EnableFuzzyMatching:      false,
		FuzzyThreshold:           100,
		FuzzyComparisonWarnLimit: 250000,
		Scorers:                  AllScorers(),
	}
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		EnableFuzzyMatching:      true,
		FuzzyThreshold:           75,
		FuzzyComparisonWarnLimit: 1000000,
		Scorers:                  AllScorers(),
	}
}

// ConfigForProfile derives the matching configuration of a client profile
func ConfigForProfile(profile models.ClientProfile) *MatchingConfig {
	config := DefaultMatchingConfig()
	config.FuzzyThreshold = profile.FuzzyThreshold
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.FuzzyThreshold < 0.0 || mc.FuzzyThreshold > 100.0 {
		return fmt.Errorf("fuzzy threshold must be between 0 and 100: %f", mc.FuzzyThreshold)
	}

	if mc.FuzzyComparisonWarnLimit < 0 {
		return fmt.Errorf("fuzzy comparison warn limit cannot be negative: %d", mc.FuzzyComparisonWarnLimit)
	}

	if mc.EnableFuzzyMatching && !mc.Scorers.Ratio && !mc.Scorers.PartialRatio && !mc.Scorers.TokenSortRatio {
		return fmt.Errorf("fuzzy matching is enabled but no scorer is selected")
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Fuzzy: %t, Threshold: %.1f, WarnLimit: %d}",
		mc.EnableFuzzyMatching, mc.FuzzyThreshold, mc.FuzzyComparisonWarnLimit)
}
