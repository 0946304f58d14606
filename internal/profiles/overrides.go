package profiles

import (
	"github.com/shopspring/decimal"

	"pos-reconciliation-service/internal/models"
)

// Overrides replaces profile thresholds for a single run. Nil fields keep the
// profile value.
type Overrides struct {
	TolerancePercentage *decimal.Decimal
	ToleranceAbsolute   *decimal.Decimal
	FuzzyThreshold      *float64
	MinorMultiplier     *decimal.Decimal
}

// IsZero reports whether no override is set
func (o Overrides) IsZero() bool {
	return o.TolerancePercentage == nil && o.ToleranceAbsolute == nil &&
		o.FuzzyThreshold == nil && o.MinorMultiplier == nil
}

// Apply returns a copy of profile with the overrides applied and validated
func (o Overrides) Apply(profile models.ClientProfile) (models.ClientProfile, error) {
	profile = copyProfile(profile)

	if o.TolerancePercentage != nil {
		profile.TolerancePercentage = *o.TolerancePercentage
	}
	if o.ToleranceAbsolute != nil {
		profile.ToleranceAbsolute = *o.ToleranceAbsolute
	}
	if o.FuzzyThreshold != nil {
		profile.FuzzyThreshold = *o.FuzzyThreshold
	}
	if o.MinorMultiplier != nil {
		profile.MinorMultiplier = *o.MinorMultiplier
	}

	if err := profile.Validate(); err != nil {
		return models.ClientProfile{}, err
	}
	return profile, nil
}
