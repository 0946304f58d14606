package reconciler

import (
	"time"

	"pos-reconciliation-service/internal/matcher"
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/logger"
)

// Result is the immutable outcome of one reconciliation run
type Result struct {
	Client       string                    `json:"client"`
	Profile      models.ClientProfile      `json:"profile"`
	Records      []models.ReconciledRecord `json:"records"`
	Stats        models.SummaryStats       `json:"stats"`
	Preparation  PreparationStats          `json:"preparation"`
	Matching     matcher.MatchSummary      `json:"matching"`
	StageTimings []logger.StageStats       `json:"stage_timings"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  time.Time                 `json:"completed_at"`
}

// ByCategory returns the records of one category
func (r *Result) ByCategory(category models.Category) []models.ReconciledRecord {
	return r.filter(func(c models.Category) bool { return c == category })
}

// BillingReady returns records that can be billed as-is: exact or within tolerance
func (r *Result) BillingReady() []models.ReconciledRecord {
	return r.filter(models.Category.IsReconciled)
}

// RequiringAttention returns major differences and records missing on either side
func (r *Result) RequiringAttention() []models.ReconciledRecord {
	return r.filter(func(c models.Category) bool {
		return c == models.CategoryMajorDifference || c.IsMissing()
	})
}

func (r *Result) filter(keep func(models.Category) bool) []models.ReconciledRecord {
	var out []models.ReconciledRecord
	for _, rec := range r.Records {
		if keep(rec.Category) {
			out = append(out, rec)
		}
	}
	return out
}

// SummaryExport is the summary block handed to reports
type SummaryExport struct {
	Client              string              `json:"client"`
	GeneratedAt         time.Time           `json:"generated_at"`
	Stats               models.SummaryStats `json:"stats"`
	TolerancePercentage string              `json:"tolerance_percentage"`
	ToleranceAbsolute   string              `json:"tolerance_absolute"`
	FuzzyThreshold      float64             `json:"fuzzy_threshold"`
	MinorMultiplier     string              `json:"minor_multiplier"`
	CategoryLabels      map[string]string   `json:"category_labels"`
	BillingReady        int                 `json:"billing_ready"`
	RequiringAttention  int                 `json:"requiring_attention"`
}

// Export returns the summary, a snapshot of the profile thresholds and the
// completion time of the run
func (r *Result) Export() SummaryExport {
	labels := make(map[string]string, len(models.AllCategories))
	for _, c := range models.AllCategories {
		labels[r.Profile.Tag(c)] = r.Profile.CategoryLabel(c)
	}

	return SummaryExport{
		Client:              r.Client,
		GeneratedAt:         r.CompletedAt,
		Stats:               r.Stats,
		TolerancePercentage: r.Profile.TolerancePercentage.String(),
		ToleranceAbsolute:   r.Profile.ToleranceAbsolute.StringFixed(2),
		FuzzyThreshold:      r.Profile.FuzzyThreshold,
		MinorMultiplier:     r.Profile.EffectiveMinorMultiplier().String(),
		CategoryLabels:      labels,
		BillingReady:        len(r.BillingReady()),
		RequiringAttention:  len(r.RequiringAttention()),
	}
}

// Duration returns the wall time of the run
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
