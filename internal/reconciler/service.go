package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/internal/parsers"
	"pos-reconciliation-service/internal/profiles"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// ReconciliationService runs a reconciliation from files: it loads both
// exports, resolves their columns and hands them to the Engine
type ReconciliationService struct {
	loader   DatasetLoader
	profiles ProfileProvider
	engine   *Engine
	logger   logger.Logger
}

// RunRequest represents a request for one reconciliation run
type RunRequest struct {
	Client        string
	SourceFile    string
	AnalyticsFile string

	SourceConfig    *parsers.DatasetConfig
	AnalyticsConfig *parsers.DatasetConfig

	// Explicit column names win over the profile's candidate lists
	SourceIDColumn        string
	SourceAmountColumn    string
	AnalyticsIDColumn     string
	AnalyticsAmountColumn string

	// FilterAnalyticsByClient keeps only analytics rows whose client column
	// (Fields.AnalyticsClientColumn) equals the client, when that column exists
	FilterAnalyticsByClient bool

	Overrides profiles.Overrides
}

// Validate validates the run request
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.Client) == "" {
		return errors.ValidationError(errors.CodeMissingField, "client", r.Client, nil)
	}
	if strings.TrimSpace(r.SourceFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "source_file", r.SourceFile, nil)
	}
	if strings.TrimSpace(r.AnalyticsFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "analytics_file", r.AnalyticsFile, nil)
	}
	return nil
}

// ResolvedColumns records which header was used for each role
type ResolvedColumns struct {
	SourceID        string `json:"source_id"`
	SourceAmount    string `json:"source_amount"`
	AnalyticsID     string `json:"analytics_id"`
	AnalyticsAmount string `json:"analytics_amount"`
	AnalyticsClient string `json:"analytics_client,omitempty"`
}

// RunResult is a Result plus the provenance of the run
type RunResult struct {
	*Result

	RunID         string          `json:"run_id"`
	SourceFile    string          `json:"source_file"`
	AnalyticsFile string          `json:"analytics_file"`
	Columns       ResolvedColumns `json:"columns"`

	SourceRows                int `json:"source_rows"`
	AnalyticsRows             int `json:"analytics_rows"`
	AnalyticsRowsOtherClients int `json:"analytics_rows_other_clients"`

	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	LoadDuration      time.Duration `json:"load_duration"`
	ReconcileDuration time.Duration `json:"reconcile_duration"`
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	loader DatasetLoader,
	provider ProfileProvider,
	engine *Engine,
	log logger.Logger,
) (*ReconciliationService, error) {

	if loader == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "service setup", fmt.Errorf("dataset loader is required"))
	}
	if provider == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "service setup", fmt.Errorf("profile provider is required"))
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if engine == nil {
		engine = NewEngine(&EngineConfig{Logger: log})
	}

	return &ReconciliationService{
		loader:   loader,
		profiles: provider,
		engine:   engine,
		logger:   log.WithComponent("service"),
	}, nil
}

// Run performs the complete reconciliation of two files. Cancellation of ctx is
// honored between stages.
func (rs *ReconciliationService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &RunResult{
		RunID:         uuid.New().String(),
		SourceFile:    req.SourceFile,
		AnalyticsFile: req.AnalyticsFile,
		StartedAt:     time.Now(),
	}
	log := logger.ForRun(rs.logger, run.RunID, profiles.NormalizeClient(req.Client))
	log.WithFields(logger.Fields{
		"source_file":    req.SourceFile,
		"analytics_file": req.AnalyticsFile,
	}).Info("Reconciliation run started")

	profile, err := req.Overrides.Apply(rs.profiles.Get(req.Client))
	if err != nil {
		return nil, err
	}
	log.WithField("profile", profile.String()).Debug("Profile resolved")

	if err := checkCancelled(ctx, "load source"); err != nil {
		return nil, err
	}
	source, err := rs.loader.Load(ctx, req.SourceFile, withName(req.SourceConfig, "source"))
	if err != nil {
		return nil, err
	}

	if err := checkCancelled(ctx, "load analytics"); err != nil {
		return nil, err
	}
	analytics, err := rs.loader.Load(ctx, req.AnalyticsFile, withName(req.AnalyticsConfig, "analytics"))
	if err != nil {
		return nil, err
	}
	run.LoadDuration = time.Since(run.StartedAt)

	input, columns, err := resolveInput(source, analytics, req, profile)
	if err != nil {
		return nil, err
	}
	run.Columns = columns

	if req.FilterAnalyticsByClient && columns.AnalyticsClient != "" {
		filtered, removed := filterByClient(analytics, columns.AnalyticsClient, profile.Client)
		input.Analytics.Dataset = filtered
		run.AnalyticsRowsOtherClients = removed
		log.WithFields(logger.Fields{
			"column":  columns.AnalyticsClient,
			"kept":    filtered.Len(),
			"removed": removed,
		}).Info("Analytics rows filtered by client")
	}
	run.SourceRows = input.Source.Dataset.Len()
	run.AnalyticsRows = input.Analytics.Dataset.Len()

	if err := checkCancelled(ctx, "reconcile"); err != nil {
		return nil, err
	}
	reconcileStart := time.Now()
	result, err := rs.engine.Reconcile(input, profile)
	if err != nil {
		return nil, err
	}
	run.Result = result
	run.ReconcileDuration = time.Since(reconcileStart)
	run.FinishedAt = time.Now()

	log.WithFields(logger.Fields{
		"records":             result.Stats.TotalRecords,
		"reconciliation_rate": result.Stats.ReconciliationRate.StringFixed(2),
		"load_duration":       run.LoadDuration,
		"reconcile_duration":  run.ReconcileDuration,
	}).Info("Reconciliation run finished")

	return run, nil
}

// resolveInput maps the profile's field conventions onto the actual headers
func resolveInput(source, analytics *models.Dataset, req RunRequest, profile models.ClientProfile) (Input, ResolvedColumns, error) {
	var columns ResolvedColumns
	var err error

	if columns.SourceID, err = parsers.ResolveFirst(source, req.SourceIDColumn, profile.Fields.SourceID); err != nil {
		return Input{}, columns, err
	}
	if columns.SourceAmount, err = parsers.ResolveFirst(source, req.SourceAmountColumn, profile.Fields.SourceAmount); err != nil {
		return Input{}, columns, err
	}
	if columns.AnalyticsID, err = parsers.ResolveFirst(analytics, req.AnalyticsIDColumn, profile.Fields.AnalyticsID); err != nil {
		return Input{}, columns, err
	}
	if columns.AnalyticsAmount, err = parsers.ResolveFirst(analytics, req.AnalyticsAmountColumn, profile.Fields.AnalyticsAmount); err != nil {
		return Input{}, columns, err
	}

	// The client column is optional: single-client extracts do not carry it.
	if profile.Fields.AnalyticsClientColumn != "" {
		if col, err := parsers.ResolveColumn(analytics, profile.Fields.AnalyticsClientColumn); err == nil {
			columns.AnalyticsClient = col
		}
	}

	return Input{
		Source: DatasetInput{
			Dataset:          source,
			IdentifierColumn: columns.SourceID,
			AmountColumn:     columns.SourceAmount,
		},
		Analytics: DatasetInput{
			Dataset:          analytics,
			IdentifierColumn: columns.AnalyticsID,
			AmountColumn:     columns.AnalyticsAmount,
		},
	}, columns, nil
}

// filterByClient returns a copy of ds holding only the rows of one client
func filterByClient(ds *models.Dataset, column, client string) (*models.Dataset, int) {
	filter := parsers.RowFilter{Column: column, Value: client}

	out := models.NewDataset(ds.Name, ds.Columns)
	out.Path = ds.Path
	out.SkippedRows = ds.SkippedRows

	removed := 0
	for _, row := range ds.Rows {
		if filter.Matches(row[column]) {
			out.AddRow(row)
		} else {
			removed++
		}
	}
	out.SkippedRows += removed
	return out, removed
}

// withName returns a copy of config labelled for logs and errors
func withName(config *parsers.DatasetConfig, name string) *parsers.DatasetConfig {
	var c parsers.DatasetConfig
	if config != nil {
		c = *config
	} else {
		c = *parsers.DefaultDatasetConfig()
	}
	if c.Name == "" {
		c.Name = name
	}
	return &c
}

func checkCancelled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.ReconciliationError(errors.CodeCancelled, stage, err)
	}
	return nil
}
