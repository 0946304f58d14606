package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pos-reconciliation-service/cmd/reconciler/config"
	"pos-reconciliation-service/internal/parsers"
	"pos-reconciliation-service/internal/profiles"
	"pos-reconciliation-service/internal/reconciler"
	"pos-reconciliation-service/internal/reporter"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	client        string
	sourceFile    string
	analyticsFile string

	sourceIDColumn        string
	sourceAmountColumn    string
	analyticsIDColumn     string
	analyticsAmountColumn string

	outputFormat string
	outputFile   string
	only         string
	showTimings  bool

	tolerancePct    string
	toleranceAbs    string
	fuzzyThreshold  string
	minorMultiplier string
	noFuzzy         bool
	filterClient    bool
	requireProfile  bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a client's POS ledger with the analytics export",
	Long: `Reconcile pairs every record of the client's source ledger with the
analytics export, first by exact identifier and then by fuzzy identifier
similarity, and classifies the amount difference of each pair as EXACT_MATCH,
WITHIN_TOLERANCE, MINOR_DIFFERENCE or MAJOR_DIFFERENCE. Unpaired records are
reported as MISSING_IN_ANALYTICS or MISSING_IN_SOURCE.

Both files may be CSV, XLSX or XLS. Thresholds come from the client profile
(built-in, or settings_<client>.yaml in --profiles-dir) and can be overridden
per run.

Examples:
  # Basic reconciliation
  reconciler reconcile --client OXXO --source-file ventas.xlsx --analytics-file analytics.csv

  # Only the records that need a human, as CSV
  reconciler reconcile -c KIOSKO -s tickets.xls -a analytics.xlsx \
    --only attention --output-format csv --output-file attention.csv

  # Header on the third row and a tighter tolerance
  reconciler reconcile -c OXXO -s ventas.xlsx -a analytics.csv \
    --source-header-row 2 --tolerance-pct 2.5

  # Exact identifiers only
  reconciler reconcile -c OXXO -s ventas.csv -a analytics.csv --no-fuzzy`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

// per-side ingestion flags are registered as <side>-<name>
var datasetFlagNames = []string{"format", "header-row", "skip-rows", "sheet", "delimiter"}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&client, "client", "c", "", "client name, e.g. OXXO or KIOSKO (required)")
	reconcileCmd.Flags().StringVarP(&sourceFile, "source-file", "s", "", "path to the client's POS export (required)")
	reconcileCmd.Flags().StringVarP(&analyticsFile, "analytics-file", "a", "", "path to the analytics export (required)")

	// Column flags
	reconcileCmd.Flags().StringVar(&sourceIDColumn, "source-id-column", "", "source identifier column (default: from profile)")
	reconcileCmd.Flags().StringVar(&sourceAmountColumn, "source-amount-column", "", "source amount column (default: from profile)")
	reconcileCmd.Flags().StringVar(&analyticsIDColumn, "analytics-id-column", "", "analytics identifier column (default: from profile)")
	reconcileCmd.Flags().StringVar(&analyticsAmountColumn, "analytics-amount-column", "", "analytics amount column (default: from profile)")

	// Ingestion flags
	for _, side := range []string{"source", "analytics"} {
		reconcileCmd.Flags().String(side+"-format", "", fmt.Sprintf("%s file format: csv, xlsx, xls (default: from extension)", side))
		reconcileCmd.Flags().Int(side+"-header-row", 0, fmt.Sprintf("0-based row holding the %s column names", side))
		reconcileCmd.Flags().Int(side+"-skip-rows", 0, fmt.Sprintf("rows to drop after the %s header", side))
		reconcileCmd.Flags().String(side+"-sheet", "", fmt.Sprintf("%s worksheet name (default: first sheet)", side))
		reconcileCmd.Flags().String(side+"-delimiter", "", fmt.Sprintf("%s CSV delimiter: a character, tab or semicolon", side))
	}

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&only, "only", "", "restrict records to: billing, attention (default: all)")
	reconcileCmd.Flags().BoolVar(&showTimings, "timings", false, "include per-stage timings in the report")

	// Profile override flags
	reconcileCmd.Flags().StringVar(&tolerancePct, "tolerance-pct", "", "override the percentage tolerance")
	reconcileCmd.Flags().StringVar(&toleranceAbs, "tolerance-abs", "", "override the absolute tolerance")
	reconcileCmd.Flags().StringVar(&fuzzyThreshold, "fuzzy-threshold", "", "override the fuzzy similarity threshold (0-100)")
	reconcileCmd.Flags().StringVar(&minorMultiplier, "minor-multiplier", "", "override the minor difference multiplier")
	reconcileCmd.Flags().BoolVar(&noFuzzy, "no-fuzzy", false, "disable fuzzy identifier matching")
	reconcileCmd.Flags().BoolVar(&filterClient, "filter-client", true, "drop analytics rows of other clients when the export has a client column")
	reconcileCmd.Flags().BoolVar(&requireProfile, "require-profile", false, "fail when the client has no built-in or configured profile")

	// Bind flags to viper
	for _, name := range []string{
		"client", "source-file", "analytics-file",
		"source-id-column", "source-amount-column", "analytics-id-column", "analytics-amount-column",
		"output-format", "output-file", "only", "timings",
		"tolerance-pct", "tolerance-abs", "fuzzy-threshold", "minor-multiplier",
		"no-fuzzy", "filter-client", "require-profile",
	} {
		viper.BindPFlag(name, reconcileCmd.Flags().Lookup(name))
	}
	for _, side := range []string{"source", "analytics"} {
		for _, name := range datasetFlagNames {
			viper.BindPFlag(side+"-"+name, reconcileCmd.Flags().Lookup(side+"-"+name))
		}
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	client = viper.GetString("client")
	sourceFile = viper.GetString("source-file")
	analyticsFile = viper.GetString("analytics-file")
	sourceIDColumn = viper.GetString("source-id-column")
	sourceAmountColumn = viper.GetString("source-amount-column")
	analyticsIDColumn = viper.GetString("analytics-id-column")
	analyticsAmountColumn = viper.GetString("analytics-amount-column")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	only = viper.GetString("only")
	showTimings = viper.GetBool("timings")
	tolerancePct = viper.GetString("tolerance-pct")
	toleranceAbs = viper.GetString("tolerance-abs")
	fuzzyThreshold = viper.GetString("fuzzy-threshold")
	minorMultiplier = viper.GetString("minor-multiplier")
	noFuzzy = viper.GetBool("no-fuzzy")
	filterClient = viper.GetBool("filter-client")
	requireProfile = viper.GetBool("require-profile")

	// Validate required flags
	if strings.TrimSpace(client) == "" {
		return errors.ValidationError(errors.CodeMissingField, "client", client, nil).
			WithSuggestion("pass --client, e.g. --client OXXO")
	}
	if sourceFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "source-file", sourceFile, nil).
			WithSuggestion("pass --source-file with the client's POS export")
	}
	if analyticsFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "analytics-file", analyticsFile, nil).
			WithSuggestion("pass --analytics-file with the analytics export")
	}

	// Validate file existence
	if err := validateFileExists(sourceFile, "source file"); err != nil {
		return err
	}
	if err := validateFileExists(analyticsFile, "analytics file"); err != nil {
		return err
	}

	// Validate output settings
	if _, err := config.CreateReportConfig(outputFormat, only, showTimings); err != nil {
		return err
	}

	// Validate overrides
	if _, err := config.CreateOverrides(tolerancePct, toleranceAbs, fuzzyThreshold, minorMultiplier); err != nil {
		return err
	}

	// Validate ingestion settings
	for _, side := range []string{"source", "analytics"} {
		if _, err := config.CreateDatasetConfig(side, datasetOptions(side)); err != nil {
			return err
		}
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("create the output directory first")
			}
		}
	}

	return nil
}

func datasetOptions(side string) config.DatasetOptions {
	return config.DatasetOptions{
		Format:    viper.GetString(side + "-format"),
		HeaderRow: viper.GetInt(side + "-header-row"),
		SkipRows:  viper.GetInt(side + "-skip-rows"),
		Sheet:     viper.GetString(side + "-sheet"),
		Delimiter: viper.GetString(side + "-delimiter"),
	}
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, filePath, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedFormat, filePath, fmt.Errorf("%s is a directory, expected a file", description)).
			WithContext("input", description)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}
	file.Close()

	return nil
}

// buildRunRequest turns the validated flags into a service request
func buildRunRequest() (reconciler.RunRequest, error) {
	sourceConfig, err := config.CreateDatasetConfig("source", datasetOptions("source"))
	if err != nil {
		return reconciler.RunRequest{}, err
	}
	analyticsConfig, err := config.CreateDatasetConfig("analytics", datasetOptions("analytics"))
	if err != nil {
		return reconciler.RunRequest{}, err
	}

	overrides, err := config.CreateOverrides(tolerancePct, toleranceAbs, fuzzyThreshold, minorMultiplier)
	if err != nil {
		return reconciler.RunRequest{}, err
	}

	return reconciler.RunRequest{
		Client:                  client,
		SourceFile:              sourceFile,
		AnalyticsFile:           analyticsFile,
		SourceConfig:            sourceConfig,
		AnalyticsConfig:         analyticsConfig,
		SourceIDColumn:          sourceIDColumn,
		SourceAmountColumn:      sourceAmountColumn,
		AnalyticsIDColumn:       analyticsIDColumn,
		AnalyticsAmountColumn:   analyticsAmountColumn,
		FilterAnalyticsByClient: filterClient,
		Overrides:               overrides,
	}, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	stderr := cmd.ErrOrStderr()

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "Starting reconciliation...\n")
		fmt.Fprintf(stderr, "Client: %s\n", profiles.NormalizeClient(client))
		fmt.Fprintf(stderr, "Source file: %s\n", sourceFile)
		fmt.Fprintf(stderr, "Analytics file: %s\n", analyticsFile)
		fmt.Fprintf(stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(stderr, "Output file: %s\n", outputFile)
		}
	}

	store, err := config.CreateProfileStore(viper.GetString("profiles-dir"), log)
	if err != nil {
		return err
	}
	if requireProfile {
		if _, ok := store.Lookup(client); !ok {
			return errors.ConfigurationError(errors.CodeUnknownProfile, "client", profiles.NormalizeClient(client), nil)
		}
	}

	request, err := buildRunRequest()
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(
		parsers.NewLoader(log),
		store,
		config.CreateEngine(noFuzzy, log),
		log,
	)
	if err != nil {
		return err
	}

	run, err := service.Run(ctx, request)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat, only, showTimings)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}
	if err := generator.WriteReportFile(run, outputFile); err != nil {
		return err
	}

	// Show completion message
	if viper.GetBool("verbose") {
		stats := run.Stats
		fmt.Fprintf(stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(stderr, "Run ID: %s\n", run.RunID)
		fmt.Fprintf(stderr, "Compared %d source rows with %d analytics rows", run.SourceRows, run.AnalyticsRows)
		if run.AnalyticsRowsOtherClients > 0 {
			fmt.Fprintf(stderr, " (%d rows of other clients dropped)", run.AnalyticsRowsOtherClients)
		}
		fmt.Fprintf(stderr, ".\n")
		fmt.Fprintf(stderr, "Reconciled %d records, reconciliation rate %s%%.\n",
			stats.TotalRecords, stats.ReconciliationRate.StringFixed(2))
		fmt.Fprintf(stderr, "Processing time: load %v, reconcile %v\n", run.LoadDuration, run.ReconcileDuration)
	}

	return nil
}
