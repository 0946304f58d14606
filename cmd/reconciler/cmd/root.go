package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pos-reconciliation-service/cmd/reconciler/config"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

var (
	cfgFile     string
	verbose     bool
	logLevel    string
	logFormat   string
	profilesDir string
	version     = "dev"
	commit      = "unknown"
	date        = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "POS sales reconciliation tool",
	Long: `Reconciler compares a client's point-of-sale ledger with the analytics
platform export, pairs records by ticket or order number and classifies every
amount difference against the client's tolerance profile.

Examples:
  reconciler reconcile --client OXXO --source-file ventas.xlsx --analytics-file analytics.csv
  reconciler reconcile -c KIOSKO -s tickets.xls -a analytics.xlsx --only attention --output-format csv
  reconciler profiles KIOSKO
  reconciler version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", "config", "directory holding settings_<client>.yaml profile files")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("profiles-dir", rootCmd.PersistentFlags().Lookup("profiles-dir"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	// RECONCILER_SOURCE_FILE maps to --source-file
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			os.Exit(NewCLIErrorHandler().HandleError(
				errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err)))
		}
	}

	if err := setupLogger(); err != nil {
		os.Exit(NewCLIErrorHandler().HandleError(err))
	}

	if cfgFile != "" {
		logger.GetGlobalLogger().WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// setupLogger replaces the global logger with one built from the log flags
func setupLogger() error {
	logConfig, err := config.CreateLoggerConfig(
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetBool("verbose"),
	)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig.Level, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
