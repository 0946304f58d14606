package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pos-reconciliation-service/cmd/reconciler/config"
	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/internal/profiles"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

var profilesFormat string

// profilesCmd prints the effective client profiles
var profilesCmd = &cobra.Command{
	Use:   "profiles [client]",
	Short: "Show the effective client profiles",
	Long: `Profiles prints the thresholds, display names and column candidates that a
reconciliation would use, after applying the settings files of --profiles-dir
on top of the built-in profiles. The YAML output uses the settings file layout
and can be saved as settings_<client>.yaml.

Examples:
  reconciler profiles
  reconciler profiles KIOSKO --profiles-dir ./config
  reconciler profiles OXXO --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)

	profilesCmd.Flags().StringVar(&profilesFormat, "format", "yaml", "output format: yaml, json")
}

// profileView is the printable form of a ClientProfile. Its YAML layout matches
// the settings files read by the profile store.
type profileView struct {
	Client     string               `json:"client" yaml:"client"`
	Source     string               `json:"source" yaml:"source"`
	Tolerances toleranceView        `json:"tolerances" yaml:"tolerances"`
	Matching   matchingView         `json:"matching" yaml:"matching"`
	MissingTag string               `json:"missing_in_source_tag" yaml:"missing_in_source_tag"`
	Display    models.DisplayConfig `json:"display" yaml:"display"`
	Fields     models.FieldMapping  `json:"fields" yaml:"fields"`
}

type toleranceView struct {
	ValuePercentage float64 `json:"value_percentage" yaml:"value_percentage"`
	AmountAbsolute  float64 `json:"amount_absolute" yaml:"amount_absolute"`
	MinorPercentage float64 `json:"minor_percentage" yaml:"minor_percentage"`
}

type matchingView struct {
	FuzzyThreshold  float64 `json:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	MinorMultiplier float64 `json:"minor_multiplier" yaml:"minor_multiplier"`
}

func newProfileView(profile models.ClientProfile, source string) profileView {
	return profileView{
		Client: profile.Client,
		Source: source,
		Tolerances: toleranceView{
			ValuePercentage: profile.TolerancePercentage.InexactFloat64(),
			AmountAbsolute:  profile.ToleranceAbsolute.InexactFloat64(),
			MinorPercentage: profile.MinorTolerance().InexactFloat64(),
		},
		Matching: matchingView{
			FuzzyThreshold:  profile.FuzzyThreshold,
			MinorMultiplier: profile.EffectiveMinorMultiplier().InexactFloat64(),
		},
		MissingTag: profile.MissingInSourceTag(),
		Display:    profile.Display,
		Fields:     profile.Fields,
	}
}

func runProfiles(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	store, err := config.CreateProfileStore(viper.GetString("profiles-dir"), log)
	if err != nil {
		return err
	}

	var views []profileView
	if len(args) == 1 {
		profile, ok := store.Lookup(args[0])
		if !ok {
			return errors.ConfigurationError(errors.CodeUnknownProfile, "client", profiles.NormalizeClient(args[0]), nil)
		}
		views = append(views, newProfileView(profile, store.Source(profile.Client)))
	} else {
		for _, profile := range store.List() {
			views = append(views, newProfileView(profile, store.Source(profile.Client)))
		}
	}

	return writeProfiles(cmd.OutOrStdout(), views, profilesFormat)
}

func writeProfiles(w io.Writer, views []profileView, format string) error {
	switch format {
	case "yaml", "":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		for _, view := range views {
			if err := encoder.Encode(view); err != nil {
				return errors.InternalError(errors.CodeUnexpectedError, "encode profiles", err)
			}
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(views); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "encode profiles", err)
		}
		return nil
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
			fmt.Errorf("valid formats: yaml, json"))
	}
}
