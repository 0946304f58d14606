package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pos-reconciliation-service/pkg/errors"
)

func runProfilesWith(t *testing.T, dir, format string, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("profiles-dir", dir)

	previous := profilesFormat
	profilesFormat = format
	t.Cleanup(func() { profilesFormat = previous })

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runProfiles(cmd, args)
	return out.String(), err
}

func TestProfilesListsBuiltIns(t *testing.T) {
	output, err := runProfilesWith(t, "", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var views []profileView
	if err := json.Unmarshal([]byte(output), &views); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if len(views) != 2 {
		t.Fatalf("expected 2 built-in profiles, got %d", len(views))
	}
	if views[0].Client != "KIOSKO" || views[1].Client != "OXXO" {
		t.Errorf("expected KIOSKO and OXXO in order, got %s and %s", views[0].Client, views[1].Client)
	}
	if views[1].Source != "built-in" {
		t.Errorf("expected built-in source, got %s", views[1].Source)
	}
	if views[1].Tolerances.MinorPercentage != 15 {
		t.Errorf("expected OXXO minor percentage 15, got %v", views[1].Tolerances.MinorPercentage)
	}
	if views[0].MissingTag != "MISSING_IN_KIOSKO" {
		t.Errorf("expected MISSING_IN_KIOSKO tag, got %s", views[0].MissingTag)
	}
}

func TestProfilesShowsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings_kiosko.yaml")
	content := "tolerances:\n  value_percentage: 4\nmatching:\n  fuzzy_threshold: 80\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	output, err := runProfilesWith(t, dir, "yaml", "kiosko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var view profileView
	if err := yaml.Unmarshal([]byte(output), &view); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}

	if view.Client != "KIOSKO" {
		t.Errorf("expected KIOSKO, got %s", view.Client)
	}
	if view.Source != path {
		t.Errorf("expected source %s, got %s", path, view.Source)
	}
	if view.Tolerances.ValuePercentage != 4 {
		t.Errorf("expected tolerance 4, got %v", view.Tolerances.ValuePercentage)
	}
	if view.Tolerances.AmountAbsolute != 25 {
		t.Errorf("expected built-in absolute tolerance 25 to be kept, got %v", view.Tolerances.AmountAbsolute)
	}
	if view.Matching.FuzzyThreshold != 80 {
		t.Errorf("expected fuzzy threshold 80, got %v", view.Matching.FuzzyThreshold)
	}
	if !strings.Contains(output, "value_percentage:") {
		t.Errorf("expected settings file layout, got: %s", output)
	}
}

func TestProfilesUnknownClient(t *testing.T) {
	_, err := runProfilesWith(t, "", "yaml", "walmart")
	if !errors.IsCode(err, errors.CodeUnknownProfile) {
		t.Fatalf("expected unknown profile error, got %v", err)
	}
	if !strings.Contains(err.Error(), "WALMART") {
		t.Errorf("expected normalized client in message, got: %v", err)
	}
}

func TestProfilesInvalidFormat(t *testing.T) {
	_, err := runProfilesWith(t, "", "xml")
	if !errors.IsCode(err, errors.CodeInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
