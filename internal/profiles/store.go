// Package profiles resolves the ClientProfile used for a reconciliation run.
//
// Profiles start from built-in defaults for the known clients and may be
// overridden by settings_<client>.yaml files:
//
//	client: OXXO
//	tolerances:
//	  value_percentage: 5.0
//	  amount_absolute: 50
//	matching:
//	  fuzzy_threshold: 85
//	  minor_multiplier: 3
//	display:
//	  unit_name: pedidos
//	fields:
//	  source_id: [pedido_adicional]
//
// Keys that are absent keep the value they had before the file was applied.
// A Store is safe for concurrent use; the profiles it hands out are values.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
	"pos-reconciliation-service/pkg/logger"
)

const (
	ClientOXXO   = "OXXO"
	ClientKIOSKO = "KIOSKO"

	// FilePattern matches per-client settings files inside a profiles directory
	FilePattern = "settings_*.yaml"
)

// Store holds the effective profile of every known client
type Store struct {
	mu       sync.RWMutex
	profiles map[string]models.ClientProfile
	sources  map[string]string
	logger   logger.Logger
}

// NewStore creates a store seeded with the built-in client profiles
func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	s := &Store{
		profiles: make(map[string]models.ClientProfile),
		sources:  make(map[string]string),
		logger:   log.WithComponent("profiles"),
	}
	for _, client := range []string{ClientOXXO, ClientKIOSKO} {
		s.profiles[client] = DefaultProfile(client)
		s.sources[client] = "built-in"
	}
	return s
}

// NormalizeClient returns the canonical key of a client name
func NormalizeClient(client string) string {
	return strings.ToUpper(strings.TrimSpace(client))
}

// Get returns the profile of a client. Unknown clients get the OXXO thresholds
// under their own name.
func (s *Store) Get(client string) models.ClientProfile {
	profile, ok := s.Lookup(client)
	if ok {
		return profile
	}

	key := NormalizeClient(client)
	s.logger.WithField("client", key).Warn("Unknown client, using OXXO defaults")
	return DefaultProfile(key)
}

// Lookup returns the profile of a client and whether the client is known
func (s *Store) Lookup(client string) (models.ClientProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[NormalizeClient(client)]
	if !ok {
		return models.ClientProfile{}, false
	}
	return copyProfile(profile), true
}

// Source returns where the effective profile of a client came from: "built-in"
// or the path of the settings file applied last
func (s *Store) Source(client string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if src, ok := s.sources[NormalizeClient(client)]; ok {
		return src
	}
	return "fallback"
}

// Set validates and stores a profile, replacing any previous one
func (s *Store) Set(profile models.ClientProfile) error {
	profile.Client = NormalizeClient(profile.Client)
	if err := profile.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Client] = copyProfile(profile)
	s.sources[profile.Client] = "api"
	return nil
}

// Clients returns the known client names, sorted
func (s *Store) Clients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]string, 0, len(s.profiles))
	for client := range s.profiles {
		clients = append(clients, client)
	}
	sort.Strings(clients)
	return clients
}

// List returns every known profile ordered by client name
func (s *Store) List() []models.ClientProfile {
	clients := s.Clients()
	profiles := make([]models.ClientProfile, 0, len(clients))
	for _, client := range clients {
		profile, _ := s.Lookup(client)
		profiles = append(profiles, profile)
	}
	return profiles
}

// LoadDir applies every settings_<client>.yaml file found in dir. A missing
// directory is not an error; the built-in profiles stay in effect.
func (s *Store) LoadDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		s.logger.WithField("dir", dir).Debug("Profiles directory not found, using built-in profiles")
		return 0, nil
	}
	if err != nil {
		return 0, errors.FileError(errors.CodeFilePermission, dir, err)
	}
	if !info.IsDir() {
		return 0, errors.ConfigurationError(errors.CodeInvalidConfig, "profiles_dir", dir, fmt.Errorf("not a directory"))
	}

	paths, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return 0, errors.ConfigurationError(errors.CodeInvalidConfig, "profiles_dir", dir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if _, err := s.LoadFile(path); err != nil {
			return 0, err
		}
	}

	s.logger.WithFields(logger.Fields{
		"dir":   dir,
		"files": len(paths),
	}).Info("Client profiles loaded")

	return len(paths), nil
}

// LoadFile applies one settings file on top of the client's current profile and
// returns the result
func (s *Store) LoadFile(path string) (models.ClientProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ClientProfile{}, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return models.ClientProfile{}, errors.FileError(errors.CodeFilePermission, path, err)
	}

	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return models.ClientProfile{}, errors.ConfigurationError(errors.CodeInvalidConfig, "profile_file", path, err)
	}

	client := NormalizeClient(file.Client)
	if client == "" {
		client = clientFromFileName(path)
	}
	if client == "" {
		return models.ClientProfile{}, errors.ConfigurationError(errors.CodeMissingConfig, "client", path,
			fmt.Errorf("set 'client' or name the file %s", FilePattern))
	}

	base, known := s.Lookup(client)
	if !known {
		base = DefaultProfile(client)
	}

	profile := file.apply(base)
	if err := profile.Validate(); err != nil {
		if re, ok := errors.AsReconcilerError(err); ok {
			return models.ClientProfile{}, re.WithContext("profile_file", path)
		}
		return models.ClientProfile{}, err
	}

	s.mu.Lock()
	s.profiles[client] = copyProfile(profile)
	s.sources[client] = path
	s.mu.Unlock()

	s.logger.WithFields(logger.Fields{
		"client": client,
		"file":   path,
		"known":  known,
	}).Debug("Profile file applied")

	return profile, nil
}

// clientFromFileName extracts CLIENT from .../settings_client.yaml
func clientFromFileName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if !strings.HasPrefix(base, "settings_") {
		return ""
	}
	return NormalizeClient(strings.TrimPrefix(base, "settings_"))
}

// settingsFile mirrors the YAML layout. Pointers distinguish absent keys from zeros.
type settingsFile struct {
	Client     string `yaml:"client"`
	Tolerances struct {
		ValuePercentage *float64 `yaml:"value_percentage"`
		AmountAbsolute  *float64 `yaml:"amount_absolute"`
	} `yaml:"tolerances"`
	Matching struct {
		FuzzyThreshold  *float64 `yaml:"fuzzy_threshold"`
		MinorMultiplier *float64 `yaml:"minor_multiplier"`
	} `yaml:"matching"`
	Display *models.DisplayConfig `yaml:"display"`
	Fields  *models.FieldMapping  `yaml:"fields"`
}

func (f settingsFile) apply(profile models.ClientProfile) models.ClientProfile {
	if v := f.Tolerances.ValuePercentage; v != nil {
		profile.TolerancePercentage = decimal.NewFromFloat(*v)
	}
	if v := f.Tolerances.AmountAbsolute; v != nil {
		profile.ToleranceAbsolute = decimal.NewFromFloat(*v)
	}
	if v := f.Matching.FuzzyThreshold; v != nil {
		profile.FuzzyThreshold = *v
	}
	if v := f.Matching.MinorMultiplier; v != nil {
		profile.MinorMultiplier = decimal.NewFromFloat(*v)
	}
	if f.Display != nil {
		profile.Display = mergeDisplay(profile.Display, *f.Display)
	}
	if f.Fields != nil {
		profile.Fields = mergeFields(profile.Fields, *f.Fields)
	}
	return profile
}

func mergeDisplay(base, override models.DisplayConfig) models.DisplayConfig {
	if override.SourceName != "" {
		base.SourceName = override.SourceName
	}
	if override.IdentifierLabel != "" {
		base.IdentifierLabel = override.IdentifierLabel
	}
	if override.UnitName != "" {
		base.UnitName = override.UnitName
	}
	if override.CurrencySymbol != "" {
		base.CurrencySymbol = override.CurrencySymbol
	}
	if len(override.CategoryLabels) > 0 {
		labels := make(map[models.Category]string, len(base.CategoryLabels)+len(override.CategoryLabels))
		for c, label := range base.CategoryLabels {
			labels[c] = label
		}
		for c, label := range override.CategoryLabels {
			labels[models.Category(strings.ToUpper(string(c)))] = label
		}
		base.CategoryLabels = labels
	}
	return base
}

func mergeFields(base, override models.FieldMapping) models.FieldMapping {
	if len(override.SourceID) > 0 {
		base.SourceID = override.SourceID
	}
	if len(override.SourceAmount) > 0 {
		base.SourceAmount = override.SourceAmount
	}
	if len(override.AnalyticsID) > 0 {
		base.AnalyticsID = override.AnalyticsID
	}
	if len(override.AnalyticsAmount) > 0 {
		base.AnalyticsAmount = override.AnalyticsAmount
	}
	if override.AnalyticsClientColumn != "" {
		base.AnalyticsClientColumn = override.AnalyticsClientColumn
	}
	return base
}

// copyProfile detaches the maps and slices of a profile from the store
func copyProfile(p models.ClientProfile) models.ClientProfile {
	if p.Display.CategoryLabels != nil {
		labels := make(map[models.Category]string, len(p.Display.CategoryLabels))
		for c, label := range p.Display.CategoryLabels {
			labels[c] = label
		}
		p.Display.CategoryLabels = labels
	}
	p.Fields.SourceID = append([]string(nil), p.Fields.SourceID...)
	p.Fields.SourceAmount = append([]string(nil), p.Fields.SourceAmount...)
	p.Fields.AnalyticsID = append([]string(nil), p.Fields.AnalyticsID...)
	p.Fields.AnalyticsAmount = append([]string(nil), p.Fields.AnalyticsAmount...)
	return p
}
