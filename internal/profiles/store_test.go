package profiles

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
)

func writeSettings(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultProfiles(t *testing.T) {
	store := NewStore(nil)

	oxxo := store.Get("oxxo")
	assert.Equal(t, "OXXO", oxxo.Client)
	assert.True(t, oxxo.TolerancePercentage.Equal(decimal.NewFromInt(5)))
	assert.True(t, oxxo.ToleranceAbsolute.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 85.0, oxxo.FuzzyThreshold)
	assert.True(t, oxxo.MinorMultiplier.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "Pedido Conciliado", oxxo.CategoryLabel(models.CategoryExactMatch))
	assert.Equal(t, "MISSING_IN_OXXO", oxxo.MissingInSourceTag())

	kiosko := store.Get(" Kiosko ")
	assert.Equal(t, "KIOSKO", kiosko.Client)
	assert.True(t, kiosko.TolerancePercentage.Equal(decimal.NewFromInt(3)))
	assert.True(t, kiosko.ToleranceAbsolute.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 90.0, kiosko.FuzzyThreshold)
	assert.Equal(t, "tickets", kiosko.Display.UnitName)

	for _, p := range []models.ClientProfile{oxxo, kiosko} {
		assert.NoError(t, p.Validate())
	}
}

func TestUnknownClientFallsBackToOXXOThresholds(t *testing.T) {
	store := NewStore(nil)

	_, known := store.Lookup("SEVEN")
	assert.False(t, known)

	profile := store.Get("seven")
	assert.Equal(t, "SEVEN", profile.Client)
	assert.True(t, profile.TolerancePercentage.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 85.0, profile.FuzzyThreshold)
	assert.Equal(t, "MISSING_IN_SEVEN", profile.Tag(models.CategoryMissingInSource))
	assert.Equal(t, "Faltante en SEVEN", profile.CategoryLabel(models.CategoryMissingInSource))
	assert.Equal(t, "fallback", store.Source("seven"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "settings_oxxo.yaml", `
tolerances:
  value_percentage: 2.5
matching:
  fuzzy_threshold: 92
display:
  category_labels:
    major_difference: "Revisar"
fields:
  source_id: [Folio]
`)

	store := NewStore(nil)
	profile, err := store.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "OXXO", profile.Client)
	assert.True(t, profile.TolerancePercentage.Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, profile.ToleranceAbsolute.Equal(decimal.NewFromInt(50)), "absent keys keep defaults")
	assert.Equal(t, 92.0, profile.FuzzyThreshold)
	assert.Equal(t, "Revisar", profile.CategoryLabel(models.CategoryMajorDifference))
	assert.Equal(t, "Pedido Conciliado", profile.CategoryLabel(models.CategoryExactMatch))
	assert.Equal(t, []string{"Folio"}, profile.Fields.SourceID)
	assert.Equal(t, []string{"valor", "Valor"}, profile.Fields.SourceAmount)

	assert.Equal(t, profile.FuzzyThreshold, store.Get("OXXO").FuzzyThreshold)
	assert.Equal(t, path, store.Source("oxxo"))
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	_, err := store.LoadFile(filepath.Join(dir, "settings_none.yaml"))
	assert.True(t, errors.IsCode(err, errors.CodeFileNotFound))

	bad := writeSettings(t, dir, "settings_oxxo.yaml", "tolerances: [1, 2")
	_, err = store.LoadFile(bad)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))

	invalid := writeSettings(t, dir, "settings_kiosko.yaml", "matching:\n  fuzzy_threshold: 140\n")
	_, err = store.LoadFile(invalid)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))
	assert.Equal(t, 90.0, store.Get("KIOSKO").FuzzyThreshold, "rejected file must not change the store")

	anonymous := writeSettings(t, dir, "tolerances.yaml", "tolerances:\n  value_percentage: 1\n")
	_, err = store.LoadFile(anonymous)
	assert.True(t, errors.IsCode(err, errors.CodeMissingConfig))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "settings_kiosko.yaml", "tolerances:\n  amount_absolute: 10\n")
	writeSettings(t, dir, "settings_chedraui.yaml", "client: Chedraui\nmatching:\n  minor_multiplier: 4\n")
	writeSettings(t, dir, "notes.yaml", "ignored: true\n")

	store := NewStore(nil)
	n, err := store.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, store.Get("KIOSKO").ToleranceAbsolute.Equal(decimal.NewFromInt(10)))

	chedraui, known := store.Lookup("CHEDRAUI")
	require.True(t, known)
	assert.True(t, chedraui.MinorMultiplier.Equal(decimal.NewFromInt(4)))
	assert.True(t, chedraui.TolerancePercentage.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, []string{"CHEDRAUI", "KIOSKO", "OXXO"}, store.Clients())
	assert.Len(t, store.List(), 3)

	n, err = store.LoadDir(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreReturnsDetachedCopies(t *testing.T) {
	store := NewStore(nil)

	p := store.Get("OXXO")
	p.Display.CategoryLabels[models.CategoryExactMatch] = "changed"
	p.Fields.SourceID[0] = "changed"

	again := store.Get("OXXO")
	assert.Equal(t, "Pedido Conciliado", again.CategoryLabel(models.CategoryExactMatch))
	assert.Equal(t, "pedido_adicional", again.Fields.SourceID[0])
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				p := DefaultProfile("OXXO")
				p.FuzzyThreshold = 80
				assert.NoError(t, store.Set(p))
				return
			}
			_ = store.Get("OXXO")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 80.0, store.Get("OXXO").FuzzyThreshold)
}

func TestOverrides(t *testing.T) {
	base := DefaultProfile("OXXO")

	assert.True(t, Overrides{}.IsZero())

	pct := decimal.NewFromInt(1)
	threshold := 70.0
	got, err := Overrides{TolerancePercentage: &pct, FuzzyThreshold: &threshold}.Apply(base)
	require.NoError(t, err)
	assert.True(t, got.TolerancePercentage.Equal(pct))
	assert.Equal(t, 70.0, got.FuzzyThreshold)
	assert.True(t, got.ToleranceAbsolute.Equal(base.ToleranceAbsolute))
	assert.True(t, base.TolerancePercentage.Equal(decimal.NewFromInt(5)), "base profile is not mutated")

	negative := decimal.NewFromInt(-1)
	_, err = Overrides{ToleranceAbsolute: &negative}.Apply(base)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))
}
