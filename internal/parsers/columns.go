package parsers

import (
	"strings"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
)

// ResolveColumn returns the dataset column matching the first candidate that is
// present. Names are compared after trimming, collapsing inner whitespace and
// lower-casing, so "No. Pedido " finds "no.  pedido".
func ResolveColumn(ds *models.Dataset, candidates ...string) (string, error) {
	byKey := make(map[string]string, len(ds.Columns))
	for _, column := range ds.Columns {
		key := headerKey(column)
		if _, exists := byKey[key]; !exists {
			byKey[key] = column
		}
	}

	var tried []string
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		tried = append(tried, candidate)
		if column, ok := byKey[headerKey(candidate)]; ok {
			return column, nil
		}
	}

	wanted := strings.Join(tried, " | ")
	if wanted == "" {
		wanted = "<none>"
	}
	return "", errors.MissingColumnError(ds.Name, wanted, ds.Columns)
}

// ResolveFirst returns explicit when it is set, and otherwise resolves the
// candidates. An explicit name must still exist in the dataset.
func ResolveFirst(ds *models.Dataset, explicit string, candidates []string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return ResolveColumn(ds, explicit)
	}
	return ResolveColumn(ds, candidates...)
}

func headerKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
