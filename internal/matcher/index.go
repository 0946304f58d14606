package matcher

import (
	"sort"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/pkg/errors"
)

// IdentifierIndex is a hash index of aggregated records keyed by normalized identifier
type IdentifierIndex struct {
	// byKey maps the normalized identifier to the record position
	byKey map[string]int

	// Records holds all indexed records in insertion order
	Records []models.AggregatedRecord
}

// IndexKey returns the lookup key of an identifier. Matching is insensitive to
// case and to leading, trailing and repeated whitespace.
func IndexKey(identifier string) string {
	return models.NormalizeIdentifier(identifier)
}

// NewIdentifierIndex indexes records that must be unique per identifier.
// A repeated key means the collection was not deduplicated and is rejected.
func NewIdentifierIndex(records []models.AggregatedRecord) (*IdentifierIndex, error) {
	index := &IdentifierIndex{
		byKey:   make(map[string]int, len(records)),
		Records: records,
	}

	for i, rec := range records {
		key := IndexKey(rec.Identifier)
		if prev, exists := index.byKey[key]; exists {
			return nil, errors.ReconciliationError(errors.CodeDataInconsistent, "identifier indexing", nil).
				WithContext("identifier", key).
				WithContext("origin", string(rec.Origin)).
				WithContext("first_position", prev).
				WithContext("duplicate_position", i)
		}
		index.byKey[key] = i
	}

	return index, nil
}

// Lookup returns the record stored under the identifier
func (idx *IdentifierIndex) Lookup(identifier string) (models.AggregatedRecord, bool) {
	pos, ok := idx.byKey[IndexKey(identifier)]
	if !ok {
		return models.AggregatedRecord{}, false
	}
	return idx.Records[pos], true
}

// Contains reports whether the identifier is indexed
func (idx *IdentifierIndex) Contains(identifier string) bool {
	_, ok := idx.byKey[IndexKey(identifier)]
	return ok
}

// Len returns the number of indexed records
func (idx *IdentifierIndex) Len() int {
	return len(idx.Records)
}

// Keys returns all normalized identifiers in ascending order
func (idx *IdentifierIndex) Keys() []string {
	keys := make([]string, 0, len(idx.byKey))
	for k := range idx.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortByIdentifier returns a copy of the records ordered by identifier ascending
func SortByIdentifier(records []models.AggregatedRecord) []models.AggregatedRecord {
	sorted := make([]models.AggregatedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Identifier < sorted[j].Identifier
	})
	return sorted
}
