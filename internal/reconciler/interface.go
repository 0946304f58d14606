package reconciler

import (
	"context"

	"pos-reconciliation-service/internal/models"
	"pos-reconciliation-service/internal/parsers"
)

// DatasetLoader reads one export into a Dataset. parsers.Loader implements it.
//
//go:generate mockgen -destination=mocks/mock_interface.go -package=mocks -source=interface.go DatasetLoader,ProfileProvider
type DatasetLoader interface {
	Load(ctx context.Context, path string, config *parsers.DatasetConfig) (*models.Dataset, error)
}

// ProfileProvider resolves the effective profile of a client. profiles.Store
// implements it.
type ProfileProvider interface {
	Get(client string) models.ClientProfile
}
