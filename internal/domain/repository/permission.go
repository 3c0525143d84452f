package repository

import (
	"context"

	"github.com/plumekit/geoperm/internal/domain/entity"
)

// PermissionRepository defines operations for persisting remembered
// geolocation decisions across browser restarts. The in-memory permanent
// store stays authoritative for the running process; this interface is the
// storage collaborator it loads from and writes through to.
type PermissionRepository interface {
	// All retrieves every stored permission record.
	All(ctx context.Context) ([]*entity.PermissionRecord, error)

	// Set saves or updates a permission record.
	Set(ctx context.Context, record *entity.PermissionRecord) error

	// Delete removes the record for one origin. Deleting an absent origin
	// is not an error.
	Delete(ctx context.Context, origin entity.Origin) error

	// DeleteAll removes every stored record.
	DeleteAll(ctx context.Context) error
}
