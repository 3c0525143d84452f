// Package sqlite persists remembered geolocation decisions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plumekit/geoperm/internal/domain/entity"
	"github.com/plumekit/geoperm/internal/domain/repository"
	"github.com/plumekit/geoperm/internal/logging"
)

type permissionRepo struct {
	db *sql.DB
}

// NewPermissionRepository creates a new SQLite-backed permission repository.
func NewPermissionRepository(db *sql.DB) repository.PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) All(ctx context.Context) ([]*entity.PermissionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT origin, decision, updated_at FROM geolocation_permissions ORDER BY origin`)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*entity.PermissionRecord
	for rows.Next() {
		rec := &entity.PermissionRecord{}
		if err := rows.Scan(&rec.Origin, &rec.Decision, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}
	return records, nil
}

func (r *permissionRepo) Set(ctx context.Context, record *entity.PermissionRecord) error {
	if record == nil {
		return errors.New("cannot set nil permission record")
	}

	log := logging.FromContext(ctx)
	log.Debug().
		Str("origin", record.Origin.String()).
		Str("decision", string(record.Decision)).
		Msg("setting permission")

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO geolocation_permissions (origin, decision, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (origin) DO UPDATE SET decision = excluded.decision, updated_at = excluded.updated_at`,
		record.Origin, record.Decision, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set permission: %w", err)
	}
	return nil
}

func (r *permissionRepo) Delete(ctx context.Context, origin entity.Origin) error {
	log := logging.FromContext(ctx)
	log.Debug().Str("origin", origin.String()).Msg("deleting permission")

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM geolocation_permissions WHERE origin = ?`, origin); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

func (r *permissionRepo) DeleteAll(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Debug().Msg("deleting all permissions")

	if _, err := r.db.ExecContext(ctx, `DELETE FROM geolocation_permissions`); err != nil {
		return fmt.Errorf("delete all permissions: %w", err)
	}
	return nil
}
