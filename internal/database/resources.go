package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// SyncResources upserts the configured court catalog.
func (db *DB) SyncResources(ctx context.Context, resources []models.Resource) error {
	query := db.rebind(`INSERT INTO resources (id, name, category, hourly_rate) VALUES (?, ?, ?, ?)
              ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category, hourly_rate = excluded.hourly_rate`)
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range resources {
			if _, err := tx.ExecContext(ctx, query, r.ID, r.Name, r.Category, r.HourlyRate); err != nil {
				return fmt.Errorf("failed to sync resource %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	query := db.rebind(`SELECT id, name, category, hourly_rate FROM resources WHERE id = ?`)

	var r models.Resource
	err := db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Name, &r.Category, &r.HourlyRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &r, nil
}

func (db *DB) ListResources(ctx context.Context) ([]*models.Resource, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, category, hourly_rate FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.HourlyRate); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, &r)
	}
	return resources, rows.Err()
}
