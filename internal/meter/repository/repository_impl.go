package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() meterdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *meterdomain.Meter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO meters (id, entity_id, name, unit, device_class, initial_offset, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.EntityID,
		m.Name,
		m.Unit,
		m.DeviceClass,
		m.InitialOffset,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Rename(ctx context.Context, db *gorm.DB, m *meterdomain.Meter) error {
	return db.WithContext(ctx).Exec(
		`UPDATE meters SET name = ?, updated_at = ? WHERE id = ?`,
		m.Name,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM meters WHERE id = ?`,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_id, name, unit, device_class, initial_offset, created_at, updated_at
		 FROM meters WHERE id = ?`,
		id,
	).Scan(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.ID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) FindByEntityID(ctx context.Context, db *gorm.DB, entityID string) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_id, name, unit, device_class, initial_offset, created_at, updated_at
		 FROM meters WHERE entity_id = ?`,
		entityID,
	).Scan(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.ID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]meterdomain.Meter, error) {
	var meters []meterdomain.Meter
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_id, name, unit, device_class, initial_offset, created_at, updated_at
		 FROM meters ORDER BY created_at ASC`,
	).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}
