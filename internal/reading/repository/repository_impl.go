package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reading *readingdomain.Reading) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO readings (id, meter_id, kind, value, anchor_ts, period_start, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID,
		reading.MeterID,
		reading.Kind,
		reading.Value,
		reading.AnchorTS,
		reading.PeriodStart,
		reading.Notes,
		reading.CreatedAt,
		reading.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, reading *readingdomain.Reading) error {
	return db.WithContext(ctx).Exec(
		`UPDATE readings
		 SET kind = ?, value = ?, anchor_ts = ?, period_start = ?, notes = ?, updated_at = ?
		 WHERE meter_id = ? AND id = ?`,
		reading.Kind,
		reading.Value,
		reading.AnchorTS,
		reading.PeriodStart,
		reading.Notes,
		reading.UpdatedAt,
		reading.MeterID,
		reading.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, meterID, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM readings WHERE meter_id = ? AND id = ?`,
		meterID,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteInRange(ctx context.Context, db *gorm.DB, meterID snowflake.ID, start, end time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM readings WHERE meter_id = ? AND anchor_ts >= ? AND anchor_ts <= ?`,
		meterID,
		start,
		end,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteAllForMeter(ctx context.Context, db *gorm.DB, meterID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM readings WHERE meter_id = ?`,
		meterID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, meterID, id snowflake.ID) (*readingdomain.Reading, error) {
	var reading readingdomain.Reading
	err := db.WithContext(ctx).Raw(
		`SELECT id, meter_id, kind, value, anchor_ts, period_start, notes, created_at, updated_at
		 FROM readings WHERE meter_id = ? AND id = ?`,
		meterID,
		id,
	).Scan(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) FindByAnchor(ctx context.Context, db *gorm.DB, meterID snowflake.ID, anchor time.Time) (*readingdomain.Reading, error) {
	var reading readingdomain.Reading
	err := db.WithContext(ctx).Raw(
		`SELECT id, meter_id, kind, value, anchor_ts, period_start, notes, created_at, updated_at
		 FROM readings WHERE meter_id = ? AND anchor_ts = ?`,
		meterID,
		anchor,
	).Scan(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, meterID snowflake.ID, start, end *time.Time) ([]readingdomain.Reading, error) {
	query := `SELECT id, meter_id, kind, value, anchor_ts, period_start, notes, created_at, updated_at
		 FROM readings WHERE meter_id = ?`
	args := []any{meterID}

	if start != nil {
		query += ` AND anchor_ts >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND anchor_ts <= ?`
		args = append(args, *end)
	}
	query += ` ORDER BY anchor_ts ASC`

	var readings []readingdomain.Reading
	err := db.WithContext(ctx).Raw(query, args...).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, meterID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM readings WHERE meter_id = ?`,
		meterID,
	).Scan(&count).Error
	return count, err
}
