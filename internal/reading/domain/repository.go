package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Reading) error
	Update(ctx context.Context, db *gorm.DB, r *Reading) error
	Delete(ctx context.Context, db *gorm.DB, meterID, id snowflake.ID) (int64, error)
	DeleteInRange(ctx context.Context, db *gorm.DB, meterID snowflake.ID, start, end time.Time) (int64, error)
	DeleteAllForMeter(ctx context.Context, db *gorm.DB, meterID snowflake.ID) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, meterID, id snowflake.ID) (*Reading, error)
	FindByAnchor(ctx context.Context, db *gorm.DB, meterID snowflake.ID, anchor time.Time) (*Reading, error)
	List(ctx context.Context, db *gorm.DB, meterID snowflake.ID, start, end *time.Time) ([]Reading, error)
	Count(ctx context.Context, db *gorm.DB, meterID snowflake.ID) (int64, error)
}
