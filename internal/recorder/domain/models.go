// Package domain models the host dashboard's long-term statistics store. The
// publisher talks to it through the Ingestor interface only; this keeps the
// real ingestion API swappable for the local gorm-backed implementation.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source identifies externally published statistics owned by this integration.
const Source = "metermate"

// StatisticID derives the external statistic id for a meter entity.
func StatisticID(entityID string) string {
	return Source + ":" + entityID
}

// Metadata describes one external statistic series.
type Metadata struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	StatisticID string       `gorm:"column:statistic_id;type:text;not null;uniqueIndex:ux_statistics_meta_statistic"`
	Src         string       `gorm:"column:source;type:text;not null"`
	Name        string       `gorm:"type:text;not null"`
	Unit        string       `gorm:"type:text;not null"`
	HasSum      bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Metadata) TableName() string { return "statistics_meta" }

// StatisticRow is one stored point of a series. StartTS is the epoch-second
// representation the store expects.
type StatisticRow struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MetadataID snowflake.ID `gorm:"not null;uniqueIndex:ux_statistics_meta_start,priority:1"`
	StartTS    int64        `gorm:"column:start_ts;not null;uniqueIndex:ux_statistics_meta_start,priority:2"`
	State      float64      `gorm:"not null;default:0"`
	Sum        float64      `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (StatisticRow) TableName() string { return "statistics" }

// SeriesPoint is the ingestion wire shape for one point.
type SeriesPoint struct {
	Start time.Time
	State float64
	Sum   float64
}

// Ingestor is the statistics ingestion collaborator. ReplaceSeries always
// swaps the complete series so stale points never linger after edits.
type Ingestor interface {
	EnsureMetadata(ctx context.Context, meta Metadata) (snowflake.ID, error)
	ReplaceSeries(ctx context.Context, statisticID string, points []SeriesPoint) (int, error)
	Latest(ctx context.Context, statisticID string) (*StatisticRow, error)
	Drop(ctx context.Context, statisticID string) error
}

var ErrUnknownStatistic = errors.New("unknown_statistic")
