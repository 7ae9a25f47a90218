// Package domain contains persistence models for user-entered meter readings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind distinguishes absolute dial readings from period consumption deltas.
type Kind string

const (
	// KindPoint is an absolute meter-dial value observed at one instant.
	KindPoint Kind = "point"
	// KindInterval is a consumption delta over [period_start, period_end).
	KindInterval Kind = "interval"
)

// Reading stores one user-entered observation. AnchorTS is the sort key: the
// timestamp for a point reading, the period end for an interval reading. It is
// unique per meter so ordering is never ambiguous.
type Reading struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	MeterID     snowflake.ID `gorm:"not null;uniqueIndex:ux_readings_meter_anchor,priority:1"`
	Kind        Kind         `gorm:"type:text;not null"`
	Value       float64      `gorm:"not null"`
	AnchorTS    time.Time    `gorm:"column:anchor_ts;not null;uniqueIndex:ux_readings_meter_anchor,priority:2"`
	PeriodStart *time.Time
	Notes       string    `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Reading) TableName() string { return "readings" }
