package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Meter is one manually tracked utility meter. EntityID is the stable key the
// published statistic id derives from; only the display name may change after
// setup.
type Meter struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	EntityID      string       `gorm:"column:entity_id;type:text;not null;uniqueIndex:ux_meters_entity"`
	Name          string       `gorm:"type:text;not null"`
	Unit          string       `gorm:"type:text;not null"`
	DeviceClass   string       `gorm:"type:text;not null;default:'energy'"`
	InitialOffset float64      `gorm:"not null;default:0"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Meter) TableName() string { return "meters" }
