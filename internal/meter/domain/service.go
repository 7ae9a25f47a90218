package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	GetByEntityID(ctx context.Context, entityID string) (*Response, error)
	Rename(ctx context.Context, req RenameRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	State(ctx context.Context, id string) (*StateResponse, error)
}

type CreateRequest struct {
	EntityID      string   `json:"entity_id"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit"`
	DeviceClass   string   `json:"device_class"`
	InitialOffset *float64 `json:"initial_offset"`
}

type RenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Response struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	Name          string    `json:"name"`
	Unit          string    `json:"unit"`
	DeviceClass   string    `json:"device_class"`
	InitialOffset float64   `json:"initial_offset"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateResponse mirrors the meter sensor: the latest published cumulative
// total, or the configured offset with state "unknown" when nothing has been
// published yet. ReadingCount reports how many raw readings back the series.
type StateResponse struct {
	MeterID      string     `json:"meter_id"`
	EntityID     string     `json:"entity_id"`
	State        string     `json:"state"`
	Value        float64    `json:"value"`
	Unit         string     `json:"unit"`
	ReadingCount int64      `json:"reading_count"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

const (
	StateOK      = "ok"
	StateUnknown = "unknown"
)

var (
	ErrInvalidEntityID = errors.New("invalid_entity_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidUnit     = errors.New("invalid_unit")
	ErrInvalidOffset   = errors.New("invalid_initial_offset")
	ErrDuplicateEntity = errors.New("duplicate_entity_id")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
