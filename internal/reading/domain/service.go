package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	historydomain "github.com/metermate/metermate/internal/history/domain"
)

type AddRequest struct {
	MeterID     string     `json:"meter_id"`
	Kind        string     `json:"kind"`
	Value       float64    `json:"value"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type UpdateRequest struct {
	MeterID     string     `json:"meter_id"`
	ReadingID   string     `json:"reading_id"`
	Value       *float64   `json:"value,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type ListRequest struct {
	MeterID string     `json:"meter_id"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

// ItemInput is one entry of a bulk import; the meter comes from the batch.
type ItemInput struct {
	Kind        string     `json:"kind"`
	Value       float64    `json:"value"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type BulkImportRequest struct {
	MeterID string      `json:"meter_id"`
	Items   []ItemInput `json:"items"`
}

type PurgeRequest struct {
	MeterID string    `json:"meter_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

type Response struct {
	ID          string     `json:"id"`
	MeterID     string     `json:"meter_id"`
	Kind        string     `json:"kind"`
	Value       float64    `json:"value"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MutationResult is the typed outcome of a single-reading mutation. The
// rebuild outcome rides along so the caller sees publish failures without the
// mutation itself being rolled back.
type MutationResult struct {
	Reading *Response                   `json:"reading"`
	Rebuild historydomain.RebuildResult `json:"rebuild"`
}

type DeleteResult struct {
	ReadingID string                      `json:"reading_id"`
	Rebuild   historydomain.RebuildResult `json:"rebuild"`
}

type RejectedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type BulkImportResult struct {
	OperationID string                      `json:"operation_id"`
	Accepted    []Response                  `json:"accepted"`
	Rejected    []RejectedItem              `json:"rejected"`
	Rebuild     historydomain.RebuildResult `json:"rebuild"`
}

type PurgeResult struct {
	Deleted int                         `json:"deleted"`
	Rebuild historydomain.RebuildResult `json:"rebuild"`
}

type Service interface {
	Add(ctx context.Context, req AddRequest) (*MutationResult, error)
	Update(ctx context.Context, req UpdateRequest) (*MutationResult, error)
	Delete(ctx context.Context, meterID, readingID string) (*DeleteResult, error)
	Get(ctx context.Context, meterID, readingID string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	BulkImport(ctx context.Context, req BulkImportRequest) (*BulkImportResult, error)
	DeleteInPeriod(ctx context.Context, req PurgeRequest) (*PurgeResult, error)
}

var (
	ErrInvalidMeter    = errors.New("invalid_meter")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidValue    = errors.New("invalid_value")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrFutureTimestamp = errors.New("future_timestamp")
	ErrDuplicateAnchor = errors.New("duplicate_anchor")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
