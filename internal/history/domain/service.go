package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// ItemError reports one reading (or the publish step) that degraded a rebuild.
type ItemError struct {
	ReadingID string `json:"reading_id,omitempty"`
	Reason    string `json:"reason"`
}

// RebuildResult summarizes a full recompute-and-republish pass. A rebuild with
// publish errors leaves the stored readings untouched; calling Rebuild again
// is the retry mechanism.
type RebuildResult struct {
	MeterID         string      `json:"meter_id"`
	PointsPublished int         `json:"points_published"`
	Errors          []ItemError `json:"errors,omitempty"`
	Retryable       bool        `json:"retryable,omitempty"`
}

type Service interface {
	// Rebuild serializes against other mutations on the meter, then recomputes
	// and republishes the complete statistic series from the raw readings.
	Rebuild(ctx context.Context, meterID string) (RebuildResult, error)

	// Recompute runs the same pass without taking the meter lock; callers must
	// already hold it.
	Recompute(ctx context.Context, meterID snowflake.ID) (RebuildResult, error)
}
