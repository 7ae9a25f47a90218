// Package domain holds the conversion engine's output types and policies.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Point is one derived statistic: the cumulative total as of an instant.
// Series are ordered by Start and never regress in Sum (total_increasing).
type Point struct {
	Start time.Time `json:"start"`
	Sum   float64   `json:"sum"`
}

// Policy selects how the engine treats a point reading whose absolute value
// falls below the running total from an earlier instant.
type Policy string

const (
	// PolicyClamp emits the prior running total for the offending reading, so
	// the published series keeps every anchor without regressing. This is the
	// default; meter rollover or replacement is the usual cause.
	PolicyClamp Policy = "clamp"
	// PolicyReject omits the offending reading from the series.
	PolicyReject Policy = "reject"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyClamp, "":
		return PolicyClamp, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown non-increasing policy %q", raw)
	}
}

// Discontinuity reports one reading the policy acted on during compilation.
type Discontinuity struct {
	ReadingID  snowflake.ID
	At         time.Time
	Value      float64
	PriorTotal float64
	Action     Policy
}

func (d Discontinuity) Reason() string {
	return fmt.Sprintf("%s: value %v at %s below running total %v (%s)",
		ErrNonIncreasingReading.Error(), d.Value, d.At.UTC().Format(time.RFC3339), d.PriorTotal, d.Action)
}

var (
	ErrNonIncreasingReading = errors.New("non_increasing_reading")
	ErrPublishFailure       = errors.New("publish_failure")
)
