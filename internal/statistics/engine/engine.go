// Package engine turns a meter's raw readings into a cumulative-total series.
package engine

import (
	"sort"

	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	statsdomain "github.com/metermate/metermate/internal/statistics/domain"
)

// Engine is a pure, deterministic converter. It holds no I/O and no clock;
// the same readings and offset always compile to the same series.
type Engine struct {
	policy statsdomain.Policy
}

func New(policy statsdomain.Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() statsdomain.Policy { return e.policy }

// Compile converts readings into an ascending cumulative-total series.
//
// The running total is seeded with the meter's initial offset and advances in
// anchor-instant order. A point reading defines the total directly as its
// absolute dial value; an interval reading adds its consumption to the running
// total, attributed to the period end. A point reading below the running total
// is handled per the configured policy and reported as a discontinuity; the
// emitted series never regresses either way.
func (e *Engine) Compile(readings []readingdomain.Reading, initialOffset float64) ([]statsdomain.Point, []statsdomain.Discontinuity) {
	if len(readings) == 0 {
		return nil, nil
	}

	sorted := make([]readingdomain.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AnchorTS.Before(sorted[j].AnchorTS)
	})

	points := make([]statsdomain.Point, 0, len(sorted))
	var discontinuities []statsdomain.Discontinuity

	running := initialOffset
	for _, r := range sorted {
		var total float64
		switch r.Kind {
		case readingdomain.KindInterval:
			total = running + r.Value
		default:
			total = r.Value
			if total < running {
				discontinuities = append(discontinuities, statsdomain.Discontinuity{
					ReadingID:  r.ID,
					At:         r.AnchorTS,
					Value:      r.Value,
					PriorTotal: running,
					Action:     e.policy,
				})
				if e.policy == statsdomain.PolicyReject {
					continue
				}
				total = running
			}
		}

		points = append(points, statsdomain.Point{Start: r.AnchorTS, Sum: total})
		running = total
	}

	return points, discontinuities
}
