// Package publisher translates engine output into the ingestion collaborator's
// batch shape. Format translation and metadata existence only; no series math.
package publisher

import (
	"context"
	"fmt"
	"time"

	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	statsdomain "github.com/metermate/metermate/internal/statistics/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Ingestor recorderdomain.Ingestor
}

type Publisher struct {
	log      *zap.Logger
	ingestor recorderdomain.Ingestor
}

func New(p Params) *Publisher {
	return &Publisher{
		log:      p.Log.Named("statistics.publisher"),
		ingestor: p.Ingestor,
	}
}

// Request carries one meter's complete series plus its unit metadata.
type Request struct {
	StatisticID string
	Name        string
	Unit        string
	Points      []statsdomain.Point
}

// Publish registers metadata if needed and replaces the statistic's complete
// series. Point instants are aligned to the store's hourly buckets here; when
// several points collapse into one bucket the latest cumulative total wins.
// An empty series clears previously published points.
func (p *Publisher) Publish(ctx context.Context, req Request) (int, error) {
	_, err := p.ingestor.EnsureMetadata(ctx, recorderdomain.Metadata{
		StatisticID: req.StatisticID,
		Src:         recorderdomain.Source,
		Name:        req.Name,
		Unit:        req.Unit,
		HasSum:      true,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: ensure metadata: %v", statsdomain.ErrPublishFailure, err)
	}

	rows := alignHourly(req.Points)

	published, err := p.ingestor.ReplaceSeries(ctx, req.StatisticID, rows)
	if err != nil {
		return 0, fmt.Errorf("%w: replace series: %v", statsdomain.ErrPublishFailure, err)
	}

	p.log.Debug("published statistic series",
		zap.String("statistic_id", req.StatisticID),
		zap.Int("points", published),
	)
	return published, nil
}

func alignHourly(points []statsdomain.Point) []recorderdomain.SeriesPoint {
	if len(points) == 0 {
		return nil
	}

	rows := make([]recorderdomain.SeriesPoint, 0, len(points))
	for _, pt := range points {
		bucket := pt.Start.UTC().Truncate(time.Hour)
		row := recorderdomain.SeriesPoint{Start: bucket, Sum: pt.Sum}

		// Points arrive in ascending order, so a bucket collision means this
		// point supersedes the previous one.
		if n := len(rows); n > 0 && rows[n-1].Start.Equal(bucket) {
			rows[n-1] = row
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
