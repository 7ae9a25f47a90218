package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	historydomain "github.com/metermate/metermate/internal/history/domain"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	obsmetrics "github.com/metermate/metermate/internal/observability/metrics"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	"github.com/metermate/metermate/internal/statistics/engine"
	"github.com/metermate/metermate/internal/statistics/publisher"
	"github.com/metermate/metermate/pkg/keylock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	ReadingRepo readingdomain.Repository
	MeterRepo   meterdomain.Repository
	Engine      *engine.Engine
	Publisher   *publisher.Publisher
	Locks       *keylock.KeyedMutex
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	readingRepo readingdomain.Repository
	meterRepo   meterdomain.Repository
	engine      *engine.Engine
	publisher   *publisher.Publisher
	locks       *keylock.KeyedMutex
	metrics     *obsmetrics.Metrics
}

func New(p Params) historydomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("history.service"),
		readingRepo: p.ReadingRepo,
		meterRepo:   p.MeterRepo,
		engine:      p.Engine,
		publisher:   p.Publisher,
		locks:       p.Locks,
		metrics:     p.Metrics,
	}
}

func (s *Service) Rebuild(ctx context.Context, meterID string) (historydomain.RebuildResult, error) {
	id, err := meterdomain.ParseID(strings.TrimSpace(meterID))
	if err != nil {
		return historydomain.RebuildResult{}, meterdomain.ErrInvalidID
	}

	release := s.locks.Lock(id.String())
	defer release()

	return s.Recompute(ctx, id)
}

// Recompute derives the complete statistic series from the stored readings
// and republishes it wholesale. It is idempotent: with no intervening
// mutation, two passes publish identical series.
func (s *Service) Recompute(ctx context.Context, meterID snowflake.ID) (historydomain.RebuildResult, error) {
	start := time.Now()
	result := historydomain.RebuildResult{MeterID: meterID.String()}

	meter, err := s.meterRepo.FindByID(ctx, s.db, meterID)
	if err != nil {
		return result, err
	}
	if meter == nil {
		return result, meterdomain.ErrNotFound
	}

	readings, err := s.readingRepo.List(ctx, s.db, meterID, nil, nil)
	if err != nil {
		return result, err
	}

	points, discontinuities := s.engine.Compile(readings, meter.InitialOffset)
	for _, d := range discontinuities {
		result.Errors = append(result.Errors, historydomain.ItemError{
			ReadingID: d.ReadingID.String(),
			Reason:    d.Reason(),
		})
	}

	published, err := s.publisher.Publish(ctx, publisher.Request{
		StatisticID: recorderdomain.StatisticID(meter.EntityID),
		Name:        meter.Name,
		Unit:        meter.Unit,
		Points:      points,
	})
	if err != nil {
		// The triggering mutation stands; only the derived statistics are
		// stale. Re-invoking Rebuild is the retry path.
		result.Retryable = true
		result.Errors = append(result.Errors, historydomain.ItemError{Reason: err.Error()})
		s.metrics.PublishFailure()
		s.metrics.ObserveRebuild("failed", time.Since(start), 0)
		s.log.Warn("statistics publish failed",
			zap.String("meter_id", meterID.String()),
			zap.Error(err),
		)
		return result, err
	}

	result.PointsPublished = published

	outcome := "ok"
	if len(result.Errors) > 0 {
		outcome = "partial"
	}
	s.metrics.ObserveRebuild(outcome, time.Since(start), published)

	s.log.Info("history rebuilt",
		zap.String("meter_id", meterID.String()),
		zap.Int("readings", len(readings)),
		zap.Int("points_published", published),
		zap.Int("discontinuities", len(discontinuities)),
	)
	return result, nil
}
