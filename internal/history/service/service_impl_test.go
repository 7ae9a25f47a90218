package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	meterrepo "github.com/metermate/metermate/internal/meter/repository"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	readingrepo "github.com/metermate/metermate/internal/reading/repository"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	recorderrepo "github.com/metermate/metermate/internal/recorder/repository"
	statsdomain "github.com/metermate/metermate/internal/statistics/domain"
	"github.com/metermate/metermate/internal/statistics/engine"
	"github.com/metermate/metermate/internal/statistics/publisher"
	"github.com/metermate/metermate/pkg/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      *Service
	ingestor recorderdomain.Ingestor
	readings readingdomain.Repository
	meters   meterdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&meterdomain.Meter{},
		&readingdomain.Reading{},
		&recorderdomain.Metadata{},
		&recorderdomain.StatisticRow{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	ingestor := recorderrepo.Provide(recorderrepo.Params{DB: db, Log: log, GenID: node})
	readings := readingrepo.Provide()
	meters := meterrepo.Provide()

	svc := New(Params{
		DB:          db,
		Log:         log,
		ReadingRepo: readings,
		MeterRepo:   meters,
		Engine:      engine.New(statsdomain.PolicyClamp),
		Publisher:   publisher.New(publisher.Params{Log: log, Ingestor: ingestor}),
		Locks:       keylock.New(),
	}).(*Service)

	return &fixture{db: db, node: node, svc: svc, ingestor: ingestor, readings: readings, meters: meters}
}

func (f *fixture) createMeter(t *testing.T, entityID string, offset float64) *meterdomain.Meter {
	t.Helper()

	now := time.Now().UTC()
	m := &meterdomain.Meter{
		ID:            f.node.Generate(),
		EntityID:      entityID,
		Name:          "Gas Meter",
		Unit:          "m³",
		DeviceClass:   "gas",
		InitialOffset: offset,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.meters.Insert(context.Background(), f.db, m))
	return m
}

func (f *fixture) addInterval(t *testing.T, meterID snowflake.ID, periodStart, periodEnd time.Time, value float64) snowflake.ID {
	t.Helper()

	now := time.Now().UTC()
	r := &readingdomain.Reading{
		ID:          f.node.Generate(),
		MeterID:     meterID,
		Kind:        readingdomain.KindInterval,
		Value:       value,
		AnchorTS:    periodEnd,
		PeriodStart: &periodStart,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.readings.Insert(context.Background(), f.db, r))
	return r.ID
}

func (f *fixture) series(t *testing.T, statisticID string) []recorderdomain.StatisticRow {
	t.Helper()

	var rows []recorderdomain.StatisticRow
	err := f.db.Raw(
		`SELECT s.id, s.metadata_id, s.start_ts, s.state, s.sum, s.created_at
		 FROM statistics s
		 JOIN statistics_meta m ON m.id = s.metadata_id
		 WHERE m.statistic_id = ?
		 ORDER BY s.start_ts ASC`,
		statisticID,
	).Scan(&rows).Error
	require.NoError(t, err)
	return rows
}

func day(t *testing.T, d int) time.Time {
	t.Helper()
	return time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestRebuildPublishesCumulativeSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMeter(t, "gas_meter", 100)
	f.addInterval(t, m.ID, day(t, 1), day(t, 2), 5)
	f.addInterval(t, m.ID, day(t, 2), day(t, 3), 7)
	f.addInterval(t, m.ID, day(t, 3), day(t, 4), 3)

	result, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)

	assert.Equal(t, m.ID.String(), result.MeterID)
	assert.Equal(t, 3, result.PointsPublished)
	assert.Empty(t, result.Errors)
	assert.False(t, result.Retryable)

	rows := f.series(t, "metermate:gas_meter")
	require.Len(t, rows, 3)
	assert.Equal(t, 105.0, rows[0].Sum)
	assert.Equal(t, 112.0, rows[1].Sum)
	assert.Equal(t, 115.0, rows[2].Sum)
	assert.Equal(t, day(t, 2).Unix(), rows[0].StartTS)
}

func TestRebuildAfterDeleteShiftsLaterTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMeter(t, "water", 0)
	f.addInterval(t, m.ID, day(t, 1), day(t, 2), 10)
	middle := f.addInterval(t, m.ID, day(t, 2), day(t, 3), 20)
	f.addInterval(t, m.ID, day(t, 3), day(t, 4), 30)

	_, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)

	n, err := f.readings.Delete(ctx, f.db, m.ID, middle)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	result, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, result.PointsPublished)

	rows := f.series(t, "metermate:water")
	require.Len(t, rows, 2)
	assert.Equal(t, 10.0, rows[0].Sum)
	assert.Equal(t, 40.0, rows[1].Sum)
}

func TestRebuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMeter(t, "power", 50)
	f.addInterval(t, m.ID, day(t, 1), day(t, 2), 12)
	f.addInterval(t, m.ID, day(t, 2), day(t, 3), 8)

	first, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)
	firstRows := f.series(t, "metermate:power")

	second, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)
	secondRows := f.series(t, "metermate:power")

	assert.Equal(t, first.PointsPublished, second.PointsPublished)
	require.Len(t, secondRows, len(firstRows))
	for i := range firstRows {
		assert.Equal(t, firstRows[i].StartTS, secondRows[i].StartTS)
		assert.Equal(t, firstRows[i].Sum, secondRows[i].Sum)
	}
}

func TestRebuildWithNoReadingsClearsSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMeter(t, "heat", 0)
	f.addInterval(t, m.ID, day(t, 1), day(t, 2), 4)

	_, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)
	require.Len(t, f.series(t, "metermate:heat"), 1)

	_, err = f.readings.DeleteAllForMeter(ctx, f.db, m.ID)
	require.NoError(t, err)

	result, err := f.svc.Rebuild(ctx, m.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, result.PointsPublished)
	assert.Empty(t, f.series(t, "metermate:heat"))
}

func TestRebuildUnknownMeter(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Rebuild(context.Background(), f.node.Generate().String())
	assert.ErrorIs(t, err, meterdomain.ErrNotFound)
}

func TestRebuildRejectsMalformedID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Rebuild(context.Background(), "not-a-meter")
	assert.ErrorIs(t, err, meterdomain.ErrInvalidID)
}

type failingIngestor struct {
	recorderdomain.Ingestor
}

func (f *failingIngestor) ReplaceSeries(ctx context.Context, statisticID string, points []recorderdomain.SeriesPoint) (int, error) {
	return 0, errors.New("recorder unavailable")
}

func TestRebuildSurfacesPublishFailureAsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMeter(t, "broken", 0)
	f.addInterval(t, m.ID, day(t, 1), day(t, 2), 9)

	f.svc.publisher = publisher.New(publisher.Params{
		Log:      zap.NewNop(),
		Ingestor: &failingIngestor{Ingestor: f.ingestor},
	})

	result, err := f.svc.Rebuild(ctx, m.ID.String())
	require.Error(t, err)
	assert.ErrorIs(t, err, statsdomain.ErrPublishFailure)
	assert.True(t, result.Retryable)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1].Reason, "replace series")
}
