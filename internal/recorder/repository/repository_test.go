package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newStore(t *testing.T) recorderdomain.Ingestor {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&recorderdomain.Metadata{}, &recorderdomain.StatisticRow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return Provide(Params{DB: db, Log: zap.NewNop(), GenID: node})
}

func meta(statisticID string) recorderdomain.Metadata {
	return recorderdomain.Metadata{
		StatisticID: statisticID,
		Src:         recorderdomain.Source,
		Name:        "Main Electricity",
		Unit:        "kWh",
		HasSum:      true,
	}
}

func TestEnsureMetadataIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.EnsureMetadata(ctx, meta("metermate:main_electricity"))
	require.NoError(t, err)

	second, err := store.EnsureMetadata(ctx, meta("metermate:main_electricity"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReplaceSeriesSwapsCompleteSeries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.EnsureMetadata(ctx, meta("metermate:gas"))
	require.NoError(t, err)

	t0 := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	n, err := store.ReplaceSeries(ctx, "metermate:gas", []recorderdomain.SeriesPoint{
		{Start: t0, Sum: 100},
		{Start: t0.Add(time.Hour), Sum: 150},
		{Start: t0.Add(2 * time.Hour), Sum: 175},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Republishing a shorter series must not leave the old third point behind.
	n, err = store.ReplaceSeries(ctx, "metermate:gas", []recorderdomain.SeriesPoint{
		{Start: t0, Sum: 100},
		{Start: t0.Add(time.Hour), Sum: 150},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := store.Latest(ctx, "metermate:gas")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 150.0, latest.Sum)
	assert.Equal(t, t0.Add(time.Hour).Unix(), latest.StartTS)
}

func TestReplaceSeriesEmptyClearsSeries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.EnsureMetadata(ctx, meta("metermate:water"))
	require.NoError(t, err)

	t0 := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err = store.ReplaceSeries(ctx, "metermate:water", []recorderdomain.SeriesPoint{{Start: t0, Sum: 42}})
	require.NoError(t, err)

	n, err := store.ReplaceSeries(ctx, "metermate:water", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	latest, err := store.Latest(ctx, "metermate:water")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestReplaceSeriesUnknownStatistic(t *testing.T) {
	store := newStore(t)

	_, err := store.ReplaceSeries(context.Background(), "metermate:missing", nil)
	assert.ErrorIs(t, err, recorderdomain.ErrUnknownStatistic)
}

func TestDropRemovesSeriesAndMetadata(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.EnsureMetadata(ctx, meta("metermate:heat"))
	require.NoError(t, err)

	t0 := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err = store.ReplaceSeries(ctx, "metermate:heat", []recorderdomain.SeriesPoint{{Start: t0, Sum: 9}})
	require.NoError(t, err)

	require.NoError(t, store.Drop(ctx, "metermate:heat"))

	latest, err := store.Latest(ctx, "metermate:heat")
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = store.ReplaceSeries(ctx, "metermate:heat", nil)
	assert.ErrorIs(t, err, recorderdomain.ErrUnknownStatistic)
}
