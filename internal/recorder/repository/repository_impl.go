package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func Provide(p Params) recorderdomain.Ingestor {
	return &store{
		db:    p.DB,
		log:   p.Log.Named("recorder.store"),
		genID: p.GenID,
	}
}

func (s *store) EnsureMetadata(ctx context.Context, meta recorderdomain.Metadata) (snowflake.ID, error) {
	existing, err := s.findMetadata(ctx, s.db, meta.StatisticID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.Unit != meta.Unit || existing.Name != meta.Name {
			err := s.db.WithContext(ctx).Exec(
				`UPDATE statistics_meta SET name = ?, unit = ?, updated_at = ? WHERE id = ?`,
				meta.Name,
				meta.Unit,
				time.Now().UTC(),
				existing.ID,
			).Error
			if err != nil {
				return 0, err
			}
		}
		return existing.ID, nil
	}

	now := time.Now().UTC()
	id := s.genID.Generate()
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO statistics_meta (id, statistic_id, source, name, unit, has_sum, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		meta.StatisticID,
		meta.Src,
		meta.Name,
		meta.Unit,
		meta.HasSum,
		now,
		now,
	).Error
	if err != nil {
		return 0, err
	}

	s.log.Debug("registered statistic metadata", zap.String("statistic_id", meta.StatisticID))
	return id, nil
}

func (s *store) ReplaceSeries(ctx context.Context, statisticID string, points []recorderdomain.SeriesPoint) (int, error) {
	var published int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := s.findMetadata(ctx, tx, statisticID)
		if err != nil {
			return err
		}
		if meta == nil {
			return recorderdomain.ErrUnknownStatistic
		}

		if err := tx.Exec(`DELETE FROM statistics WHERE metadata_id = ?`, meta.ID).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, p := range points {
			err := tx.Exec(
				`INSERT INTO statistics (id, metadata_id, start_ts, state, sum, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				s.genID.Generate(),
				meta.ID,
				p.Start.UTC().Unix(),
				p.State,
				p.Sum,
				now,
			).Error
			if err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (s *store) Latest(ctx context.Context, statisticID string) (*recorderdomain.StatisticRow, error) {
	var row recorderdomain.StatisticRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT st.id, st.metadata_id, st.start_ts, st.state, st.sum, st.created_at
		 FROM statistics st
		 JOIN statistics_meta sm ON sm.id = st.metadata_id
		 WHERE sm.statistic_id = ?
		 ORDER BY st.start_ts DESC
		 LIMIT 1`,
		statisticID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *store) Drop(ctx context.Context, statisticID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := s.findMetadata(ctx, tx, statisticID)
		if err != nil {
			return err
		}
		if meta == nil {
			return nil
		}
		if err := tx.Exec(`DELETE FROM statistics WHERE metadata_id = ?`, meta.ID).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM statistics_meta WHERE id = ?`, meta.ID).Error
	})
}

func (s *store) findMetadata(ctx context.Context, db *gorm.DB, statisticID string) (*recorderdomain.Metadata, error) {
	var meta recorderdomain.Metadata
	err := db.WithContext(ctx).Raw(
		`SELECT id, statistic_id, source, name, unit, has_sum, created_at, updated_at
		 FROM statistics_meta WHERE statistic_id = ?`,
		statisticID,
	).Scan(&meta).Error
	if err != nil {
		return nil, err
	}
	if meta.ID == 0 {
		return nil, nil
	}
	return &meta, nil
}
