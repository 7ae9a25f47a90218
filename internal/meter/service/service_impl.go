package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	"github.com/metermate/metermate/pkg/db"
	"github.com/metermate/metermate/pkg/keylock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        meterdomain.Repository
	ReadingRepo readingdomain.Repository
	Ingestor    recorderdomain.Ingestor
	Locks       *keylock.KeyedMutex
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        meterdomain.Repository
	readingRepo readingdomain.Repository
	ingestor    recorderdomain.Ingestor
	locks       *keylock.KeyedMutex
}

func New(p Params) meterdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("meter.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		readingRepo: p.ReadingRepo,
		ingestor:    p.Ingestor,
		locks:       p.Locks,
	}
}

func (s *Service) Create(ctx context.Context, req meterdomain.CreateRequest) (*meterdomain.Response, error) {
	entityID := normalizeEntityID(req.EntityID)
	if entityID == "" {
		return nil, meterdomain.ErrInvalidEntityID
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, meterdomain.ErrInvalidName
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		return nil, meterdomain.ErrInvalidUnit
	}

	deviceClass := strings.TrimSpace(req.DeviceClass)
	if deviceClass == "" {
		deviceClass = "energy"
	}

	offset := 0.0
	if req.InitialOffset != nil {
		offset = *req.InitialOffset
		if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
			return nil, meterdomain.ErrInvalidOffset
		}
	}

	existing, err := s.repo.FindByEntityID(ctx, s.db, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, meterdomain.ErrDuplicateEntity
	}

	now := time.Now().UTC()
	m := &meterdomain.Meter{
		ID:            s.genID.Generate(),
		EntityID:      entityID,
		Name:          name,
		Unit:          unit,
		DeviceClass:   deviceClass,
		InitialOffset: offset,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, meterdomain.ErrDuplicateEntity
		}
		return nil, err
	}

	s.log.Info("meter created",
		zap.String("meter_id", m.ID.String()),
		zap.String("entity_id", m.EntityID),
	)
	return s.toResponse(m), nil
}

func (s *Service) List(ctx context.Context) ([]meterdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]meterdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *s.toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*meterdomain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(item), nil
}

func (s *Service) GetByEntityID(ctx context.Context, entityID string) (*meterdomain.Response, error) {
	item, err := s.repo.FindByEntityID(ctx, s.db, normalizeEntityID(entityID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, meterdomain.ErrNotFound
	}
	return s.toResponse(item), nil
}

func (s *Service) Rename(ctx context.Context, req meterdomain.RenameRequest) (*meterdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, meterdomain.ErrInvalidName
	}

	item, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	item.Name = name
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Rename(ctx, s.db, item); err != nil {
		return nil, err
	}

	return s.toResponse(item), nil
}

// Delete removes the whole meter configuration: the meter, its readings, and
// the statistic series published under its id. It holds the meter's writer
// lock so an in-flight reading mutation or rebuild cannot republish
// statistics for the dropped meter.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	release := s.locks.Lock(item.ID.String())
	defer release()

	if err := s.ingestor.Drop(ctx, recorderdomain.StatisticID(item.EntityID)); err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.readingRepo.DeleteAllForMeter(ctx, tx, item.ID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, item.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("meter deleted",
		zap.String("meter_id", item.ID.String()),
		zap.String("entity_id", item.EntityID),
	)
	return nil
}

func (s *Service) State(ctx context.Context, id string) (*meterdomain.StateResponse, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	latest, err := s.ingestor.Latest(ctx, recorderdomain.StatisticID(item.EntityID))
	if err != nil {
		return nil, err
	}

	count, err := s.readingRepo.Count(ctx, s.db, item.ID)
	if err != nil {
		return nil, err
	}

	resp := &meterdomain.StateResponse{
		MeterID:      item.ID.String(),
		EntityID:     item.EntityID,
		Unit:         item.Unit,
		ReadingCount: count,
	}
	if latest == nil {
		resp.State = meterdomain.StateUnknown
		resp.Value = item.InitialOffset
		return resp, nil
	}

	at := time.Unix(latest.StartTS, 0).UTC()
	resp.State = meterdomain.StateOK
	resp.Value = latest.Sum
	resp.LastUpdated = &at
	return resp, nil
}

func (s *Service) find(ctx context.Context, id string) (*meterdomain.Meter, error) {
	meterID, err := meterdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, meterdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, meterID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, meterdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) toResponse(m *meterdomain.Meter) *meterdomain.Response {
	return &meterdomain.Response{
		ID:            m.ID.String(),
		EntityID:      m.EntityID,
		Name:          m.Name,
		Unit:          m.Unit,
		DeviceClass:   m.DeviceClass,
		InitialOffset: m.InitialOffset,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func normalizeEntityID(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(v, "sensor.")
}
