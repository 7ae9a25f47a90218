package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	historydomain "github.com/metermate/metermate/internal/history/domain"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	obsmetrics "github.com/metermate/metermate/internal/observability/metrics"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	"github.com/metermate/metermate/pkg/db"
	"github.com/metermate/metermate/pkg/keylock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// clockSkew is the tolerance before a timestamp counts as in the future.
const clockSkew = time.Minute

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      readingdomain.Repository
	MeterRepo meterdomain.Repository
	History   historydomain.Service
	Locks     *keylock.KeyedMutex
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      readingdomain.Repository
	meterRepo meterdomain.Repository
	history   historydomain.Service
	locks     *keylock.KeyedMutex
	metrics   *obsmetrics.Metrics
}

func New(p Params) readingdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("reading.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		meterRepo: p.MeterRepo,
		history:   p.History,
		locks:     p.Locks,
		metrics:   p.Metrics,
	}
}

func (s *Service) Add(ctx context.Context, req readingdomain.AddRequest) (*readingdomain.MutationResult, error) {
	meter, err := s.resolveMeter(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}

	kind, anchor, periodStart, err := validateInput(req.Kind, req.Value, req.Timestamp, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		s.metrics.ReadingRejected(err.Error())
		return nil, err
	}

	release := s.locks.Lock(meter.ID.String())
	defer release()

	if err := s.checkAnchorFree(ctx, meter.ID, anchor, 0); err != nil {
		s.metrics.ReadingRejected(readingdomain.ErrDuplicateAnchor.Error())
		return nil, err
	}

	now := time.Now().UTC()
	reading := &readingdomain.Reading{
		ID:          s.genID.Generate(),
		MeterID:     meter.ID,
		Kind:        kind,
		Value:       req.Value,
		AnchorTS:    anchor,
		PeriodStart: periodStart,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, reading); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: a reading already exists at %s", readingdomain.ErrDuplicateAnchor, anchor.Format(time.RFC3339))
		}
		return nil, err
	}
	s.metrics.ReadingAccepted(string(kind))

	s.log.Info("reading added",
		zap.String("meter_id", meter.ID.String()),
		zap.String("reading_id", reading.ID.String()),
		zap.String("kind", string(kind)),
		zap.Time("anchor_ts", anchor),
	)

	return &readingdomain.MutationResult{
		Reading: toResponse(reading),
		Rebuild: s.recompute(ctx, meter.ID),
	}, nil
}

func (s *Service) Update(ctx context.Context, req readingdomain.UpdateRequest) (*readingdomain.MutationResult, error) {
	meter, err := s.resolveMeter(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}
	readingID, err := readingdomain.ParseID(strings.TrimSpace(req.ReadingID))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}

	release := s.locks.Lock(meter.ID.String())
	defer release()

	reading, err := s.repo.FindByID(ctx, s.db, meter.ID, readingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, readingdomain.ErrNotFound
	}

	value := reading.Value
	if req.Value != nil {
		value = *req.Value
	}

	// Rebuild the full input set from stored state plus the patch, then run it
	// through the same validation as Add.
	var ts, ps, pe *time.Time
	switch reading.Kind {
	case readingdomain.KindInterval:
		ps = reading.PeriodStart
		end := reading.AnchorTS
		pe = &end
		if req.PeriodStart != nil {
			ps = req.PeriodStart
		}
		if req.PeriodEnd != nil {
			pe = req.PeriodEnd
		}
	default:
		at := reading.AnchorTS
		ts = &at
		if req.Timestamp != nil {
			ts = req.Timestamp
		}
	}

	_, anchor, periodStart, err := validateInput(string(reading.Kind), value, ts, ps, pe)
	if err != nil {
		s.metrics.ReadingRejected(err.Error())
		return nil, err
	}

	if !anchor.Equal(reading.AnchorTS.UTC()) {
		if err := s.checkAnchorFree(ctx, meter.ID, anchor, reading.ID); err != nil {
			s.metrics.ReadingRejected(readingdomain.ErrDuplicateAnchor.Error())
			return nil, err
		}
	}

	reading.Value = value
	reading.AnchorTS = anchor
	reading.PeriodStart = periodStart
	if req.Notes != nil {
		reading.Notes = strings.TrimSpace(*req.Notes)
	}
	reading.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, reading); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: a reading already exists at %s", readingdomain.ErrDuplicateAnchor, anchor.Format(time.RFC3339))
		}
		return nil, err
	}

	s.log.Info("reading updated",
		zap.String("meter_id", meter.ID.String()),
		zap.String("reading_id", reading.ID.String()),
	)

	return &readingdomain.MutationResult{
		Reading: toResponse(reading),
		Rebuild: s.recompute(ctx, meter.ID),
	}, nil
}

func (s *Service) Delete(ctx context.Context, meterID, readingID string) (*readingdomain.DeleteResult, error) {
	meter, err := s.resolveMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	id, err := readingdomain.ParseID(strings.TrimSpace(readingID))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}

	release := s.locks.Lock(meter.ID.String())
	defer release()

	n, err := s.repo.Delete(ctx, s.db, meter.ID, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, readingdomain.ErrNotFound
	}

	s.log.Info("reading deleted",
		zap.String("meter_id", meter.ID.String()),
		zap.String("reading_id", id.String()),
	)

	return &readingdomain.DeleteResult{
		ReadingID: id.String(),
		Rebuild:   s.recompute(ctx, meter.ID),
	}, nil
}

func (s *Service) Get(ctx context.Context, meterID, readingID string) (*readingdomain.Response, error) {
	meter, err := s.resolveMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	id, err := readingdomain.ParseID(strings.TrimSpace(readingID))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}

	reading, err := s.repo.FindByID(ctx, s.db, meter.ID, id)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, readingdomain.ErrNotFound
	}
	return toResponse(reading), nil
}

func (s *Service) List(ctx context.Context, req readingdomain.ListRequest) ([]readingdomain.Response, error) {
	meter, err := s.resolveMeter(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}
	if req.Start != nil && req.End != nil && req.End.Before(*req.Start) {
		return nil, readingdomain.ErrInvalidPeriod
	}

	items, err := s.repo.List(ctx, s.db, meter.ID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	resp := make([]readingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// BulkImport validates and stores a batch of readings under one meter lock and
// one rebuild. Invalid items are reported by index and skipped; valid items
// still land.
func (s *Service) BulkImport(ctx context.Context, req readingdomain.BulkImportRequest) (*readingdomain.BulkImportResult, error) {
	meter, err := s.resolveMeter(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}

	release := s.locks.Lock(meter.ID.String())
	defer release()

	result := &readingdomain.BulkImportResult{OperationID: uuid.NewString()}
	seen := make(map[int64]struct{}, len(req.Items))

	for i, item := range req.Items {
		kind, anchor, periodStart, err := validateInput(item.Kind, item.Value, item.Timestamp, item.PeriodStart, item.PeriodEnd)
		if err != nil {
			s.metrics.ReadingRejected(err.Error())
			result.Rejected = append(result.Rejected, readingdomain.RejectedItem{Index: i, Reason: err.Error()})
			continue
		}

		key := anchor.UnixNano()
		if _, dup := seen[key]; dup {
			s.metrics.ReadingRejected(readingdomain.ErrDuplicateAnchor.Error())
			result.Rejected = append(result.Rejected, readingdomain.RejectedItem{
				Index:  i,
				Reason: fmt.Sprintf("%s: batch already carries %s", readingdomain.ErrDuplicateAnchor, anchor.Format(time.RFC3339)),
			})
			continue
		}
		if err := s.checkAnchorFree(ctx, meter.ID, anchor, 0); err != nil {
			s.metrics.ReadingRejected(readingdomain.ErrDuplicateAnchor.Error())
			result.Rejected = append(result.Rejected, readingdomain.RejectedItem{Index: i, Reason: err.Error()})
			continue
		}

		now := time.Now().UTC()
		reading := &readingdomain.Reading{
			ID:          s.genID.Generate(),
			MeterID:     meter.ID,
			Kind:        kind,
			Value:       item.Value,
			AnchorTS:    anchor,
			PeriodStart: periodStart,
			Notes:       strings.TrimSpace(item.Notes),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, s.db, reading); err != nil {
			if db.IsDuplicateKeyErr(err) {
				result.Rejected = append(result.Rejected, readingdomain.RejectedItem{Index: i, Reason: readingdomain.ErrDuplicateAnchor.Error()})
				continue
			}
			return nil, err
		}
		seen[key] = struct{}{}
		s.metrics.ReadingAccepted(string(kind))
		result.Accepted = append(result.Accepted, *toResponse(reading))
	}

	s.log.Info("bulk import finished",
		zap.String("meter_id", meter.ID.String()),
		zap.String("operation_id", result.OperationID),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)),
	)

	if len(result.Accepted) > 0 {
		result.Rebuild = s.recompute(ctx, meter.ID)
	} else {
		result.Rebuild = historydomain.RebuildResult{MeterID: meter.ID.String()}
	}
	return result, nil
}

func (s *Service) DeleteInPeriod(ctx context.Context, req readingdomain.PurgeRequest) (*readingdomain.PurgeResult, error) {
	meter, err := s.resolveMeter(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}
	if req.Start.IsZero() || req.End.IsZero() || req.End.Before(req.Start) {
		return nil, readingdomain.ErrInvalidPeriod
	}

	release := s.locks.Lock(meter.ID.String())
	defer release()

	n, err := s.repo.DeleteInRange(ctx, s.db, meter.ID, req.Start.UTC(), req.End.UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info("readings purged",
		zap.String("meter_id", meter.ID.String()),
		zap.Int64("deleted", n),
	)

	result := &readingdomain.PurgeResult{Deleted: int(n)}
	if n > 0 {
		result.Rebuild = s.recompute(ctx, meter.ID)
	} else {
		result.Rebuild = historydomain.RebuildResult{MeterID: meter.ID.String()}
	}
	return result, nil
}

// recompute runs the rebuild while the caller already holds the meter lock.
// A failed publish never unwinds the mutation; the outcome rides back on the
// response so the caller can retry via the rebuild endpoint.
func (s *Service) recompute(ctx context.Context, meterID snowflake.ID) historydomain.RebuildResult {
	result, err := s.history.Recompute(ctx, meterID)
	if err != nil {
		s.log.Warn("rebuild after mutation failed",
			zap.String("meter_id", meterID.String()),
			zap.Error(err),
		)
	}
	return result
}

func (s *Service) resolveMeter(ctx context.Context, meterID string) (*meterdomain.Meter, error) {
	id, err := meterdomain.ParseID(strings.TrimSpace(meterID))
	if err != nil {
		return nil, readingdomain.ErrInvalidMeter
	}
	meter, err := s.meterRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, readingdomain.ErrInvalidMeter
	}
	return meter, nil
}

func (s *Service) checkAnchorFree(ctx context.Context, meterID snowflake.ID, anchor time.Time, self snowflake.ID) error {
	existing, err := s.repo.FindByAnchor(ctx, s.db, meterID, anchor)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return fmt.Errorf("%w: reading %s already anchored at %s",
			readingdomain.ErrDuplicateAnchor, existing.ID.String(), anchor.Format(time.RFC3339))
	}
	return nil
}

func validateInput(kind string, value float64, ts, periodStart, periodEnd *time.Time) (readingdomain.Kind, time.Time, *time.Time, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "", time.Time{}, nil, readingdomain.ErrInvalidValue
	}

	now := time.Now().UTC()

	switch readingdomain.Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case readingdomain.KindPoint:
		anchor := now
		if ts != nil {
			anchor = ts.UTC()
		}
		if anchor.After(now.Add(clockSkew)) {
			return "", time.Time{}, nil, readingdomain.ErrFutureTimestamp
		}
		return readingdomain.KindPoint, anchor, nil, nil

	case readingdomain.KindInterval:
		if periodStart == nil || periodEnd == nil {
			return "", time.Time{}, nil, readingdomain.ErrInvalidPeriod
		}
		start := periodStart.UTC()
		end := periodEnd.UTC()
		if !start.Before(end) {
			return "", time.Time{}, nil, readingdomain.ErrInvalidPeriod
		}
		if end.After(now.Add(clockSkew)) {
			return "", time.Time{}, nil, readingdomain.ErrFutureTimestamp
		}
		return readingdomain.KindInterval, end, &start, nil

	default:
		return "", time.Time{}, nil, readingdomain.ErrInvalidKind
	}
}

func toResponse(r *readingdomain.Reading) *readingdomain.Response {
	resp := &readingdomain.Response{
		ID:        r.ID.String(),
		MeterID:   r.MeterID.String(),
		Kind:      string(r.Kind),
		Value:     r.Value,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	anchor := r.AnchorTS
	if r.Kind == readingdomain.KindInterval {
		resp.PeriodStart = r.PeriodStart
		resp.PeriodEnd = &anchor
	} else {
		resp.Timestamp = &anchor
	}
	return resp
}
