package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
)

// SeriesService owns the series lifecycle (create, activate, mature, close)
// and the deterministic price query. Only the issuer principal may create,
// activate, or close a series; maturing is time-driven and open to anyone.
type SeriesService struct {
	series  domain.SeriesStore
	issuer  domain.Principal
	par     int64
	clock   Clock
	locker  domain.OpLocker
	emitter emitter
	logger  *slog.Logger
}

// NewSeriesService creates a SeriesService. bus and audit may be nil.
func NewSeriesService(
	series domain.SeriesStore,
	issuer domain.Principal,
	clock Clock,
	locker domain.OpLocker,
	bus domain.EventBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SeriesService {
	logger = logger.With(slog.String("component", "series_service"))
	return &SeriesService{
		series:  series,
		issuer:  issuer,
		par:     fixedpoint.Par,
		clock:   clock,
		locker:  locker,
		emitter: emitter{bus: bus, audit: audit, clock: clock, logger: logger},
		logger:  logger,
	}
}

// CreateSeriesParams carries the issuer-chosen parameters of a new series.
type CreateSeriesParams struct {
	SeriesID     uint32
	IssueDate    time.Time
	MaturityDate time.Time
	IssuePrice   int64
	CapTotal     int64
	CapPerHolder int64
}

// CreateSeries validates the parameters and stores a new series in Upcoming.
func (s *SeriesService) CreateSeries(ctx context.Context, caller domain.Principal, p CreateSeriesParams) error {
	if caller != s.issuer {
		return fmt.Errorf("service: create series: %w", domain.ErrUnauthorized)
	}
	if !p.MaturityDate.After(p.IssueDate) {
		return fmt.Errorf("service: create series %d: %w", p.SeriesID, domain.ErrInvalidTimestamp)
	}
	if p.IssuePrice <= 0 || p.IssuePrice > s.par {
		return fmt.Errorf("service: create series %d: %w", p.SeriesID, domain.ErrInvalidIssuePrice)
	}
	if p.CapTotal <= 0 || p.CapPerHolder <= 0 || p.CapPerHolder > p.CapTotal {
		return fmt.Errorf("service: create series %d: %w", p.SeriesID, domain.ErrInvalidCapAmounts)
	}

	return withOpLock(ctx, s.locker, func() error {
		now := s.clock.Now()
		row := domain.Series{
			ID:           p.SeriesID,
			IssueDate:    p.IssueDate,
			MaturityDate: p.MaturityDate,
			ParUnit:      s.par,
			IssuePrice:   p.IssuePrice,
			CapTotal:     p.CapTotal,
			CapPerHolder: p.CapPerHolder,
			Status:       domain.SeriesUpcoming,
			CreatedAt:    now,
		}
		if err := s.series.Create(ctx, row); err != nil {
			return fmt.Errorf("service: create series %d: %w", p.SeriesID, err)
		}

		s.logger.InfoContext(ctx, "series created",
			slog.Uint64("series_id", uint64(p.SeriesID)),
			slog.Int64("issue_price", p.IssuePrice),
			slog.Int64("cap_total", p.CapTotal),
			slog.Int64("cap_per_holder", p.CapPerHolder),
		)
		s.emitter.emit(ctx, domain.EventSeriesCreated, map[string]any{
			"series_id":      p.SeriesID,
			"issue_date":     p.IssueDate.Unix(),
			"maturity_date":  p.MaturityDate.Unix(),
			"issue_price":    p.IssuePrice,
			"cap_total":      p.CapTotal,
			"cap_per_holder": p.CapPerHolder,
		})
		return nil
	})
}

// ActivateSeries transitions an Upcoming series to Active, opening it for
// subscriptions.
func (s *SeriesService) ActivateSeries(ctx context.Context, caller domain.Principal, seriesID uint32) error {
	if caller != s.issuer {
		return fmt.Errorf("service: activate series: %w", domain.ErrUnauthorized)
	}

	return withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: activate series %d: %w", seriesID, err)
		}
		if row.Status != domain.SeriesUpcoming {
			return fmt.Errorf("service: activate series %d from %s: %w", seriesID, row.Status, domain.ErrInvalidStatusTransition)
		}

		row.Status = domain.SeriesActive
		if err := s.series.Update(ctx, row); err != nil {
			return fmt.Errorf("service: activate series %d: %w", seriesID, err)
		}

		s.logger.InfoContext(ctx, "series activated", slog.Uint64("series_id", uint64(seriesID)))
		s.emitter.emit(ctx, domain.EventSeriesActivated, map[string]any{"series_id": seriesID})
		return nil
	})
}

// MatureSeries advances the stored status of an Active series whose maturity
// date has passed. Permission checks never require this to have been called;
// it exists so the stored row catches up for reporting. Anyone may call it.
func (s *SeriesService) MatureSeries(ctx context.Context, seriesID uint32) error {
	return withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: mature series %d: %w", seriesID, err)
		}
		if s.clock.Now().Before(row.MaturityDate) {
			return fmt.Errorf("service: mature series %d: %w", seriesID, domain.ErrSeriesNotMatured)
		}
		if row.Status != domain.SeriesActive {
			return fmt.Errorf("service: mature series %d from %s: %w", seriesID, row.Status, domain.ErrInvalidStatusTransition)
		}

		row.Status = domain.SeriesMatured
		if err := s.series.Update(ctx, row); err != nil {
			return fmt.Errorf("service: mature series %d: %w", seriesID, err)
		}

		s.logger.InfoContext(ctx, "series matured", slog.Uint64("series_id", uint64(seriesID)))
		s.emitter.emit(ctx, domain.EventSeriesMatured, map[string]any{"series_id": seriesID})
		return nil
	})
}

// CloseSeries moves a matured series into the terminal Closed state.
func (s *SeriesService) CloseSeries(ctx context.Context, caller domain.Principal, seriesID uint32) error {
	if caller != s.issuer {
		return fmt.Errorf("service: close series: %w", domain.ErrUnauthorized)
	}

	return withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: close series %d: %w", seriesID, err)
		}
		if row.StatusAt(s.clock.Now()) != domain.SeriesMatured {
			return fmt.Errorf("service: close series %d from %s: %w", seriesID, row.Status, domain.ErrInvalidStatusTransition)
		}

		row.Status = domain.SeriesClosed
		if err := s.series.Update(ctx, row); err != nil {
			return fmt.Errorf("service: close series %d: %w", seriesID, err)
		}

		s.logger.InfoContext(ctx, "series closed", slog.Uint64("series_id", uint64(seriesID)))
		s.emitter.emit(ctx, domain.EventSeriesClosed, map[string]any{"series_id": seriesID})
		return nil
	})
}

// CurrentPrice returns the accreted price of a series at time t. It is a pure
// read, independent of the series status, so it can preview prices before
// activation.
func (s *SeriesService) CurrentPrice(ctx context.Context, seriesID uint32, t time.Time) (int64, error) {
	row, err := s.series.Get(ctx, seriesID)
	if err != nil {
		return 0, fmt.Errorf("service: current price for series %d: %w", seriesID, err)
	}
	return fixedpoint.PriceAt(row.IssuePrice, row.ParUnit, row.IssueDate, row.MaturityDate, t), nil
}

// Get returns a series row.
func (s *SeriesService) Get(ctx context.Context, seriesID uint32) (domain.Series, error) {
	row, err := s.series.Get(ctx, seriesID)
	if err != nil {
		return domain.Series{}, fmt.Errorf("service: get series %d: %w", seriesID, err)
	}
	return row, nil
}

// List returns series rows, newest first.
func (s *SeriesService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Series, error) {
	rows, err := s.series.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list series: %w", err)
	}
	return rows, nil
}
