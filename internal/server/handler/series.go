package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/service"
)

// SeriesService defines the methods that the series handler requires.
type SeriesService interface {
	CreateSeries(ctx context.Context, caller domain.Principal, p service.CreateSeriesParams) error
	ActivateSeries(ctx context.Context, caller domain.Principal, seriesID uint32) error
	MatureSeries(ctx context.Context, seriesID uint32) error
	CloseSeries(ctx context.Context, caller domain.Principal, seriesID uint32) error
	CurrentPrice(ctx context.Context, seriesID uint32, t time.Time) (int64, error)
	Get(ctx context.Context, seriesID uint32) (domain.Series, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Series, error)
}

// PriceCache is an optional read-through cache for the price endpoint.
type PriceCache interface {
	GetPrice(ctx context.Context, seriesID uint32) (int64, time.Time, error)
	SetPrice(ctx context.Context, seriesID uint32, price int64, ts time.Time) error
}

// SeriesHandler serves series lifecycle and pricing HTTP endpoints.
type SeriesHandler struct {
	series SeriesService
	prices PriceCache
	logger *slog.Logger
}

// NewSeriesHandler creates a SeriesHandler. prices may be nil, in which case
// the price endpoint always computes from the series parameters.
func NewSeriesHandler(series SeriesService, prices PriceCache, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{series: series, prices: prices, logger: logHandler(logger, "series")}
}

type seriesResponse struct {
	ID                     uint32 `json:"id"`
	IssueDate              int64  `json:"issue_date"`
	MaturityDate           int64  `json:"maturity_date"`
	ParUnit                int64  `json:"par_unit"`
	IssuePrice             int64  `json:"issue_price"`
	CapTotal               int64  `json:"cap_total"`
	CapPerHolder           int64  `json:"cap_per_holder"`
	MintedTotal            int64  `json:"minted_total"`
	SubscriptionsCollected int64  `json:"subscriptions_collected"`
	Status                 string `json:"status"`
}

func toSeriesResponse(s domain.Series, now time.Time) seriesResponse {
	return seriesResponse{
		ID:                     s.ID,
		IssueDate:              s.IssueDate.Unix(),
		MaturityDate:           s.MaturityDate.Unix(),
		ParUnit:                s.ParUnit,
		IssuePrice:             s.IssuePrice,
		CapTotal:               s.CapTotal,
		CapPerHolder:           s.CapPerHolder,
		MintedTotal:            s.MintedTotal,
		SubscriptionsCollected: s.SubscriptionsCollected,
		Status:                 string(s.StatusAt(now)),
	}
}

type createSeriesRequest struct {
	SeriesID     uint32 `json:"series_id"`
	IssueDate    int64  `json:"issue_date"`
	MaturityDate int64  `json:"maturity_date"`
	IssuePrice   int64  `json:"issue_price"`
	CapTotal     int64  `json:"cap_total"`
	CapPerHolder int64  `json:"cap_per_holder"`
}

// Create registers a new series in the Upcoming state.
// POST /api/series
func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createSeriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	params := service.CreateSeriesParams{
		SeriesID:     req.SeriesID,
		IssueDate:    time.Unix(req.IssueDate, 0).UTC(),
		MaturityDate: time.Unix(req.MaturityDate, 0).UTC(),
		IssuePrice:   req.IssuePrice,
		CapTotal:     req.CapTotal,
		CapPerHolder: req.CapPerHolder,
	}
	if err := h.series.CreateSeries(r.Context(), caller, params); err != nil {
		h.logger.WarnContext(r.Context(), "create series refused",
			slog.Any("series_id", req.SeriesID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	series, err := h.series.Get(r.Context(), req.SeriesID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeriesResponse(series, time.Now().UTC()))
}

// Activate opens a series for subscriptions.
// POST /api/series/{id}/activate
func (h *SeriesHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "activate", func(ctx context.Context, caller domain.Principal, id uint32) error {
		return h.series.ActivateSeries(ctx, caller, id)
	})
}

// Mature records a matured series. Open to any authenticated principal; the
// service refuses it before the maturity date.
// POST /api/series/{id}/mature
func (h *SeriesHandler) Mature(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mature", func(ctx context.Context, _ domain.Principal, id uint32) error {
		return h.series.MatureSeries(ctx, id)
	})
}

// Close moves a matured series into the terminal Closed state.
// POST /api/series/{id}/close
func (h *SeriesHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close", func(ctx context.Context, caller domain.Principal, id uint32) error {
		return h.series.CloseSeries(ctx, caller, id)
	})
}

func (h *SeriesHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(ctx context.Context, caller domain.Principal, id uint32) error,
) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	if err := op(r.Context(), caller, id); err != nil {
		h.logger.WarnContext(r.Context(), "series transition refused",
			slog.String("transition", name),
			slog.Any("series_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	series, err := h.series.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(series, time.Now().UTC()))
}

// List returns all series, paginated.
// GET /api/series
func (h *SeriesHandler) List(w http.ResponseWriter, r *http.Request) {
	series, err := h.series.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list series failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list series")
		return
	}

	now := time.Now().UTC()
	out := make([]seriesResponse, 0, len(series))
	for _, s := range series {
		out = append(out, toSeriesResponse(s, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": out,
		"count":  len(out),
	})
}

// Get returns a single series by id.
// GET /api/series/{id}
func (h *SeriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	series, err := h.series.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(series, time.Now().UTC()))
}

// Price returns the current accreted unit price of a series. Served from the
// price cache when fresh, otherwise computed and written back.
// GET /api/series/{id}/price
func (h *SeriesHandler) Price(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	if h.prices != nil {
		if price, ts, err := h.prices.GetPrice(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"series_id": id,
				"price":     price,
				"as_of":     ts.Unix(),
				"cached":    true,
			})
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "price cache read failed",
				slog.Any("series_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	now := time.Now().UTC()
	price, err := h.series.CurrentPrice(r.Context(), id, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.prices != nil {
		if err := h.prices.SetPrice(r.Context(), id, price, now); err != nil {
			h.logger.WarnContext(r.Context(), "price cache write failed",
				slog.Any("series_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"series_id": id,
		"price":     price,
		"as_of":     now.Unix(),
		"cached":    false,
	})
}
