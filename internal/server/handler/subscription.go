package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/service"
)

// SubscriptionService defines the methods that the subscription handler
// requires.
type SubscriptionService interface {
	Subscribe(ctx context.Context, holder domain.Principal, seriesID uint32, payAmount int64) (service.SubscribeResult, error)
	Redeem(ctx context.Context, holder domain.Principal, seriesID uint32, claimUnits int64) (int64, error)
	Position(ctx context.Context, seriesID uint32, holder domain.Principal) (domain.HolderPosition, int64, error)
}

// SubscriptionHandler serves subscription and redemption HTTP endpoints. All
// operations act on behalf of the authenticated principal.
type SubscriptionHandler struct {
	subs   SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(subs SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logHandler(logger, "subscription")}
}

type subscribeRequest struct {
	PayAmount int64 `json:"pay_amount"`
}

// Subscribe buys claim units in a series at the current accreted price.
// POST /api/series/{id}/subscribe
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	holder, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.subs.Subscribe(r.Context(), holder, id, req.PayAmount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "subscribe refused",
			slog.Any("series_id", id),
			slog.String("holder", string(holder)),
			slog.Int64("pay_amount", req.PayAmount),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"series_id":    res.SeriesID,
		"holder":       res.Holder,
		"pay_amount":   res.PayAmount,
		"price":        res.Price,
		"minted_units": res.MintedUnits,
	})
}

type redeemRequest struct {
	ClaimUnits int64 `json:"claim_units"`
}

// Redeem burns claim units of a matured series and pays out at par.
// POST /api/series/{id}/redeem
func (h *SubscriptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	holder, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	payout, err := h.subs.Redeem(r.Context(), holder, id, req.ClaimUnits)
	if err != nil {
		h.logger.WarnContext(r.Context(), "redeem refused",
			slog.Any("series_id", id),
			slog.String("holder", string(holder)),
			slog.Int64("claim_units", req.ClaimUnits),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"series_id":   id,
		"holder":      holder,
		"claim_units": req.ClaimUnits,
		"payout":      payout,
	})
}

// Position returns the caller's position in a series: the lifetime subscribed
// units counted against the per-holder cap and the live claim balance.
// GET /api/series/{id}/position
func (h *SubscriptionHandler) Position(w http.ResponseWriter, r *http.Request) {
	holder, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := seriesIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	pos, balance, err := h.subs.Position(r.Context(), id, holder)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"series_id":        id,
		"holder":           holder,
		"subscribed_units": pos.SubscribedUnits,
		"claim_balance":    balance,
	})
}
