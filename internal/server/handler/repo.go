package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// RepoService defines the methods that the repo handler requires.
type RepoService interface {
	OpenRepo(ctx context.Context, borrower domain.Principal, seriesID uint32, collateralUnits, desiredCashOut int64, deadline time.Time) (uint64, error)
	CloseRepo(ctx context.Context, positionID uint64, payer domain.Principal) error
	ClaimDefault(ctx context.Context, positionID uint64, caller domain.Principal) error
	Get(ctx context.Context, positionID uint64) (domain.RepoPosition, error)
	ListByBorrower(ctx context.Context, borrower domain.Principal, opts domain.ListOpts) ([]domain.RepoPosition, error)
}

// RepoHandler serves repo position HTTP endpoints.
type RepoHandler struct {
	repos  RepoService
	logger *slog.Logger
}

// NewRepoHandler creates a RepoHandler.
func NewRepoHandler(repos RepoService, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{repos: repos, logger: logHandler(logger, "repo")}
}

type repoResponse struct {
	ID               uint64 `json:"id"`
	Borrower         string `json:"borrower"`
	SeriesID         uint32 `json:"series_id"`
	CollateralUnits  int64  `json:"collateral_units"`
	CashOut          int64  `json:"cash_out"`
	RepurchaseAmount int64  `json:"repurchase_amount"`
	StartTime        int64  `json:"start_time"`
	Deadline         int64  `json:"deadline"`
	Status           string `json:"status"`
	SettledAt        *int64 `json:"settled_at,omitempty"`
}

func toRepoResponse(p domain.RepoPosition) repoResponse {
	out := repoResponse{
		ID:               p.ID,
		Borrower:         string(p.Borrower),
		SeriesID:         p.SeriesID,
		CollateralUnits:  p.CollateralUnits,
		CashOut:          p.CashOut,
		RepurchaseAmount: p.RepurchaseAmount,
		StartTime:        p.StartTime.Unix(),
		Deadline:         p.Deadline.Unix(),
		Status:           string(p.Status),
	}
	if p.SettledAt != nil {
		ts := p.SettledAt.Unix()
		out.SettledAt = &ts
	}
	return out
}

type openRepoRequest struct {
	SeriesID        uint32 `json:"series_id"`
	CollateralUnits int64  `json:"collateral_units"`
	CashOut         int64  `json:"cash_out"`
	Deadline        int64  `json:"deadline"`
}

// Open escrows claim units as collateral and lends vault cash against them.
// POST /api/repos
func (h *RepoHandler) Open(w http.ResponseWriter, r *http.Request) {
	borrower, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req openRepoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	deadline := time.Unix(req.Deadline, 0).UTC()
	id, err := h.repos.OpenRepo(r.Context(), borrower, req.SeriesID, req.CollateralUnits, req.CashOut, deadline)
	if err != nil {
		h.logger.WarnContext(r.Context(), "open repo refused",
			slog.Any("series_id", req.SeriesID),
			slog.String("borrower", string(borrower)),
			slog.Int64("cash_out", req.CashOut),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	pos, err := h.repos.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRepoResponse(pos))
}

// Close repays the repurchase amount and releases the collateral back to the
// borrower. Any authenticated principal may pay.
// POST /api/repos/{id}/close
func (h *RepoHandler) Close(w http.ResponseWriter, r *http.Request) {
	payer, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := positionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	if err := h.repos.CloseRepo(r.Context(), id, payer); err != nil {
		h.logger.WarnContext(r.Context(), "close repo refused",
			slog.Uint64("position_id", id),
			slog.String("payer", string(payer)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	pos, err := h.repos.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepoResponse(pos))
}

// Default seizes the collateral of an expired position for the treasury.
// POST /api/repos/{id}/default
func (h *RepoHandler) Default(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := positionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	if err := h.repos.ClaimDefault(r.Context(), id, caller); err != nil {
		h.logger.WarnContext(r.Context(), "claim default refused",
			slog.Uint64("position_id", id),
			slog.String("caller", string(caller)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	pos, err := h.repos.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepoResponse(pos))
}

// Get returns a single repo position by id.
// GET /api/repos/{id}
func (h *RepoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := positionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	pos, err := h.repos.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepoResponse(pos))
}

// List returns the caller's repo positions, newest first.
// GET /api/repos
func (h *RepoHandler) List(w http.ResponseWriter, r *http.Request) {
	borrower, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	positions, err := h.repos.ListByBorrower(r.Context(), borrower, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list repos failed",
			slog.String("borrower", string(borrower)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list repo positions")
		return
	}

	out := make([]repoResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toRepoResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repos": out,
		"count": len(out),
	})
}
