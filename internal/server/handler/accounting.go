package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// AccountingHandler serves the vault accounting summary.
type AccountingHandler struct {
	accounting domain.AccountingStore
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewAccountingHandler creates an AccountingHandler. audit may be nil, in
// which case the audit endpoint reports an empty log.
func NewAccountingHandler(accounting domain.AccountingStore, audit domain.AuditStore, logger *slog.Logger) *AccountingHandler {
	return &AccountingHandler{accounting: accounting, audit: audit, logger: logHandler(logger, "accounting")}
}

// Summary returns the aggregate cash and claim flows of the vault.
// GET /api/accounting
func (h *AccountingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounting.Get(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "accounting read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read accounting")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions_collected": acc.SubscriptionsCollected,
		"par_minted":              acc.ParMinted,
		"par_redeemed":            acc.ParRedeemed,
		"currently_lent":          acc.CurrentlyLent,
		"repo_revenue":            acc.RepoRevenue,
		"default_count":           acc.DefaultCount,
		"defaulted_units":         acc.DefaultedUnits,
		"profit":                  acc.Profit(),
		"available_for_lending":   acc.AvailableForLending(),
	})
}

// Audit returns recent audit log entries, newest first.
// GET /api/accounting/audit
func (h *AccountingHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []domain.AuditEntry{}, "count": 0})
		return
	}

	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	type auditResponse struct {
		ID        int64          `json:"id"`
		Event     string         `json:"event"`
		Detail    map[string]any `json:"detail"`
		CreatedAt int64          `json:"created_at"`
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}
