package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
)

// RepoService runs the collateralized lending state machine: open a position
// against escrowed claim units, close it by repaying the repurchase amount
// before the deadline, or let the treasury claim the collateral after the
// deadline. The haircut plus the residual discount-to-par guarantee a default
// is never loss-making for the treasury.
type RepoService struct {
	series     domain.SeriesStore
	repos      domain.RepoPositionStore
	balances   domain.BalanceLedger
	cash       domain.CashLedger
	accounting domain.AccountingStore
	treasury   domain.Principal
	haircutBps int64
	spreadBps  int64
	clock      Clock
	locker     domain.OpLocker
	emitter    emitter
	logger     *slog.Logger
}

// NewRepoService creates a RepoService. accounting, bus, and audit may be nil.
func NewRepoService(
	series domain.SeriesStore,
	repos domain.RepoPositionStore,
	balances domain.BalanceLedger,
	cash domain.CashLedger,
	accounting domain.AccountingStore,
	treasury domain.Principal,
	haircutBps, spreadBps int64,
	clock Clock,
	locker domain.OpLocker,
	bus domain.EventBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *RepoService {
	logger = logger.With(slog.String("component", "repo_service"))
	return &RepoService{
		series:     series,
		repos:      repos,
		balances:   balances,
		cash:       cash,
		accounting: accounting,
		treasury:   treasury,
		haircutBps: haircutBps,
		spreadBps:  spreadBps,
		clock:      clock,
		locker:     locker,
		emitter:    emitter{bus: bus, audit: audit, clock: clock, logger: logger},
		logger:     logger,
	}
}

// OpenRepo escrows collateralUnits of the borrower's claims and disburses
// desiredCashOut from the treasury, recording a new open position. The cash
// out is capped by the haircut loan-to-value limit at the current accreted
// price, and the deadline may not exceed the series maturity date.
func (s *RepoService) OpenRepo(
	ctx context.Context,
	borrower domain.Principal,
	seriesID uint32,
	collateralUnits, desiredCashOut int64,
	deadline time.Time,
) (uint64, error) {
	if collateralUnits <= 0 || desiredCashOut <= 0 {
		return 0, fmt.Errorf("service: open repo on series %d: %w", seriesID, domain.ErrInvalidAmount)
	}

	var positionID uint64
	err := withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, err)
		}
		if deadline.After(row.MaturityDate) {
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, domain.ErrInvalidDeadline)
		}

		now := s.clock.Now()
		if row.StatusAt(now) != domain.SeriesActive {
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, domain.ErrSeriesNotActive)
		}

		price := fixedpoint.PriceAt(row.IssuePrice, row.ParUnit, row.IssueDate, row.MaturityDate, now)
		maxCash, err := fixedpoint.MaxCash(collateralUnits, price, row.ParUnit, s.haircutBps)
		if err != nil {
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, err)
		}
		if desiredCashOut > maxCash {
			return fmt.Errorf("service: open repo on series %d: cash %d > max %d: %w",
				seriesID, desiredCashOut, maxCash, domain.ErrExceedsMaxCash)
		}
		repurchase, err := fixedpoint.Repurchase(desiredCashOut, s.spreadBps)
		if err != nil {
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, err)
		}

		// All validation passed; effects from here on, compensated on
		// failure. The op lock prevents any second entry while pending.
		if err := s.balances.Escrow(ctx, seriesID, borrower, collateralUnits); err != nil {
			return fmt.Errorf("service: open repo on series %d: escrow collateral: %w", seriesID, err)
		}
		if err := s.cash.Transfer(ctx, s.treasury, borrower, desiredCashOut); err != nil {
			if rerr := s.balances.Release(ctx, seriesID, borrower, collateralUnits); rerr != nil {
				s.logger.ErrorContext(ctx, "open repo compensation release failed",
					slog.Uint64("series_id", uint64(seriesID)),
					slog.String("borrower", borrower.String()),
					slog.String("error", rerr.Error()),
				)
			}
			return fmt.Errorf("service: open repo on series %d: disburse cash: %w", seriesID, err)
		}

		pos := domain.RepoPosition{
			Borrower:         borrower,
			SeriesID:         seriesID,
			CollateralUnits:  collateralUnits,
			CashOut:          desiredCashOut,
			RepurchaseAmount: repurchase,
			StartTime:        now,
			Deadline:         deadline,
			Status:           domain.RepoOpen,
		}
		id, err := s.repos.Create(ctx, pos)
		if err != nil {
			if rerr := s.cash.Transfer(ctx, borrower, s.treasury, desiredCashOut); rerr != nil {
				s.logger.ErrorContext(ctx, "open repo compensation clawback failed",
					slog.String("error", rerr.Error()))
			}
			if rerr := s.balances.Release(ctx, seriesID, borrower, collateralUnits); rerr != nil {
				s.logger.ErrorContext(ctx, "open repo compensation release failed",
					slog.String("error", rerr.Error()))
			}
			return fmt.Errorf("service: open repo on series %d: %w", seriesID, err)
		}
		positionID = id

		s.applyAccounting(ctx, func(acc *domain.VaultAccounting) {
			acc.CurrentlyLent += desiredCashOut
		})

		s.logger.InfoContext(ctx, "repo opened",
			slog.Uint64("position_id", id),
			slog.Uint64("series_id", uint64(seriesID)),
			slog.String("borrower", borrower.String()),
			slog.Int64("collateral_units", collateralUnits),
			slog.Int64("cash_out", desiredCashOut),
			slog.Int64("repurchase_amount", repurchase),
		)
		s.emitter.emit(ctx, domain.EventRepoOpened, map[string]any{
			"position_id":       id,
			"series_id":         seriesID,
			"borrower":          borrower.String(),
			"collateral_units":  collateralUnits,
			"cash_out":          desiredCashOut,
			"repurchase_amount": repurchase,
			"deadline":          deadline.Unix(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return positionID, nil
}

// CloseRepo repays an open position: the payer sends the repurchase amount to
// the treasury and the escrowed collateral returns to the borrower. Any
// authenticated principal may pay; after the deadline the position can no
// longer be closed.
func (s *RepoService) CloseRepo(ctx context.Context, positionID uint64, payer domain.Principal) error {
	return withOpLock(ctx, s.locker, func() error {
		pos, err := s.repos.Get(ctx, positionID)
		if err != nil {
			return fmt.Errorf("service: close repo %d: %w", positionID, err)
		}
		if pos.Status != domain.RepoOpen {
			return fmt.Errorf("service: close repo %d in status %s: %w", positionID, pos.Status, domain.ErrInvalidStatus)
		}

		now := s.clock.Now()
		if now.After(pos.Deadline) {
			return fmt.Errorf("service: close repo %d: %w", positionID, domain.ErrDeadlinePassed)
		}

		// Persist the terminal status before touching the ledgers, restoring
		// the row if a ledger call fails. The op lock prevents any second
		// settlement while the position is pending.
		prev := pos
		pos.Status = domain.RepoClosed
		pos.SettledAt = &now
		if err := s.repos.Update(ctx, pos); err != nil {
			return fmt.Errorf("service: close repo %d: %w", positionID, err)
		}

		if err := s.cash.Transfer(ctx, payer, s.treasury, pos.RepurchaseAmount); err != nil {
			s.restorePosition(ctx, prev)
			return fmt.Errorf("service: close repo %d: repay: %w", positionID, err)
		}
		if err := s.balances.Release(ctx, pos.SeriesID, pos.Borrower, pos.CollateralUnits); err != nil {
			if rerr := s.cash.Transfer(ctx, s.treasury, payer, pos.RepurchaseAmount); rerr != nil {
				s.logger.ErrorContext(ctx, "close repo compensation refund failed",
					slog.Uint64("position_id", positionID),
					slog.String("error", rerr.Error()),
				)
			}
			s.restorePosition(ctx, prev)
			return fmt.Errorf("service: close repo %d: release collateral: %w", positionID, err)
		}

		s.applyAccounting(ctx, func(acc *domain.VaultAccounting) {
			acc.CurrentlyLent -= pos.CashOut
			acc.RepoRevenue += pos.RepurchaseAmount - pos.CashOut
		})

		s.logger.InfoContext(ctx, "repo closed",
			slog.Uint64("position_id", positionID),
			slog.String("payer", payer.String()),
			slog.Int64("repayment", pos.RepurchaseAmount),
		)
		s.emitter.emit(ctx, domain.EventRepoClosed, map[string]any{
			"position_id": positionID,
			"borrower":    pos.Borrower.String(),
			"payer":       payer.String(),
			"repayment":   pos.RepurchaseAmount,
		})
		return nil
	})
}

// ClaimDefault forfeits the escrowed collateral of an overdue open position
// to the treasury. Only the treasury may claim, and only strictly after the
// deadline. No cash moves: the treasury keeps both the disbursed cash and the
// collateral.
func (s *RepoService) ClaimDefault(ctx context.Context, positionID uint64, caller domain.Principal) error {
	if caller != s.treasury {
		return fmt.Errorf("service: claim default on repo %d: %w", positionID, domain.ErrUnauthorized)
	}

	return withOpLock(ctx, s.locker, func() error {
		pos, err := s.repos.Get(ctx, positionID)
		if err != nil {
			return fmt.Errorf("service: claim default on repo %d: %w", positionID, err)
		}
		if pos.Status != domain.RepoOpen {
			return fmt.Errorf("service: claim default on repo %d in status %s: %w", positionID, pos.Status, domain.ErrInvalidStatus)
		}

		now := s.clock.Now()
		if !now.After(pos.Deadline) {
			return fmt.Errorf("service: claim default on repo %d: %w", positionID, domain.ErrDeadlineNotPassed)
		}

		prev := pos
		pos.Status = domain.RepoDefaulted
		pos.SettledAt = &now
		if err := s.repos.Update(ctx, pos); err != nil {
			return fmt.Errorf("service: claim default on repo %d: %w", positionID, err)
		}

		if err := s.balances.Release(ctx, pos.SeriesID, s.treasury, pos.CollateralUnits); err != nil {
			s.restorePosition(ctx, prev)
			return fmt.Errorf("service: claim default on repo %d: claim collateral: %w", positionID, err)
		}

		s.applyAccounting(ctx, func(acc *domain.VaultAccounting) {
			acc.CurrentlyLent -= pos.CashOut
			acc.DefaultCount++
			acc.DefaultedUnits += pos.CollateralUnits
		})

		s.logger.InfoContext(ctx, "repo defaulted",
			slog.Uint64("position_id", positionID),
			slog.String("borrower", pos.Borrower.String()),
			slog.Int64("collateral_claimed", pos.CollateralUnits),
		)
		s.emitter.emit(ctx, domain.EventRepoDefaulted, map[string]any{
			"position_id":        positionID,
			"borrower":           pos.Borrower.String(),
			"collateral_claimed": pos.CollateralUnits,
			"cash_kept":          pos.CashOut,
		})
		return nil
	})
}

// Get returns a repo position.
func (s *RepoService) Get(ctx context.Context, positionID uint64) (domain.RepoPosition, error) {
	pos, err := s.repos.Get(ctx, positionID)
	if err != nil {
		return domain.RepoPosition{}, fmt.Errorf("service: get repo %d: %w", positionID, err)
	}
	return pos, nil
}

// ListByBorrower returns a borrower's positions, newest first.
func (s *RepoService) ListByBorrower(ctx context.Context, borrower domain.Principal, opts domain.ListOpts) ([]domain.RepoPosition, error) {
	list, err := s.repos.ListByBorrower(ctx, borrower, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list repos for %s: %w", borrower, err)
	}
	return list, nil
}

func (s *RepoService) restorePosition(ctx context.Context, prev domain.RepoPosition) {
	if err := s.repos.Update(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "repo position restore failed",
			slog.Uint64("position_id", prev.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RepoService) applyAccounting(ctx context.Context, apply func(*domain.VaultAccounting)) {
	if s.accounting == nil {
		return
	}
	acc, err := s.accounting.Get(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "accounting read failed", slog.String("error", err.Error()))
		return
	}
	apply(&acc)
	if err := s.accounting.Put(ctx, acc); err != nil {
		s.logger.ErrorContext(ctx, "accounting update failed", slog.String("error", err.Error()))
	}
}
