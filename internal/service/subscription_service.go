package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
)

// SubscriptionService orchestrates subscriptions into and redemptions out of
// a series. It enforces the two-tier caps (series-wide and per-holder),
// instructs the external cash and balance ledgers, and keeps the per-holder
// lifetime cap counters. Cap state is committed before the external ledger
// calls so a re-entering call can never observe unconsumed caps; if a ledger
// call then fails, the committed state is compensated and the operation is
// observed as void.
type SubscriptionService struct {
	series     domain.SeriesStore
	positions  domain.HolderPositionStore
	balances   domain.BalanceLedger
	cash       domain.CashLedger
	accounting domain.AccountingStore
	treasury   domain.Principal
	clock      Clock
	locker     domain.OpLocker
	emitter    emitter
	logger     *slog.Logger
}

// NewSubscriptionService creates a SubscriptionService. accounting, bus, and
// audit may be nil.
func NewSubscriptionService(
	series domain.SeriesStore,
	positions domain.HolderPositionStore,
	balances domain.BalanceLedger,
	cash domain.CashLedger,
	accounting domain.AccountingStore,
	treasury domain.Principal,
	clock Clock,
	locker domain.OpLocker,
	bus domain.EventBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SubscriptionService {
	logger = logger.With(slog.String("component", "subscription_service"))
	return &SubscriptionService{
		series:     series,
		positions:  positions,
		balances:   balances,
		cash:       cash,
		accounting: accounting,
		treasury:   treasury,
		clock:      clock,
		locker:     locker,
		emitter:    emitter{bus: bus, audit: audit, clock: clock, logger: logger},
		logger:     logger,
	}
}

// SubscribeResult reports the executed terms of a subscription.
type SubscribeResult struct {
	SeriesID    uint32
	Holder      domain.Principal
	PayAmount   int64
	Price       int64
	MintedUnits int64
}

// Subscribe takes payAmount of cash from the holder at the current accreted
// price and mints the corresponding claim units, subject to the series and
// per-holder caps.
func (s *SubscriptionService) Subscribe(ctx context.Context, holder domain.Principal, seriesID uint32, payAmount int64) (SubscribeResult, error) {
	if payAmount <= 0 {
		return SubscribeResult{}, fmt.Errorf("service: subscribe to series %d: %w", seriesID, domain.ErrInvalidAmount)
	}

	var res SubscribeResult
	err := withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}

		now := s.clock.Now()
		if row.StatusAt(now) != domain.SeriesActive {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, domain.ErrSeriesNotActive)
		}

		price := fixedpoint.PriceAt(row.IssuePrice, row.ParUnit, row.IssueDate, row.MaturityDate, now)
		minted, err := fixedpoint.MintedUnits(payAmount, price, row.ParUnit)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}
		if minted <= 0 {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, domain.ErrInvalidAmount)
		}

		newMinted, err := fixedpoint.Add(row.MintedTotal, minted)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}
		if newMinted > row.CapTotal {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, domain.ErrExceedsSeriesCap)
		}

		pos, err := s.positions.Get(ctx, seriesID, holder)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}
		newSubscribed, err := fixedpoint.Add(pos.SubscribedUnits, minted)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}
		if newSubscribed > row.CapPerHolder {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, domain.ErrExceedsHolderCap)
		}
		newCollected, err := fixedpoint.Add(row.SubscriptionsCollected, payAmount)
		if err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}

		// Commit the cap consumption before touching the external ledgers.
		prevSeries, prevPos := row, pos
		row.MintedTotal = newMinted
		row.SubscriptionsCollected = newCollected
		pos.SeriesID = seriesID
		pos.Holder = holder
		pos.SubscribedUnits = newSubscribed
		pos.UpdatedAt = now

		if err := s.series.Update(ctx, row); err != nil {
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			s.restoreSeries(ctx, prevSeries)
			return fmt.Errorf("service: subscribe to series %d: %w", seriesID, err)
		}

		if err := s.cash.Transfer(ctx, holder, s.treasury, payAmount); err != nil {
			s.restoreSeries(ctx, prevSeries)
			s.restorePosition(ctx, prevPos, seriesID, holder)
			return fmt.Errorf("service: subscribe to series %d: collect payment: %w", seriesID, err)
		}
		if err := s.balances.Mint(ctx, seriesID, holder, minted); err != nil {
			if rerr := s.cash.Transfer(ctx, s.treasury, holder, payAmount); rerr != nil {
				s.logger.ErrorContext(ctx, "subscribe compensation refund failed",
					slog.Uint64("series_id", uint64(seriesID)),
					slog.String("holder", holder.String()),
					slog.String("error", rerr.Error()),
				)
			}
			s.restoreSeries(ctx, prevSeries)
			s.restorePosition(ctx, prevPos, seriesID, holder)
			return fmt.Errorf("service: subscribe to series %d: mint claims: %w", seriesID, err)
		}

		s.applyAccounting(ctx, func(acc *domain.VaultAccounting) {
			acc.SubscriptionsCollected += payAmount
			acc.ParMinted += minted
		})

		res = SubscribeResult{
			SeriesID:    seriesID,
			Holder:      holder,
			PayAmount:   payAmount,
			Price:       price,
			MintedUnits: minted,
		}

		s.logger.InfoContext(ctx, "subscribed",
			slog.Uint64("series_id", uint64(seriesID)),
			slog.String("holder", holder.String()),
			slog.Int64("pay_amount", payAmount),
			slog.Int64("price", price),
			slog.Int64("minted_units", minted),
		)
		s.emitter.emit(ctx, domain.EventSubscribed, map[string]any{
			"series_id":    seriesID,
			"holder":       holder.String(),
			"pay_amount":   payAmount,
			"price":        price,
			"minted_units": minted,
		})
		return nil
	})
	if err != nil {
		return SubscribeResult{}, err
	}
	return res, nil
}

// Redeem burns claimUnits of a matured series and pays out their par value
// 1:1 in cash from the treasury. The holder's lifetime cap counter is not
// decremented.
func (s *SubscriptionService) Redeem(ctx context.Context, holder domain.Principal, seriesID uint32, claimUnits int64) (int64, error) {
	if claimUnits <= 0 {
		return 0, fmt.Errorf("service: redeem from series %d: %w", seriesID, domain.ErrInvalidAmount)
	}

	var payout int64
	err := withOpLock(ctx, s.locker, func() error {
		row, err := s.series.Get(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("service: redeem from series %d: %w", seriesID, err)
		}

		now := s.clock.Now()
		switch row.StatusAt(now) {
		case domain.SeriesMatured, domain.SeriesClosed:
		default:
			return fmt.Errorf("service: redeem from series %d: %w", seriesID, domain.ErrSeriesNotMatured)
		}

		balance, err := s.balances.BalanceOf(ctx, seriesID, holder)
		if err != nil {
			return fmt.Errorf("service: redeem from series %d: %w", seriesID, err)
		}
		if balance < claimUnits {
			return fmt.Errorf("service: redeem from series %d: %w", seriesID, domain.ErrInsufficientBalance)
		}

		if err := s.balances.Burn(ctx, seriesID, holder, claimUnits); err != nil {
			return fmt.Errorf("service: redeem from series %d: burn claims: %w", seriesID, err)
		}
		// Payout is 1:1 against par.
		if err := s.cash.Transfer(ctx, s.treasury, holder, claimUnits); err != nil {
			if rerr := s.balances.Mint(ctx, seriesID, holder, claimUnits); rerr != nil {
				s.logger.ErrorContext(ctx, "redeem compensation re-mint failed",
					slog.Uint64("series_id", uint64(seriesID)),
					slog.String("holder", holder.String()),
					slog.String("error", rerr.Error()),
				)
			}
			return fmt.Errorf("service: redeem from series %d: payout: %w", seriesID, err)
		}

		s.applyAccounting(ctx, func(acc *domain.VaultAccounting) {
			acc.ParRedeemed += claimUnits
		})

		payout = claimUnits
		s.logger.InfoContext(ctx, "redeemed",
			slog.Uint64("series_id", uint64(seriesID)),
			slog.String("holder", holder.String()),
			slog.Int64("claim_units", claimUnits),
			slog.Int64("payout", payout),
		)
		s.emitter.emit(ctx, domain.EventRedeemed, map[string]any{
			"series_id":   seriesID,
			"holder":      holder.String(),
			"claim_units": claimUnits,
			"payout":      payout,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return payout, nil
}

// Position returns the holder's lifetime cap counter and live claim balance
// for a series.
func (s *SubscriptionService) Position(ctx context.Context, seriesID uint32, holder domain.Principal) (domain.HolderPosition, int64, error) {
	pos, err := s.positions.Get(ctx, seriesID, holder)
	if err != nil {
		return domain.HolderPosition{}, 0, fmt.Errorf("service: position in series %d: %w", seriesID, err)
	}
	balance, err := s.balances.BalanceOf(ctx, seriesID, holder)
	if err != nil {
		return domain.HolderPosition{}, 0, fmt.Errorf("service: position in series %d: %w", seriesID, err)
	}
	return pos, balance, nil
}

func (s *SubscriptionService) restoreSeries(ctx context.Context, prev domain.Series) {
	if err := s.series.Update(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "series compensation failed",
			slog.Uint64("series_id", uint64(prev.ID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SubscriptionService) restorePosition(ctx context.Context, prev domain.HolderPosition, seriesID uint32, holder domain.Principal) {
	prev.SeriesID = seriesID
	prev.Holder = holder
	if err := s.positions.Upsert(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "holder position compensation failed",
			slog.Uint64("series_id", uint64(seriesID)),
			slog.String("holder", holder.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SubscriptionService) applyAccounting(ctx context.Context, apply func(*domain.VaultAccounting)) {
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
