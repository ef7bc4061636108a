package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/repository"
	"github.com/utafrali/mobileshop/internal/store"
)

// LedgerService manages loyalty point balances.
type LedgerService struct {
	store  store.Store
	events *event.Producer
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(st store.Store, events *event.Producer, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:  st,
		events: events,
		logger: logger,
		now:    utcNow,
	}
}

// Balance returns the user's account. Users without one have zero points.
func (s *LedgerService) Balance(ctx context.Context, userID string) (*domain.LoyaltyAccount, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	acct, err := repository.New(s.store).Points(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get points balance: %w", err)
	}
	return acct, nil
}

// Credit adds amount points to the user's balance.
func (s *LedgerService) Credit(ctx context.Context, userID string, amount int64, reason string) (*domain.LoyaltyAccount, error) {
	return s.apply(ctx, userID, amount, reason, func(a *domain.LoyaltyAccount, now time.Time) error {
		return a.Credit(amount, now)
	})
}

// Redeem removes amount points. It fails with INSUFFICIENT_POINTS when the
// balance is too low.
func (s *LedgerService) Redeem(ctx context.Context, userID string, amount int64, reason string) (*domain.LoyaltyAccount, error) {
	return s.apply(ctx, userID, -amount, reason, func(a *domain.LoyaltyAccount, now time.Time) error {
		return a.Redeem(amount, now)
	})
}

func (s *LedgerService) apply(ctx context.Context, userID string, delta int64, reason string, fn func(*domain.LoyaltyAccount, time.Time) error) (*domain.LoyaltyAccount, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = domain.PointsReasonManual
	}

	var acct *domain.LoyaltyAccount
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		var err error
		acct, err = repo.Points(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(acct, s.now()); err != nil {
			return err
		}
		return repo.PutPoints(ctx, userID, acct)
	})
	if err != nil {
		return nil, fmt.Errorf("update points: %w", err)
	}

	s.logger.InfoContext(ctx, "points balance changed",
		slog.String("user_id", userID),
		slog.Int64("delta", delta),
		slog.Int64("balance", acct.Balance),
		slog.String("reason", reason),
	)
	publishPointsChange(ctx, s.events, s.logger, domain.PointsChange{
		UserID:  userID,
		Delta:   delta,
		Balance: acct.Balance,
		Reason:  reason,
	})
	return acct, nil
}

// publishPointsChange records and announces a committed balance movement.
// Zero movements are ignored.
func publishPointsChange(ctx context.Context, events *event.Producer, logger *slog.Logger, change domain.PointsChange) {
	if change.Delta == 0 {
		return
	}
	observePoints(change.Delta)
	err := events.PublishPointsChanged(ctx, change)
	logPublishError(ctx, logger, event.TopicPointsChanged, err, slog.String("user_id", change.UserID))
}
