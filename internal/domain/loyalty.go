package domain

import (
	"time"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// DefaultReviewReward is the number of points credited for a first review.
const DefaultReviewReward int64 = 1000

// LoyaltyAccount is a user's point balance. Balance never goes negative.
type LoyaltyAccount struct {
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Credit adds amount points.
func (a *LoyaltyAccount) Credit(amount int64, now time.Time) error {
	if amount <= 0 {
		return apperrors.InvalidInput("credit amount must be positive")
	}
	a.Balance += amount
	a.LifetimeEarned += amount
	a.UpdatedAt = now
	return nil
}

// Redeem removes amount points. Redeeming zero is a no-op.
func (a *LoyaltyAccount) Redeem(amount int64, now time.Time) error {
	if amount < 0 {
		return apperrors.InvalidInput("redeem amount cannot be negative")
	}
	if amount > a.Balance {
		return errInsufficientPoints(amount, a.Balance)
	}
	if amount == 0 {
		return nil
	}
	a.Balance -= amount
	a.UpdatedAt = now
	return nil
}

// RedemptionFor decides how many points to redeem against rawTotal. In
// use-all mode the balance is clamped to the total; an explicit request is
// taken as-is and must not exceed the balance.
func RedemptionFor(balance, rawTotal, requested int64, useAll bool) (int64, error) {
	if useAll {
		return min(balance, rawTotal), nil
	}
	if requested < 0 {
		return 0, apperrors.InvalidInput("points_to_redeem cannot be negative")
	}
	if requested > balance {
		return 0, errInsufficientPoints(requested, balance)
	}
	return requested, nil
}

// PointsChange describes one balance movement.
type PointsChange struct {
	UserID  string `json:"user_id"`
	Delta   int64  `json:"delta"`
	Balance int64  `json:"balance"`
	Reason  string `json:"reason"`
}

// Reasons recorded on balance movements.
const (
	PointsReasonReview   = "review_reward"
	PointsReasonCheckout = "checkout_redemption"
	PointsReasonManual   = "manual"
)
