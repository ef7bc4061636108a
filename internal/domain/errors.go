package domain

import (
	"fmt"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Business rule error codes. All map to 422.
const (
	CodeEmptySelection     = "EMPTY_SELECTION"
	CodeInsufficientPoints = "INSUFFICIENT_POINTS"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeNotCancelable      = "NOT_CANCELABLE"
	CodeReviewNotAllowed   = "REVIEW_NOT_ALLOWED"
)

func errInsufficientPoints(requested, balance int64) error {
	return apperrors.Unprocessable(CodeInsufficientPoints,
		fmt.Sprintf("cannot redeem %d points, balance is %d", requested, balance))
}

// ErrEmptySelection is returned when checkout has no lines to order.
func ErrEmptySelection() error {
	return apperrors.Unprocessable(CodeEmptySelection, "no cart lines selected for checkout")
}

// ErrReviewNotAllowed is returned when the review gate is closed.
func ErrReviewNotAllowed(status OrderStatus) error {
	return apperrors.Unprocessable(CodeReviewNotAllowed,
		fmt.Sprintf("order is %s, only delivered orders can be reviewed", status))
}
