package store

import (
	"fmt"
	"strings"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// ValidatePath checks that path is a non-empty sequence of valid segments.
func ValidatePath(path string) error {
	if path == "" {
		return apperrors.InvalidInput("path cannot be empty")
	}
	for _, seg := range strings.Split(path, "/") {
		if err := validSegment(seg); err != nil {
			return apperrors.InvalidInput(fmt.Sprintf("invalid path %q: %s", path, err))
		}
	}
	return nil
}

func validSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty segment")
	}
	if strings.ContainsAny(seg, "/*?[]\\") {
		return fmt.Errorf("segment %q contains a reserved character", seg)
	}
	return nil
}

func join(parts ...string) (string, error) {
	for _, p := range parts {
		if err := validSegment(p); err != nil {
			return "", apperrors.InvalidInput(err.Error())
		}
	}
	return strings.Join(parts, "/"), nil
}

// UserPath is the root of everything a user owns.
func UserPath(userID string) (string, error) {
	return join("users", userID)
}

// CartPath is the parent of a user's cart lines.
func CartPath(userID string) (string, error) {
	return join("users", userID, "cart")
}

// CartLinePath is one cart line.
func CartLinePath(userID, lineID string) (string, error) {
	return join("users", userID, "cart", lineID)
}

// OrdersPath is the parent of a user's orders.
func OrdersPath(userID string) (string, error) {
	return join("users", userID, "orders")
}

// OrderPath is one order of a user.
func OrderPath(userID, orderID string) (string, error) {
	return join("users", userID, "orders", orderID)
}

// OrderIndexRoot is the parent of the admin order index.
const OrderIndexRoot = "orders"

// OrderIndexPath is the admin index entry of an order.
func OrderIndexPath(orderID string) (string, error) {
	return join(OrderIndexRoot, orderID)
}

// PointsPath is a user's loyalty account.
func PointsPath(userID string) (string, error) {
	return join("users", userID, "points")
}

// ProfilePath is a user's profile.
func ProfilePath(userID string) (string, error) {
	return join("users", userID, "profile")
}

// ProductReviewsPath is the parent of every review of a product.
func ProductReviewsPath(productID string) (string, error) {
	return join("products", productID, "orders")
}

// ReviewPath is the single review a user may leave for a product of an order.
func ReviewPath(productID, orderID, userID string) (string, error) {
	return join("products", productID, "orders", orderID, "reviews", userID)
}
