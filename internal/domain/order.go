package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

// Forward statuses in lifecycle order, plus the canceled terminal state.
const (
	StatusProcessing OrderStatus = "processing"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusPreparing  OrderStatus = "preparing"
	StatusShipping   OrderStatus = "shipping"
	StatusDelivered  OrderStatus = "delivered"
	StatusCanceled   OrderStatus = "canceled"
)

var statusRank = map[OrderStatus]int{
	StatusProcessing: 1,
	StatusConfirmed:  2,
	StatusPreparing:  3,
	StatusShipping:   4,
	StatusDelivered:  5,
}

var statusLabels = map[OrderStatus]string{
	StatusProcessing: "Đang xử lý",
	StatusConfirmed:  "Đã xác nhận đơn hàng",
	StatusPreparing:  "Shop đang chuẩn bị đơn hàng",
	StatusShipping:   "Đang giao hàng",
	StatusDelivered:  "Đã giao thành công",
	StatusCanceled:   "Đã hủy",
}

// Statuses returns every status, forward ones first.
func Statuses() []OrderStatus {
	return []OrderStatus{StatusProcessing, StatusConfirmed, StatusPreparing, StatusShipping, StatusDelivered, StatusCanceled}
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the customer-facing Vietnamese label.
func (s OrderStatus) Label() string {
	return statusLabels[s]
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// Before reports whether s comes strictly before other in the forward order.
// Canceled is before nothing and nothing is before it.
func (s OrderStatus) Before(other OrderStatus) bool {
	a, okA := statusRank[s]
	b, okB := statusRank[other]
	return okA && okB && a < b
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

// Payment methods.
const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentEWallet      PaymentMethod = "e_wallet"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentEWallet, PaymentBankTransfer, PaymentCreditCard:
		return true
	}
	return false
}

// Actor identifies who drove a status change.
type Actor string

// Actors.
const (
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

// OrderLine is an immutable copy of a cart line taken at checkout.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// SnapshotLines copies cart lines into order lines. The total is recomputed
// from unit price and quantity.
func SnapshotLines(lines []CartLine) []OrderLine {
	out := make([]OrderLine, len(lines))
	for i, l := range lines {
		out[i] = OrderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Image:     l.Image,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: LineTotal(l.UnitPrice, l.Quantity),
		}
	}
	return out
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	From  OrderStatus `json:"from,omitempty"`
	To    OrderStatus `json:"to"`
	Actor Actor       `json:"actor"`
	At    time.Time   `json:"at"`
}

// Order is a placed order. Lines and amounts never change after creation;
// only Status, StatusHistory, Version and UpdatedAt do.
type Order struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Lines           []OrderLine    `json:"lines"`
	RawTotal        int64          `json:"raw_total"`
	PointsRedeemed  int64          `json:"points_redeemed"`
	TotalAmount     int64          `json:"total_amount"`
	PaymentMethod   PaymentMethod  `json:"payment_method"`
	ShippingAddress string         `json:"shipping_address"`
	Status          OrderStatus    `json:"status"`
	StatusHistory   []StatusChange `json:"status_history"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewOrder builds a processing order from a line snapshot.
func NewOrder(id, userID string, lines []OrderLine, pointsRedeemed int64, method PaymentMethod, address string, now time.Time) *Order {
	raw := Total(lines)
	return &Order{
		ID:              id,
		UserID:          userID,
		Lines:           lines,
		RawTotal:        raw,
		PointsRedeemed:  pointsRedeemed,
		TotalAmount:     ApplyRedemption(raw, pointsRedeemed),
		PaymentMethod:   method,
		ShippingAddress: address,
		Status:          StatusProcessing,
		StatusHistory:   []StatusChange{{To: StatusProcessing, Actor: ActorUser, At: now}},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasProduct reports whether the order contains productID.
func (o *Order) HasProduct(productID string) bool {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

// CheckVersion fails with a conflict when expected is set and differs from
// the order's version.
func (o *Order) CheckVersion(expected int64) error {
	if expected != 0 && expected != o.Version {
		return apperrors.Conflict(fmt.Sprintf("order %s was modified (version %d, expected %d)", o.ID, o.Version, expected))
	}
	return nil
}

// CanCancel reports whether actor may cancel the order in its current
// status. Customers may only cancel processing orders; admins may cancel
// any non-terminal order.
func (o *Order) CanCancel(actor Actor) bool {
	if actor == ActorAdmin {
		return !o.Status.Terminal()
	}
	return o.Status == StatusProcessing
}

// Cancel moves the order to canceled.
func (o *Order) Cancel(actor Actor, now time.Time) error {
	if !o.CanCancel(actor) {
		return apperrors.Unprocessable(CodeNotCancelable,
			fmt.Sprintf("order in status %s cannot be canceled", o.Status))
	}
	o.transition(StatusCanceled, actor, now)
	return nil
}

// Advance moves the order strictly forward to target.
func (o *Order) Advance(target OrderStatus, actor Actor, now time.Time) error {
	if !target.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown status %q", target))
	}
	if o.Status.Terminal() || !o.Status.Before(target) {
		return apperrors.Unprocessable(CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", o.Status, target))
	}
	o.transition(target, actor, now)
	return nil
}

func (o *Order) transition(to OrderStatus, actor Actor, now time.Time) {
	o.StatusHistory = append(o.StatusHistory, StatusChange{From: o.Status, To: to, Actor: actor, At: now})
	o.Status = to
	o.Version++
	o.UpdatedAt = now
}

// OrderIndexEntry is the admin-side index row for an order.
type OrderIndexEntry struct {
	OrderID     string      `json:"order_id"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	TotalAmount int64       `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IndexEntry returns the index row for o.
func (o *Order) IndexEntry() OrderIndexEntry {
	return OrderIndexEntry{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
	}
}
