package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Cart limits.
const (
	MaxQuantityPerLine = 100
	MaxLinesPerCart    = 50

	// MaxUnitPrice keeps a full cart's total well inside int64.
	MaxUnitPrice int64 = 1_000_000_000_000
)

// ProductSnapshot is the product data captured when it is added to a cart.
type ProductSnapshot struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=255"`
	Image     string `json:"image" validate:"omitempty,max=2048"`
	Price     int64  `json:"price" validate:"gte=0,lte=1000000000000"`
}

// CartLine is one product in a user's cart. The line id is the product id.
type CartLine struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	LineTotal int64     `json:"line_total"`
	Selected  bool      `json:"selected"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCartLine creates an unselected line with quantity 1.
func NewCartLine(p ProductSnapshot, now time.Time) CartLine {
	return CartLine{
		ProductID: p.ProductID,
		Name:      p.Name,
		Image:     p.Image,
		UnitPrice: p.Price,
		Quantity:  1,
		LineTotal: p.Price,
		AddedAt:   now,
		UpdatedAt: now,
	}
}

// SetQuantity sets the quantity and recomputes the stored total.
func (l *CartLine) SetQuantity(q int, now time.Time) error {
	if q < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}
	if q > MaxQuantityPerLine {
		return apperrors.InvalidInput(fmt.Sprintf("quantity cannot exceed %d", MaxQuantityPerLine))
	}
	if l.UnitPrice < 0 || l.UnitPrice > MaxUnitPrice {
		return apperrors.InvalidInput(fmt.Sprintf("unit price must be between 0 and %d", MaxUnitPrice))
	}
	l.Quantity = q
	l.LineTotal = LineTotal(l.UnitPrice, q)
	l.UpdatedAt = now
	return nil
}

// Increment adds one unit.
func (l *CartLine) Increment(now time.Time) error {
	return l.SetQuantity(l.Quantity+1, now)
}

// Cart is a read model over a user's cart lines.
type Cart struct {
	Lines         []CartLine `json:"lines"`
	SelectedTotal int64      `json:"selected_total"`
	SelectedCount int        `json:"selected_count"`
	ItemCount     int        `json:"item_count"`
}

// NewCart builds the read model. Lines keep their given order.
func NewCart(lines []CartLine) Cart {
	c := Cart{Lines: lines, SelectedTotal: SelectedTotal(lines)}
	if c.Lines == nil {
		c.Lines = []CartLine{}
	}
	for _, l := range lines {
		c.ItemCount += l.Quantity
		if l.Selected {
			c.SelectedCount++
		}
	}
	return c
}
