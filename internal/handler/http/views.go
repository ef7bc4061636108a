package http

import (
	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/pkg/pagination"
)

// OrderView is an order with its display label.
type OrderView struct {
	*domain.Order
	StatusLabel string `json:"status_label"`
	Cancelable  bool   `json:"cancelable"`
}

func newOrderView(o *domain.Order, actor domain.Actor) OrderView {
	return OrderView{
		Order:       o,
		StatusLabel: o.Status.Label(),
		Cancelable:  o.CanCancel(actor),
	}
}

func orderViews(page pagination.Result[domain.Order], actor domain.Actor) pagination.Result[OrderView] {
	return pagination.Map(page, func(o domain.Order) OrderView {
		return newOrderView(&o, actor)
	})
}

// OrderIndexView is an admin index row with its display label.
type OrderIndexView struct {
	domain.OrderIndexEntry
	StatusLabel string `json:"status_label"`
}

func indexViews(page pagination.Result[domain.OrderIndexEntry]) pagination.Result[OrderIndexView] {
	return pagination.Map(page, func(e domain.OrderIndexEntry) OrderIndexView {
		return OrderIndexView{OrderIndexEntry: e, StatusLabel: e.Status.Label()}
	})
}
