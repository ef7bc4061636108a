package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobileshop_orders_created_total",
		Help: "Orders placed",
	})

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobileshop_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"from", "to"},
	)

	pointsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobileshop_points_total",
			Help: "Loyalty points credited or redeemed",
		},
		[]string{"direction"},
	)

	reviewsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobileshop_reviews_submitted_total",
		Help: "Product reviews submitted",
	})
)

func observePoints(delta int64) {
	switch {
	case delta > 0:
		pointsMoved.WithLabelValues("credit").Add(float64(delta))
	case delta < 0:
		pointsMoved.WithLabelValues("redeem").Add(float64(-delta))
	}
}
