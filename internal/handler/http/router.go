package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/pkg/health"
	"github.com/utafrali/mobileshop/pkg/middleware"
)

const serviceName = "mobileshop"

// RouterConfig holds everything the router mounts.
type RouterConfig struct {
	Cart     *service.CartService
	Ledger   *service.LedgerService
	Orders   *service.OrderService
	Reviews  *service.ReviewService
	Profiles *service.ProfileService
	Store    store.Store
	Health   *health.Handler

	Auth           middleware.AuthConfig
	CORS           middleware.CORSConfig
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
	// Blobs serves /blobs/* when uploads are kept in process. Optional.
	Blobs BlobReader

	Logger *slog.Logger
}

// NewRouter creates a chi router with all shop routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler)
	}

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Blobs != nil {
		r.Get("/blobs/*", ServeBlobs(cfg.Blobs))
	}

	cart := NewCartHandler(cfg.Cart, logger)
	account := NewAccountHandler(cfg.Ledger, cfg.Profiles, logger)
	orders := NewOrderHandler(cfg.Orders, logger)
	reviews := NewReviewHandler(cfg.Reviews, logger)
	admin := NewAdminHandler(cfg.Orders, cfg.Ledger, logger)
	watch := NewWatchHandler(cfg.Store, cfg.CORS.AllowedOrigins, logger)

	authenticate := middleware.Auth(cfg.Auth)
	requireAdmin := middleware.RequireRole(middleware.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// Public catalogue reads
		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/products/{productID}/reviews", reviews.ListProductReviews)
			r.Get("/products/{productID}/reviews/summary", reviews.ProductSummary)
		})

		// Long-lived websocket streams stay outside the timeout and
		// compression middleware.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequestLogger(logger))

			r.Get("/watch", watch.Watch)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Use(ContentTypeJSON)
			r.Use(authenticate)
			r.Use(middleware.RequestLogger(logger))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Post("/items", cart.AddItem)
				r.Put("/items/{lineID}", cart.UpdateQuantity)
				r.Delete("/items/{lineID}", cart.RemoveItem)
				r.Post("/items/{lineID}/toggle", cart.ToggleSelection)
				r.Put("/items/{lineID}/selection", cart.SetSelection)
			})

			r.Get("/points", account.GetPoints)
			r.Get("/profile", account.GetProfile)
			r.Patch("/profile", account.UpdateProfile)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", orders.CreateOrder)
				r.Get("/", orders.ListOrders)
				r.Get("/groups", orders.Groups)
				r.Get("/{orderID}", orders.GetOrder)
				r.Post("/{orderID}/cancel", orders.CancelOrder)
				r.Get("/{orderID}/products/{productID}/review-eligibility", reviews.Eligibility)
				r.Post("/{orderID}/products/{productID}/reviews", reviews.SubmitReview)
			})

			r.Post("/reviews/images", reviews.UploadImage)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(requireAdmin)
			r.Use(middleware.RequestLogger(logger))

			r.Get("/watch", watch.AdminWatch)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Compress(5))
				r.Use(chimw.Timeout(cfg.RequestTimeout))
				r.Use(ContentTypeJSON)

				r.Get("/orders", admin.ListOrders)
				r.Get("/orders/groups", admin.Groups)
				r.Get("/orders/{orderID}", admin.GetOrder)
				r.Post("/orders/{orderID}/status", admin.AdvanceStatus)
				r.Post("/orders/{orderID}/cancel", admin.CancelOrder)
				r.Post("/users/{userID}/points", admin.CreditPoints)
			})
		})
	})

	return r
}
