package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amelbenhazem/SmartShopTn/internal/service"
	"github.com/amelbenhazem/SmartShopTn/pkg/health"
	"github.com/amelbenhazem/SmartShopTn/pkg/middleware"
)

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	cartService *service.CartService,
	checkoutService *service.CheckoutService,
	orderService *service.OrderService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, pprofCIDRs, logger)

	cartHandler := NewCartHandler(cartService, logger)
	orderHandler := NewOrderHandler(checkoutService, orderService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(Identity)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productID}", cartHandler.UpdateItemQuantity)
			r.Delete("/items/{productID}", cartHandler.RemoveItem)
		})

		r.Post("/checkout", orderHandler.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.ListMyOrders)
			r.Get("/{orderID}", orderHandler.GetOrder)

			r.With(RequireAdmin).Patch("/{orderID}/status", orderHandler.UpdateStatus)
		})
	})

	return r
}
