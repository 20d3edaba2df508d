package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/api/handler"
	mw "github.com/edvin/metering/internal/api/middleware"
	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/core"
)

// Pinger reports database reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	db       Pinger
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, db Pinger, services *core.Services, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		db:       db,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
}

func (s *Server) setupRoutes() {
	// Served here unless a dedicated metrics listener is configured.
	if s.cfg.MetricsAddr == "" {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Ingestion, authenticated by tenant API key.
	event := handler.NewEvent(s.services.Event)
	s.router.With(mw.APIKeyAuth(s.services.APIKey)).Post("/v1/events", event.Ingest)

	s.router.Route("/internal/v1", func(r chi.Router) {
		r.Use(mw.AdminAuth(s.cfg.AdminToken))

		aggregation := handler.NewAggregation(s.services.Aggregator, s.cfg.AggregationBatchSize, s.cfg.AggregationMaxBatches)
		r.Post("/aggregations", aggregation.Run)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		// Payment provider webhook, authenticated by its signature.
		payment := handler.NewPayment(s.services.Payment)
		r.Post("/payments/payfast/itn", payment.PayFastITN)

		r.Group(func(r chi.Router) {
			r.Use(mw.SessionAuth(s.cfg.SessionJWTSecret, s.cfg.SessionJWTIssuer))

			// API keys
			apiKey := handler.NewAPIKey(s.services.APIKey)
			r.Get("/api-keys", apiKey.List)
			r.Post("/api-keys", apiKey.Create)
			r.Get("/api-keys/{id}", apiKey.Get)
			r.Delete("/api-keys/{id}", apiKey.Revoke)

			// Catalog
			product := handler.NewProduct(s.services.Catalog)
			r.Get("/products", product.List)
			r.Post("/products", product.Create)
			r.Get("/products/{id}", product.Get)
			r.Put("/products/{id}/price", product.SetPrice)

			// Customers
			customer := handler.NewCustomer(s.services.Customer, s.services.Usage)
			r.Get("/customers", customer.List)
			r.Post("/customers", customer.Create)
			r.Get("/customers/{id}", customer.Get)
			r.Get("/customers/{id}/usage", customer.Usage)

			// Invoices
			invoice := handler.NewInvoice(s.services.Invoice, s.services.Generator)
			r.Post("/customers/{id}/invoices", invoice.Generate)
			r.Get("/invoices", invoice.List)
			r.Get("/invoices/{id}", invoice.Get)
			r.Get("/invoices/{id}/document", invoice.Document)
			r.Post("/invoices/{id}/mark-paid", invoice.MarkPaid)

			// Events
			r.Get("/events", event.List)

			// Subscription
			subscription := handler.NewSubscription(s.services.Tenant, s.services.Payment)
			r.Get("/subscription", subscription.Get)
			r.Post("/subscription/checkout", subscription.Checkout)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
