package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/middlewares"
	"github.com/Renal37/storefront/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Config struct {
	// Endpoint: адрес и порт, на которых сервер принимает запросы.
	Endpoint string
}

type Router struct {
	config            Config
	jwtService        models.JWTService
	orderService      models.OrderService
	settlementService models.SettlementService
	webhookService    models.WebhookService
	promoService      models.PromoService
	server            *http.Server
}

func New(
	config Config,
	jwtService models.JWTService,
	orderService models.OrderService,
	settlementService models.SettlementService,
	webhookService models.WebhookService,
	promoService models.PromoService,
) *Router {
	return &Router{
		config:            config,
		jwtService:        jwtService,
		orderService:      orderService,
		settlementService: settlementService,
		webhookService:    webhookService,
		promoService:      promoService,
	}
}

func (router *Router) get() chi.Router {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		logger.RequestLogger,
		metrics.Middleware,
		middlewares.ServiceInjectorMiddleware(
			router.jwtService,
			router.orderService,
			router.settlementService,
			router.webhookService,
			router.promoService,
		),
	)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(middlewares.JSONMiddleware[models.OrderRequest]).Post("/", CreateOrder)
			r.Get("/{id}", GetOrder)
			r.With(middlewares.JSONMiddleware[models.StatusReport]).Post("/{id}/status", ReportStatus)
			r.With(middlewares.JSONMiddleware[models.TelegramContact]).Patch("/{id}/telegram", SetTelegram)
		})

		r.With(middlewares.RawBodyMiddleware).Post("/webhooks/payment-gateway", HandlePaymentWebhook)

		r.Get("/promos/{code}", CheckPromo)

		r.With(middlewares.AdminAuthMiddleware).Post("/admin/orders/{id}/complete", CompleteOrder)
	})

	return r
}

// Run блокируется до остановки сервера через Shutdown.
func (router *Router) Run() error {
	router.server = &http.Server{
		Addr:              router.config.Endpoint,
		Handler:           router.get(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Log.Info("server started", zap.String("address", router.config.Endpoint))

	if err := router.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (router *Router) Shutdown(ctx context.Context) error {
	if router.server == nil {
		return nil
	}
	return router.server.Shutdown(ctx)
}
