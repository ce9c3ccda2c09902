package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Renal37/storefront/internal/broker"
	"github.com/Renal37/storefront/internal/database"
	router "github.com/Renal37/storefront/internal/http"
	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/services"
	"github.com/Renal37/storefront/internal/utils"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	config, err := NewConfig()
	if err != nil {
		log.Fatalf("Config wasn't loaded due to %s", err)
	}

	jwtService := services.NewJWTService(config.AuthSecretKey)

	if config.IssueAdminToken != "" {
		token, err := jwtService.GenerateJWT(config.IssueAdminToken)
		if err != nil {
			log.Fatalf("Admin token wasn't issued due to %s", err)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Initialize(config.LogLevel, config.Env); err != nil {
		log.Fatalf("Logger wasn't initialized due to %s", err)
	}

	db, err := database.New(ctx, config.DSN)
	if err != nil {
		logger.Log.Fatal("database wasn't initialized", zap.Error(err))
	}

	if err := db.RunMigrations(); err != nil {
		logger.Log.Fatal("migrations weren't run", zap.Error(err))
	}

	jobQueueService := services.NewJobQueueService(ctx, config.JobQueueCapacity, config.JobQueueWorkers)

	dispatcher := services.NewEventDispatcher(jobQueueService)
	dispatcher.Subscribe("log", services.LogSink, services.AllEventTypes...)

	kafkaClient := broker.NewClient(config.KafkaBrokers)
	var eventSink *broker.OrderEventSink
	if kafkaClient.Enabled() {
		eventSink = broker.NewOrderEventSink(kafkaClient.NewWriter(config.OrderEventsTopic))
		dispatcher.Subscribe("kafka", eventSink.Publish, services.AllEventTypes...)
		logger.Log.Info("order events are published to kafka",
			zap.Strings("brokers", kafkaClient.Brokers),
			zap.String("topic", config.OrderEventsTopic),
		)
	}

	paymentService := services.NewPaymentService(
		config.GatewayURL,
		config.GatewayShopID,
		config.GatewaySecretKey,
		config.FrontendURL,
	)

	orderService := services.NewOrderService(db, paymentService, dispatcher, config.ShippingFee)
	settlementService := services.NewSettlementService(db, paymentService, dispatcher, config.FallbackVerifyPayment)

	webhookService, err := services.NewWebhookService(
		settlementService,
		services.WebhookVerification(config.WebhookVerification),
		config.WebhookSecret,
	)
	if err != nil {
		logger.Log.Fatal("webhook service wasn't initialized", zap.Error(err))
	}

	sweeper := services.NewSweeper(db, jobQueueService, dispatcher, config.PendingTimeout, config.SweepInterval)
	if err := sweeper.Start(); err != nil {
		logger.Log.Fatal("sweeper wasn't started", zap.Error(err))
	}

	server := router.New(
		router.Config{Endpoint: config.Endpoint},
		jwtService,
		orderService,
		settlementService,
		webhookService,
		services.NewPromoService(db),
	)

	utils.HandleTerminationProcess(shutdownTimeout, func(ctx context.Context) {
		if err := server.Shutdown(ctx); err != nil {
			logger.Log.Error("server shutdown failed", zap.Error(err))
		}

		jobQueueService.Shutdown()

		if eventSink != nil {
			if err := eventSink.Close(); err != nil {
				logger.Log.Error("kafka writer wasn't closed", zap.Error(err))
			}
		}

		db.Close()
		_ = logger.Log.Sync()
	})

	if err := server.Run(); err != nil {
		logger.Log.Fatal("server stopped", zap.Error(err))
	}

	// Run возвращается после Shutdown. Процесс завершает обработчик сигнала.
	select {}
}
