package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Endpoint      string `env:"RUN_ADDRESS" envDefault:"localhost:8090"`
	DSN           string `env:"DATABASE_URI"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"error"`
	Env           string `env:"ENV" envDefault:"production"`
	AuthSecretKey string `env:"AUTH_SECRET_KEY"`

	GatewayURL       string `env:"GATEWAY_URL" envDefault:"https://api.yookassa.ru/v3"`
	GatewayShopID    string `env:"GATEWAY_SHOP_ID"`
	GatewaySecretKey string `env:"GATEWAY_SECRET_KEY"`
	FrontendURL      string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	WebhookVerification string `env:"WEBHOOK_VERIFICATION" envDefault:"required"`
	WebhookSecret       string `env:"WEBHOOK_SECRET"`

	ShippingFee           int64         `env:"SHIPPING_FEE" envDefault:"449"`
	PendingTimeout        time.Duration `env:"PENDING_TIMEOUT" envDefault:"15m"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	FallbackVerifyPayment bool          `env:"FALLBACK_VERIFY_PAYMENT" envDefault:"true"`

	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	OrderEventsTopic string `env:"ORDER_EVENTS_TOPIC" envDefault:"storefront.order-events"`

	JobQueueCapacity int `env:"JOB_QUEUE_CAPACITY" envDefault:"100"`
	JobQueueWorkers  int `env:"JOB_QUEUE_WORKERS" envDefault:"2"`

	// IssueAdminToken: если задан, сервис печатает токен администратора для этого субъекта и завершается.
	IssueAdminToken string
}

func generateRandomString(length int) string {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// NewConfig читает переменные окружения, флаги командной строки имеют приоритет.
func NewConfig() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}

	flag.StringVar(&config.Endpoint, "a", config.Endpoint, "address and port to run server")
	flag.StringVar(&config.DSN, "d", config.DSN, "data source name for database connection")
	flag.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	flag.StringVar(&config.IssueAdminToken, "issue-admin-token", "", "print an admin token for the given subject and exit")
	flag.Parse()

	if config.ShippingFee < 0 {
		return Config{}, fmt.Errorf("SHIPPING_FEE не может быть отрицательной: %d", config.ShippingFee)
	}

	if config.PendingTimeout <= 0 || config.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("PENDING_TIMEOUT и SWEEP_INTERVAL должны быть положительными")
	}

	if config.JobQueueCapacity <= 0 || config.JobQueueWorkers <= 0 {
		return Config{}, fmt.Errorf("JOB_QUEUE_CAPACITY и JOB_QUEUE_WORKERS должны быть положительными")
	}

	if config.AuthSecretKey == "" {
		if config.Env == "production" {
			config.AuthSecretKey = generateRandomString(10)
			log.Printf("WARNING: AUTH_SECRET_KEY has to be defined for production environment\n")
		} else {
			config.AuthSecretKey = "development-key"
		}
	}

	return config, nil
}
