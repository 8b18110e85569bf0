package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gateflow/cache"
	"gateflow/config"
	"gateflow/database"
	adminapi "gateflow/internal/api/admin"
	authapi "gateflow/internal/api/auth"
	"gateflow/internal/api/checkout"
	stripewebhooks "gateflow/internal/api/stripewebhook"
	routes "gateflow/internal/app/http"
	"gateflow/internal/infra/kafka"
	"gateflow/internal/infra/metrics"
	"gateflow/internal/notify"
	"gateflow/internal/purchases"
	"gateflow/internal/workers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	config.LoadEnv()

	if config.APP_ENV == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	database.InitDB()
	cache.ConnectRedis()
	metrics.MustRegister()

	var producer *kafka.Producer
	if config.KAFKA_BROKER != "" {
		p, err := kafka.NewProducer(config.KAFKA_BROKER)
		if err != nil {
			log.Fatal().Err(err).Msg("kafka producer init failed")
		}
		producer = p
		defer producer.Close()
	}

	pixel := notify.NewPixelClient(config.META_PIXEL_ID, config.META_CAPI_TOKEN, config.MARKETING_CONSENT)
	notifier := notify.NewNotifier(database.DB, producer, pixel)
	adminapi.Notifier = notifier

	svc := purchases.NewService(purchases.NewGormStore(database.DB))

	webhooks := stripewebhooks.NewHandler(
		config.STRIPE_WEBHOOK_SECRET,
		stripewebhooks.NewGormEventStore(database.DB),
		svc,
		notifier,
		authapi.SendMagicLinkAsync,
	)
	co := &checkout.Handler{Purchases: svc, SendMagicLink: authapi.SendMagicLinkAsync}

	r := gin.Default()
	r.HandleMethodNotAllowed = true

	// ✅ Add CORS middleware BEFORE registering routes
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("CORS_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, webhooks, co)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := workers.NewPaymentReconciler(
		database.DB,
		svc,
		time.Duration(config.RECONCILE_INTERVAL_MIN)*time.Minute,
		time.Duration(config.RECONCILE_STALE_AFTER_MIN)*time.Minute,
		log.Logger,
	)
	go reconciler.Run(ctx)
	go workers.NewExpiryWorker(database.DB, time.Hour, log.Logger).Run(ctx)

	if err := r.Run(":" + config.PORT); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
