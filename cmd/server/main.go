package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketing-service/config"
	"ticketing-service/internal/api"
	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
	"ticketing-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing service")

	tp, err := util.InitTracer("ticketing-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		log.Fatalf("Failed to apply schema: %v", err)
	}
	migrateCancel()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification)
	defer notificationProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, notificationProducer)

	seatService := service.NewSeatService(db, redisClient,
		time.Duration(cfg.Business.AvailabilityTTLSecs)*time.Second)
	paymentLedger := service.NewPaymentLedger(db,
		service.RateDecider(cfg.Business.PaymentSuccessRate), eventPublisher)
	notifier := service.NewQueueNotifier(eventPublisher)

	orchestrator := service.NewSagaOrchestrator(
		seatService,
		paymentLedger,
		db,
		db,
		notifier,
		eventPublisher,
		redisClient,
		service.Options{
			TaxFactor:   cfg.Business.TaxFactor,
			CallTimeout: time.Duration(cfg.Business.CallTimeoutSeconds) * time.Second,
			CallRetries: cfg.Business.CallRetries,
			StaleAfter:  time.Duration(cfg.Business.SagaStaleSeconds) * time.Second,
		},
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, map[string]worker.Sender{
		models.ChannelEmail: worker.NewEmailSender(),
		models.ChannelSMS:   worker.NewSMSSender(),
	})
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker stopped: %v", err)
		}
	}()

	recoveryWorker := worker.NewRecoveryWorker(orchestrator,
		time.Duration(cfg.Business.RecoverySweepSecs)*time.Second)
	go func() {
		if err := recoveryWorker.Start(workerCtx); err != nil {
			log.Printf("Recovery worker stopped: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orchestrator, seatService, paymentLedger)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
