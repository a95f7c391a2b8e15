package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/paypal-checkout/internal/api"
	"github.com/example/paypal-checkout/internal/auth"
	"github.com/example/paypal-checkout/internal/checkout"
	"github.com/example/paypal-checkout/internal/config"
	"github.com/example/paypal-checkout/internal/fulfillment"
	"github.com/example/paypal-checkout/internal/kafka"
	"github.com/example/paypal-checkout/internal/paypal"
	"github.com/example/paypal-checkout/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Configuration error: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] PayPal Checkout Backend")
	log.Println("[API] ========================================")
	log.Printf("[API] Environment: %s (%s)", cfg.Environment, cfg.APIBase)
	log.Printf("[API] Store backend: %s", cfg.StoreBackend)
	log.Printf("[API] Kafka: %v topic %s", cfg.KafkaBrokers, cfg.KafkaTopic)
	if cfg.WebhookID == "" {
		log.Println("[API] WARNING: PAYPAL_WEBHOOK_ID is empty, webhook verification will reject all events")
	}

	// Order store
	var orderStore checkout.Store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		orderStore = store.NewPostgresOrderStore(db)
		log.Println("[API] Connected to PostgreSQL")
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[API] Failed to load AWS config: %v", err)
		}
		orderStore = store.NewDynamoOrderStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		log.Printf("[API] Using DynamoDB table %s", cfg.DynamoTable)
	default:
		orderStore = store.NewMemoryOrderStore()
		log.Println("[API] Using in-memory order store")
	}

	// Fulfillment bus
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	dispatcher := fulfillment.NewKafkaDispatcher(producer)

	// Processor client and checkout service
	client := paypal.NewClient(paypal.Options{
		BaseURL:      cfg.APIBase,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		WebhookID:    cfg.WebhookID,
		ReturnURL:    cfg.ReturnURL,
		CancelURL:    cfg.CancelURL,
	})
	service := checkout.NewService(orderStore, client, dispatcher)

	// HTTP surface
	handlers := api.NewHandlers(service, client, cfg.ClientID)
	routerCfg := api.RouterConfig{Handlers: handlers}
	if cfg.AdminEnabled() {
		jwtService := auth.NewJWTService(cfg.JWTSecret, 15*time.Minute)
		routerCfg.AdminHandlers = api.NewAdminHandlers(service, jwtService, cfg.AdminPasswordHash)
		routerCfg.JWTService = jwtService
		log.Println("[API] Admin endpoints enabled")
	}
	router := api.NewRouter(routerCfg)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
