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
	"github.com/example/receiptflow/internal/api"
	"github.com/example/receiptflow/internal/auth"
	"github.com/example/receiptflow/internal/config"
	"github.com/example/receiptflow/internal/domain/receipt"
	"github.com/example/receiptflow/internal/infrastructure/kafka"
	"github.com/example/receiptflow/internal/infrastructure/store"
	"github.com/example/receiptflow/internal/scheduler"
	"github.com/example/receiptflow/internal/status"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Configuration error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("[API] JWT_SECRET environment variable is required")
	}
	if cfg.OperatorPasswordHash == "" {
		log.Fatal("[API] OPERATOR_PASSWORD_HASH environment variable is required")
	}

	log.Println("[API] ========================================")
	log.Println("[API] ReceiptFlow - Operator API")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[API] Status topic: %s", cfg.StatusTopic)

	// Initialize Kafka producer for the status feed
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic)
	defer producer.Close()

	// Initialize order archive
	archive, closeArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to initialize archive: %v", err)
	}
	defer closeArchive()

	// Status store, mirrored to Kafka
	statuses := status.NewStore()
	sink := status.MultiSink{statuses, status.NewKafkaSink(producer, "status")}

	// Scheduler over file-based receipt generation
	generator := receipt.NewFileGenerator(cfg.ReceiptDir)
	opts := receipt.Options{
		IncludeImages: cfg.IncludeImages,
		Method:        receiptMethod(cfg.ReceiptMethod),
	}
	sched := scheduler.New(generator, sink, opts)

	// Auth
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)
	creds := auth.Credentials{Operator: cfg.Operator, PasswordHash: cfg.OperatorPasswordHash}

	handlers := api.NewHandlers(creds, tokens, statuses, sched, archive)
	router := api.NewRouter(handlers, tokens)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// buildArchive selects DynamoDB when a table is configured, Postgres
// otherwise.
func buildArchive(ctx context.Context, cfg config.Config) (store.Archive, func(), error) {
	if cfg.DynamoTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Archive: DynamoDB table %s", cfg.DynamoTable)
		return store.NewDynamoArchive(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), func() {}, nil
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Println("[API] Archive: PostgreSQL")
	return store.NewPostgresArchive(db), func() { db.Close() }, nil
}

func receiptMethod(name string) string {
	if name == receipt.MethodPrint {
		return receipt.MethodPrint
	}
	return receipt.MethodDownload
}
