package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/receiptflow/internal/config"
	"github.com/example/receiptflow/internal/infrastructure/kafka"
	"github.com/example/receiptflow/internal/status"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Watch] Configuration error: %v", err)
	}

	log.Println("[Watch] ========================================")
	log.Println("[Watch] ReceiptFlow - Status Watcher")
	log.Println("[Watch] ========================================")
	log.Printf("[Watch] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Watch] Topic: %s", cfg.StatusTopic)

	// Mirror the status feed into a local store so each event can be
	// printed with its running totals.
	statuses := status.NewStore()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.StatusTopic, "status-watch")
	defer consumer.Close()

	go func() {
		log.Println("[Watch] Starting status consumer...")
		if err := consumer.Consume(ctx, func(ctx context.Context, key, value []byte) error {
			var e status.Event
			if err := json.Unmarshal(value, &e); err != nil {
				log.Printf("[Watch] Skipping malformed event: %v", err)
				return nil
			}
			statuses.Update(e)
			printEvent(e, statuses.Get())
			return nil
		}); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Watch] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Watch] Shutting down...")
	cancel()
}

func printEvent(e status.Event, snap status.Snapshot) {
	switch e.Type {
	case status.EventActivity:
		if e.Activity != nil {
			log.Printf("[Watch] %-7s %s", e.Activity.Type, e.Activity.Message)
		}
	case status.EventProgress:
		log.Printf("[Watch] found=%d scheduled=%d completed=%d failed=%d processing=%t",
			snap.Found, snap.Scheduled, snap.Completed, snap.Failed, snap.IsProcessing)
	case status.EventReset:
		log.Println("[Watch] status reset (new schedule)")
	}
}
