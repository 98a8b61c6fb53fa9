package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/receiptflow/internal/config"
	"github.com/example/receiptflow/internal/discovery"
	"github.com/example/receiptflow/internal/domain/order"
	"github.com/example/receiptflow/internal/domain/receipt"
	"github.com/example/receiptflow/internal/enrichment"
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
		log.Fatalf("[Runner] Configuration error: %v", err)
	}
	if cfg.VendorSearchURL == "" || cfg.VendorDetailsURL == "" {
		log.Fatal("[Runner] VENDOR_SEARCH_URL and VENDOR_DETAILS_URL environment variables are required")
	}

	log.Println("[Runner] ========================================")
	log.Println("[Runner] ReceiptFlow - Pipeline Runner")
	log.Println("[Runner] ========================================")
	log.Printf("[Runner] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Runner] Status topic: %s", cfg.StatusTopic)
	log.Printf("[Runner] Receipts: %s", cfg.ReceiptDir)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic)
	defer producer.Close()

	archive, closeArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		log.Fatalf("[Runner] Failed to initialize archive: %v", err)
	}
	defer closeArchive()

	statuses := status.NewStore()
	sink := status.MultiSink{statuses, status.NewKafkaSink(producer, "status")}

	generator := receipt.NewFileGenerator(cfg.ReceiptDir)
	opts := receipt.Options{
		IncludeImages: cfg.IncludeImages,
		Method:        receiptMethod(cfg.ReceiptMethod),
	}
	sched := scheduler.New(generator, sink, opts)

	// Stop the current run on SIGINT/SIGTERM; a second signal kills us.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[Runner] Shutting down...")
		sched.Stop()
		cancel()
	}()

	if err := run(ctx, cfg, archive, sink, sched); err != nil {
		log.Fatalf("[Runner] %v", err)
	}
	log.Println("[Runner] Done")
}

func run(ctx context.Context, cfg config.Config, archive store.Archive, sink status.Sink, sched *scheduler.Scheduler) error {
	searcher := discovery.NewHTTPClient(cfg.VendorSearchURL)
	enricher := enrichment.NewHTTPClient(cfg.VendorDetailsURL, cfg.EnterpriseCode)

	sink.Update(status.Event{Type: status.EventProgress, Processing: ptr(true)})
	defer sink.Update(status.Event{Type: status.EventProgress, Processing: ptr(false)})

	for _, kind := range []order.Kind{order.KindInStore, order.KindOnline} {
		discovered, err := discover(ctx, cfg, searcher, sink, kind)
		if err != nil {
			return fmt.Errorf("discover %s orders: %w", kind, err)
		}
		if err := enrich(ctx, cfg, archive, enricher, sink, discovered); err != nil {
			return err
		}
	}

	enriched, err := archive.ListEnriched(ctx)
	if err != nil {
		return fmt.Errorf("list enriched orders: %w", err)
	}
	if len(enriched) == 0 {
		log.Println("[Runner] No enriched orders; nothing to schedule")
		return nil
	}

	schedule, err := sched.Build(enriched, scheduler.DefaultTimingConfig())
	if err != nil {
		return fmt.Errorf("build schedule: %w", err)
	}
	log.Printf("[Runner] Scheduled %d orders (run %s)", schedule.Total, schedule.RunID)

	return sched.Start(ctx)
}

func discover(ctx context.Context, cfg config.Config, searcher *discovery.HTTPClient, sink status.Sink, kind order.Kind) ([]order.Order, error) {
	log.Printf("[Runner] Discovering %s orders...", kind)
	return searcher.All(ctx, kind, func(p discovery.Page) {
		label := fmt.Sprintf("%s page %d", kind, p.Number)
		sink.Update(status.Event{
			Type:       status.EventProgress,
			PageLabel:  ptr(label),
			FoundDelta: len(p.Orders),
		})
		log.Printf("[Runner] %s: %d orders", label, len(p.Orders))
		sleep(ctx, cfg.PageDelay)
	})
}

func enrich(ctx context.Context, cfg config.Config, archive store.Archive, enricher enrichment.Client, sink status.Sink, discovered []order.Order) error {
	for _, o := range discovered {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cached, err := archive.Get(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("lookup order %s: %w", o.ID, err)
		}
		if cached != nil && cached.Enriched {
			continue
		}

		if o.VendorLookupKey == "" {
			// Discovery-only order; archive it as-is.
			if err := archive.Save(ctx, o); err != nil {
				return fmt.Errorf("save order %s: %w", o.ID, err)
			}
			continue
		}

		enrichedOrder, err := enricher.Enrich(ctx, o)
		if err != nil {
			log.Printf("[Runner] Enrich %s failed: %v", o.ID, err)
			sink.Update(status.NewActivity(status.ActivityError, fmt.Sprintf("enrich %s failed (%s)", o.ID, enrichment.ReasonOf(err))))
			if err := archive.Save(ctx, o); err != nil {
				return fmt.Errorf("save order %s: %w", o.ID, err)
			}
			sleep(ctx, cfg.PageDelay)
			continue
		}

		if err := archive.Save(ctx, enrichedOrder); err != nil {
			return fmt.Errorf("save order %s: %w", o.ID, err)
		}
		sink.Update(status.NewActivity(status.ActivitySuccess, "enriched order "+o.ID))
		sleep(ctx, cfg.PageDelay)
	}
	return nil
}

// sleep waits d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (store.Archive, func(), error) {
	if cfg.DynamoTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[Runner] Archive: DynamoDB table %s", cfg.DynamoTable)
		return store.NewDynamoArchive(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), func() {}, nil
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Println("[Runner] Archive: PostgreSQL")
	return store.NewPostgresArchive(db), func() { db.Close() }, nil
}

func receiptMethod(name string) string {
	if name == receipt.MethodPrint {
		return receipt.MethodPrint
	}
	return receipt.MethodDownload
}

func ptr[T any](v T) *T { return &v }
