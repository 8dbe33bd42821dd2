package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"open-finance-sync-go/internal/api"
	"open-finance-sync-go/internal/audit"
	"open-finance-sync-go/internal/database"
	"open-finance-sync-go/internal/formance"
	"open-finance-sync-go/internal/ingest"
	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/provider"
	"open-finance-sync-go/internal/reconcile"
	"open-finance-sync-go/internal/syncer"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService       *database.Service
	ProviderService *provider.Service
	SyncService     *syncer.Service
	LedgerService   *api.LedgerService
	Mirror          *formance.Service

	publisher *audit.Publisher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires storage, the provider client and the sync
// pipeline. The Formance mirror and the RabbitMQ audit fan-out are only
// started when configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	zap.L().Info("Configuring Open Finance provider",
		zap.String("provider", cfg.Provider.Name),
		zap.String("base_url", cfg.Provider.BaseURL))
	providerService, err := provider.NewService(provider.ServiceConfig{
		Provider: cfg.Provider,
		Retry:    cfg.Retry,
	})
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	services.ProviderService = providerService

	ingestOpts, err := services.ingestOptions(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}

	sink, err := services.auditSink(cfg.Audit)
	if err != nil {
		services.Close()
		return nil, err
	}

	services.SyncService = syncer.NewService(
		dbService,
		providerService,
		reconcile.NewReconciler(dbService, providerService.Name()),
		ingest.NewIngester(dbService, ingestOpts...),
		sink,
		syncer.WithTimeout(cfg.Scheduler.SyncTimeout),
	)
	services.LedgerService = api.NewLedgerService(dbService, services.SyncService)

	return services, nil
}

func (cs *Services) ingestOptions(ctx context.Context, cfg *models.Config) ([]ingest.Option, error) {
	var opts []ingest.Option

	if cfg.Ingest.CategoryRulesFile != "" {
		categories, err := LoadCategoryRules(cfg.Ingest.CategoryRulesFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("Loaded category rules",
			zap.String("file", cfg.Ingest.CategoryRulesFile),
			zap.Int("labels", len(categories)))
		opts = append(opts, ingest.WithCategories(categories))
	}

	if cfg.Formance.Enabled() {
		zap.L().Info("Connecting to Formance ledger", zap.String("stack_url", cfg.Formance.StackURL))
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Formance mirror: %w", err)
		}
		cs.Mirror = mirror
		opts = append(opts, ingest.WithMirror(mirror))
	}

	return opts, nil
}

func (cs *Services) auditSink(cfg models.AuditConfig) (audit.Sink, error) {
	storeSink := audit.NewStoreSink(cs.DbService)
	if cfg.AmqpURL == "" {
		return storeSink, nil
	}

	publisher, err := audit.NewPublisher(cfg.AmqpURL, cfg.Exchange, cfg.RoutingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit publisher: %w", err)
	}
	cs.publisher = publisher
	return audit.MultiSink{storeSink, publisher}, nil
}

// InitializeDatabaseOnly initializes just the database service without the
// provider client. Useful for read-only operations like listing accounts.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.publisher != nil {
		cs.publisher.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
