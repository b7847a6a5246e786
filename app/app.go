package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"ohmystock/api"
	"ohmystock/cache"
	"ohmystock/config"
	"ohmystock/database"
	"ohmystock/database/reports"
	"ohmystock/database/snapshots"
	"ohmystock/database/webhooks"
	"ohmystock/llm"
	"ohmystock/notifications"
	"ohmystock/providers"
	"ohmystock/realtime"
)

// App represents the main application
type App struct {
	config *config.Config

	db      *database.Database
	statsDB *database.StatsDB
	redis   *cache.RedisClient

	snapshotRepo *snapshots.Repository
	reportRepo   *reports.Repository
	webhookRepo  *webhooks.Repository

	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker

	collector    *PriceCollector
	orchestrator *Orchestrator
	scheduler    *cron.Cron
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start starts the application and blocks until shutdown
func (a *App) Start() error {
	// 1. Database connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.Migrate(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	// Separate raw connection for aggregate stats queries
	statsDB, err := database.NewStatsDB(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("stats connection failed: %w", err)
	}
	a.statsDB = statsDB

	// 2. Redis connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Repositories
	a.snapshotRepo = snapshots.NewRepository(a.db.DB())
	a.reportRepo = reports.NewRepository(a.db.DB())
	a.webhookRepo = webhooks.NewRepository(a.db.DB())

	// 4. Notification fan-out
	a.webhookManager = notifications.NewWebhookManager(a.webhookRepo, a.redis)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	dispatcher := NewEventDispatcher(a.webhookManager, a.broker, a.redis)

	// 5. External providers
	marketData := providers.NewKRXClient(
		a.config.MarketData.BaseURL,
		a.config.MarketData.APIKey,
		a.config.MarketData.TimeoutSeconds,
	)
	contextProviders := []providers.ContextProvider{
		providers.NewNewsClient(
			a.config.News.BaseURL,
			a.config.News.APIKey,
			a.config.News.TimeoutSeconds,
		),
		providers.NewDARTClient(
			a.config.Disclosure.BaseURL,
			a.config.Disclosure.APIKey,
			a.config.Disclosure.TimeoutSeconds,
		),
	}

	// 6. Reasoning service
	var synth AnalysisSynthesizer
	if a.config.LLM.Enabled {
		llmClient := llm.NewClient(
			a.config.LLM.Endpoint,
			a.config.LLM.APIKey,
			a.config.LLM.Model,
			a.config.LLM.TimeoutSeconds,
		)
		backoff := time.Duration(a.config.Pipeline.RetryBackoffMS) * time.Millisecond
		synth = llm.NewSynthesizer(llmClient, a.config.LLM.MaxAttempts, backoff)
		log.Printf("✅ Reasoning service ENABLED (model: %s)", a.config.LLM.Model)
	} else {
		log.Println("ℹ️  Reasoning service DISABLED")
	}

	// 7. Pipeline
	similarity := NewSimilarityEngine(a.snapshotRepo)
	sectorImpact := NewSectorImpactBuilder(&sectorAdapter{reports: a.reportRepo, snaps: a.snapshotRepo})

	a.orchestrator = NewOrchestrator(
		a.reportRepo,
		contextProviders,
		similarity,
		sectorImpact,
		synth,
		dispatcher,
		a.config.LLM.Enabled,
		a.config.Pipeline,
	)

	detector := NewSpikeDetector(a.reportRepo)
	detector.SetCanceller(a.orchestrator)

	priceCache := cache.NewPriceCache(a.redis)
	a.collector = NewPriceCollector(a.snapshotRepo, marketData, priceCache, detector, a.config.Collector)

	a.orchestrator.Start()

	// 8. Collection schedule
	a.scheduler = cron.New()
	_, err = a.scheduler.AddFunc(a.config.Collector.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		a.collector.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid collector schedule %q: %w", a.config.Collector.Schedule, err)
	}
	a.scheduler.Start()
	log.Printf("🚀 Snapshot collector scheduled (%s, %d workers)",
		a.config.Collector.Schedule, a.config.Collector.Workers)

	// 9. API server
	apiServer := api.NewServer(a.reportRepo, a.webhookRepo, a.webhookManager, a.broker, a.statsDB)
	apiServer.SetSimilarFinder(similarity)
	apiServer.SetPipelineStats(a.orchestrator)
	apiServer.SetPriceCache(priceCache, a.snapshotRepo)

	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API server failed: %v", err)
		}
	}()

	// 10. Wait for interrupt and shut down
	return a.gracefulShutdown()
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown() error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			fmt.Println("⏱️  Stopping collection schedule...")
			<-a.scheduler.Stop().Done()
		}

		if a.orchestrator != nil {
			fmt.Println("📝 Draining report pipeline...")
			a.orchestrator.Stop()
		}

		if a.statsDB != nil {
			if err := a.statsDB.Close(); err != nil {
				log.Printf("Error closing stats connection: %v", err)
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// sectorAdapter joins the reference reads of two repositories into the
// SectorSource the impact builder expects.
type sectorAdapter struct {
	reports *reports.Repository
	snaps   *snapshots.Repository
}

func (s *sectorAdapter) SameSector(sector string, exclude uuid.UUID, limit int) ([]database.Stock, error) {
	return s.reports.SameSector(sector, exclude, limit)
}

func (s *sectorAdapter) LatestSince(stockID uuid.UUID, since time.Time) (*database.PriceSnapshot, error) {
	return s.snaps.LatestSince(stockID, since)
}
