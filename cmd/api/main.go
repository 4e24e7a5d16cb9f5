package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-inventory/internal/api/http"
	"github.com/spec-kit/ticket-inventory/internal/api/http/handlers"
	"github.com/spec-kit/ticket-inventory/internal/auth"
	"github.com/spec-kit/ticket-inventory/internal/cache"
	"github.com/spec-kit/ticket-inventory/internal/clock"
	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/observability"
	"github.com/spec-kit/ticket-inventory/internal/persistence"
	"github.com/spec-kit/ticket-inventory/internal/repository"
	"github.com/spec-kit/ticket-inventory/internal/repository/memory"
	"github.com/spec-kit/ticket-inventory/internal/service"
	"github.com/spec-kit/ticket-inventory/internal/ticketqr"
	"github.com/spec-kit/ticket-inventory/internal/worker"
)

const demoEventID = "demo-event"

type stores struct {
	events      repository.EventCatalog
	ticketTypes repository.TicketTypeRepository
	tickets     repository.TicketRepository
	tx          repository.Transactor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clk := clock.Real()
	repos := buildStores(pg, clk, logger, cfg.App.SeedDemoEvent)
	metrics := observability.NewMetrics()

	// Both constructors return nil, and their nil receivers no-op, when Redis is disabled.
	availability := cache.NewAvailabilityCache(redis.Cmdable(), cfg.Cache.AvailabilityTTL())
	idempotency := cache.NewIdempotencyStore(redis.Cmdable(), cfg.Cache.IdempotencyTTL())

	dispatcher := events.NewInMemoryDispatcher()
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(
			events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			logger,
			events.KafkaPublisherConfig{BufferSize: cfg.Kafka.BufferSize, WriteTimeout: cfg.Kafka.WriteTimeout()},
		)
		defer kafkaPublisher.Close() //nolint:errcheck
		logger.Info("streaming domain events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	subscribers := []worker.Subscriber{events.NewAuditLog(logger)}
	if kafkaPublisher != nil {
		subscribers = append(subscribers, kafkaPublisher)
	}
	worker.StartSubscribers(dispatcher, subscribers...)

	ticketTypeService := service.NewTicketTypeService(service.TicketTypeDependencies{
		EventCatalog:   repos.events,
		TicketTypeRepo: repos.ticketTypes,
		TicketRepo:     repos.tickets,
		Clock:          clk,
		Cache:          availability,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		Config:         cfg.Purchase,
	})
	purchaseCoordinator := service.NewPurchaseCoordinator(service.PurchaseDependencies{
		TicketTypeRepo: repos.ticketTypes,
		TicketRepo:     repos.tickets,
		Transactor:     repos.tx,
		Clock:          clk,
		Cache:          availability,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		Config:         cfg.Purchase,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repos.tickets,
		Clock:      clk,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	qr := ticketqr.NewGenerator(cfg.Tickets.QRSecret, cfg.Tickets.QRSize)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:    cfg.App.RequestTimeout(),
		RetryAfter: time.Duration(cfg.Purchase.RetryAfterSecond) * time.Second,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		TicketTypes:    handlers.NewTicketTypesHandler(ticketTypeService, purchaseCoordinator, idempotency, logger),
		Tickets:        handlers.NewTicketsHandler(ticketService, qr),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	sweepDone := worker.NewExpiryWorker(ticketService, cfg.Tickets.ExpirySweepInterval(), logger).Start(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	<-sweepDone
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// buildStores selects Postgres when a pool is open, otherwise the in-memory
// store. seedDemo adds a demo event to the in-memory store so ticket types can
// be created locally.
func buildStores(pg *persistence.Postgres, clk clock.Clock, logger *zap.Logger, seedDemo bool) stores {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return stores{
			events:      repository.NewEventCatalog(pool),
			ticketTypes: repository.NewTicketTypeRepository(pool),
			tickets:     repository.NewTicketRepository(pool),
			tx:          repository.NewTransactor(pool),
		}
	}
	mem := memory.NewStore()
	if seedDemo {
		seedDemoEvent(mem, clk)
		logger.Info("in-memory store seeded", zap.String("event_id", demoEventID))
	} else {
		logger.Warn("in-memory store has no events; set DEV_SEED_DEMO_EVENT=true for a demo event")
	}
	return stores{
		events:      mem.Events(),
		ticketTypes: mem.TicketTypes(),
		tickets:     mem.Tickets(),
		tx:          mem,
	}
}

func seedDemoEvent(mem *memory.Store, clk clock.Clock) {
	now := clk.Now()
	mem.PutEvent(domain.Event{
		ID:       demoEventID,
		Name:     "Demo Event",
		StartsAt: now.Add(7 * 24 * time.Hour),
		EndsAt:   now.Add(8 * 24 * time.Hour),
		Active:   true,
	})
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
