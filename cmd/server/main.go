package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/library-seat-lease/internal/config"
	"github.com/iliyamo/library-seat-lease/internal/database"
	"github.com/iliyamo/library-seat-lease/internal/floor"
	"github.com/iliyamo/library-seat-lease/internal/handler"
	"github.com/iliyamo/library-seat-lease/internal/lease"
	"github.com/iliyamo/library-seat-lease/internal/logger"
	"github.com/iliyamo/library-seat-lease/internal/middleware"
	"github.com/iliyamo/library-seat-lease/internal/queue"
	"github.com/iliyamo/library-seat-lease/internal/repository"
	"github.com/iliyamo/library-seat-lease/internal/router"
	"github.com/iliyamo/library-seat-lease/internal/service"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "seat-lease")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

type backends struct {
	tables store.TableStore
	holds  store.HoldStore
	db     *sql.DB
	rdb    *redis.Client
}

func (b backends) close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// openBackends connects the configured stores.  Redis is optional unless
// it backs the holds: without it caching and rate limiting are disabled.
func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (backends, error) {
	var b backends

	if cfg.UsesMySQL() {
		db, err := database.Open(cfg.MySQL.User, cfg.MySQL.Pass, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Name)
		if err != nil {
			return b, fmt.Errorf("mysql: %w", err)
		}
		b.db = db
		if cfg.MySQL.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				b.close()
				return b, fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema migrated")
		}
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	switch {
	case err == nil:
		b.rdb = rdb
	case cfg.Store.HoldBackend == config.BackendRedis:
		b.close()
		return b, err
	default:
		log.Warn("redis unavailable; cache and rate limit disabled", zap.Error(err))
	}

	var mem *store.Memory
	memory := func() *store.Memory {
		if mem == nil {
			mem = store.NewMemory(cfg.Lease.Retention, nil)
		}
		return mem
	}

	switch cfg.Store.TableBackend {
	case config.BackendMySQL:
		b.tables = repository.NewTableRepo(b.db)
	default:
		b.tables = memory()
		log.Warn("using in-memory table store; tables must be provisioned in process")
	}
	switch cfg.Store.HoldBackend {
	case config.BackendRedis:
		b.holds = repository.NewRedisHoldStore(b.rdb, cfg.Redis.Prefix, cfg.Lease.Retention)
	case config.BackendMySQL:
		b.holds = repository.NewHoldRepo(b.db)
	default:
		b.holds = memory()
	}
	log.Info("stores ready", zap.String("tables", cfg.Store.TableBackend), zap.String("holds", cfg.Store.HoldBackend))
	return b, nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	var pub lease.Publisher = lease.NopPublisher{}
	var amqpPub *service.AMQPPublisher
	if cfg.Events.Enabled {
		amqpPub = service.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue, log, service.PublisherOptions{
			Buffer:  cfg.Events.Buffer,
			Backoff: cfg.Events.RedialBackoff,
		})
		defer func() { _ = amqpPub.Close() }()
		pub = amqpPub
	}

	mgr := lease.NewManager(b.tables, b.holds, pub, log, lease.Options{
		HoldTTL:              cfg.Lease.HoldTTL,
		DefaultAdvertisedTTL: cfg.Lease.AdvertisedTTL,
	})
	sweeper := lease.NewSweeper(b.tables, b.holds, pub, log, lease.SweeperOptions{Retention: cfg.Lease.Retention})

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Identity(cfg.JWTSecret))

	router.RegisterRoutes(e, router.Routes{
		Health:          handler.NewHealthHandler(sweeper, log),
		Lease:           handler.NewLeaseHandler(mgr, log),
		Floor:           handler.NewFloorHandler(floor.NewIndex(b.tables, log), log),
		ReadMiddleware:  []echo.MiddlewareFunc{middleware.NewRedisCache(cfg.Cache, b.rdb)},
		WriteMiddleware: []echo.MiddlewareFunc{middleware.NewTokenBucket(cfg.RateLimit, b.rdb)},
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr()), zap.String("env", cfg.Env))
		if err := e.Start(cfg.HTTP.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweeper.Run(ctx, cfg.Lease.SweepInterval)
	})
	if amqpPub != nil {
		g.Go(func() error { return amqpPub.Run(ctx) })
	}
	if cfg.Events.Enabled && cfg.Events.Consume {
		consumer := queue.NewAuditConsumer(cfg.Events.URL, cfg.Events.Queue, cfg.Events.AuditLog, log)
		g.Go(func() error { return consumer.Run(ctx) })
	}

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
