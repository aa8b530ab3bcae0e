package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/lifecycle"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
)

// backend is the set of store ports for the selected driver.
type backend struct {
	uow       orders.UnitOfWork
	inventory orders.Inventory
	orders    orders.Store
	accounts  orders.Accounts
	notices   httpx.NotificationReader
	sink      orders.Notifier // used when no broker is configured
	close     func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer be.close()

	// Notifications: Kafka when brokers are configured, else straight to the store.
	notifier := be.sink
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 && cfg.StoreDriver == config.DriverPostgres {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic, 1024, logger.Named("producer"))
		prodCtx, prodCancel := context.WithCancel(context.Background())
		defer prodCancel()
		prod.Start(prodCtx)
		notifier = &notify.KafkaSink{Producer: prod, Service: cfg.ServiceName}
	}

	placer, err := checkout.NewService(checkout.Deps{
		UnitOfWork:   be.uow,
		Inventory:    be.inventory,
		Orders:       be.orders,
		Accounts:     be.accounts,
		Notifier:     notifier,
		NumberPrefix: cfg.OrderNumberPrefix,
		Logger:       logger.Named("checkout"),
		Metrics:      metrics,
	})
	if err != nil {
		logger.Fatal("checkout service", zap.Error(err))
	}
	ctrl, err := lifecycle.NewController(lifecycle.Deps{
		UnitOfWork: be.uow,
		Inventory:  be.inventory,
		Orders:     be.orders,
		Notifier:   notifier,
		Logger:     logger.Named("lifecycle"),
		Metrics:    metrics,
	})
	if err != nil {
		logger.Fatal("lifecycle controller", zap.Error(err))
	}

	oh := &httpx.OrdersHandler{
		Checkout:      placer,
		Lifecycle:     ctrl,
		Inventory:     be.inventory,
		Accounts:      be.accounts,
		Notifications: be.notices,
		Log:           logger.Named("http"),
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; idempotency and status cache will fail open", zap.Error(err))
		}
		oh.Idem = redisx.NewIdempotency(rdb)
		oh.Status = redisx.NewStatusCache(rdb)
	}

	router := httpx.NewRouter(logger.Named("access"), metrics)
	oh.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("driver", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exit", zap.Error(err))
	}

	if prod != nil {
		prod.Close()      // stop accepting, flush buffered notices
		prod.WaitClosed() // writer closed
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		st := memstore.New()
		return backend{
			uow: st, inventory: st, orders: st, accounts: st, notices: st, sink: st,
			close: func() {},
		}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return backend{}, err
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return backend{}, err
		}
	}
	tx := postgres.NewTxManager(db)
	notices := &notify.Repo{DB: db}
	return backend{
		uow:       tx,
		inventory: inventory.NewLedger(db, tx),
		orders:    &orders.Repo{DB: db},
		accounts:  &orders.MetricsRepo{DB: db},
		notices:   notices,
		sink:      notices,
		close:     db.Close,
	}, nil
}
