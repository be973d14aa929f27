package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	jwttoken "golden/internal/jwt_token"
	"golden/internal/platform/config"
	"golden/internal/platform/httpserver"
	"golden/internal/platform/logger"
	"golden/internal/platform/metrics"
	"golden/internal/platform/middleware"
	"golden/internal/platform/postgres"
	"golden/internal/platform/redis"
	"golden/internal/request/handler"
	requestmetrics "golden/internal/request/metrics"
	"golden/internal/request/ports"
	"golden/internal/request/service"
	"golden/internal/request/store"
	"golden/internal/request/store/keylock"
	audit "golden/pkg/platform/audit"
	"golden/pkg/platform/audit/publishers/compliance"
	"golden/pkg/platform/audit/publishers/kafka"
	auditmemory "golden/pkg/platform/audit/store/memory"
	auditpostgres "golden/pkg/platform/audit/store/postgres"
	"golden/pkg/platform/audit/worker"
	"golden/pkg/platform/circuit"
	adminmw "golden/pkg/platform/middleware/admin"
	authmw "golden/pkg/platform/middleware/auth"
	requestmw "golden/pkg/platform/middleware/request"
	"golden/pkg/platform/middleware/requesttime"
)

const (
	outboxBatchSize      = 100
	auditTopicPartitions = 6
)

// main wires configuration, storage and transport; request semantics live in
// internal/request.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("golden stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	g, ctx := errgroup.WithContext(ctx)

	repo, auditStore, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var locker ports.KeyLocker = keylock.NewShardedLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = keylock.NewRedisLocker(redisClient.Client,
			keylock.WithTTL(cfg.KeyLockTTL),
			keylock.WithLogger(log),
		)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		outbox, ok := auditStore.(*auditpostgres.Store)
		if !ok {
			return fmt.Errorf("audit outbox requires the postgres audit store")
		}
		client, err := kafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer client.Close()
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, auditTopicPartitions); err != nil {
			return err
		}
		publisher := kafka.New(client, cfg.Kafka.Topic,
			kafka.WithLogger(log),
			kafka.WithBreaker(circuit.New("audit-kafka")),
		)
		relay := worker.NewRelay(outbox, publisher, cfg.OutboxInterval, outboxBatchSize, log)
		g.Go(func() error { return relay.Run(ctx) })
		log.Info("audit relay enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	emitter := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	svc := service.New(repo,
		service.WithLogger(log),
		service.WithMetrics(requestmetrics.New(reg)),
		service.WithTracer(otel.Tracer("golden/request")),
		service.WithAuditEmitter(emitter),
		service.WithAuditTrail(auditStore),
		service.WithKeyLocker(locker),
		service.WithWorklistLimit(cfg.WorklistLimit),
	)
	h := handler.New(svc, log)

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
	)

	r := chi.NewRouter()
	r.Use(requestmw.RequestID)
	r.Use(requesttime.Middleware)
	httpMetrics := metrics.New(reg)
	r.Use(middleware.Recovery(log, httpMetrics))
	r.Use(middleware.Logger(log))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", healthz(db, redisClient))
	r.Group(func(r chi.Router) {
		r.Use(middleware.Latency(httpMetrics))
		r.Use(authmw.RequireAuth(jwtValidator, log))
		h.Register(r)
	})
	if cfg.IngestToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Latency(httpMetrics))
			r.Use(adminmw.RequireAdminToken(cfg.IngestToken, log))
			h.RegisterIngest(r)
		})
	} else {
		log.Warn("INGEST_TOKEN not set; POST /ingest disabled")
	}

	srv := httpserver.New(cfg.Addr, r)
	g.Go(func() error { return httpserver.Run(ctx, srv, cfg.ShutdownGrace, log) })

	log.Info("starting golden", "addr", cfg.Addr, "postgres", db != nil, "redis", cfg.Redis.URL != "")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("golden stopped")
	return nil
}

// auditBackend is what the service reads and the compliance publisher writes.
type auditBackend interface {
	audit.Store
	ports.AuditTrail
}

func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (ports.Repository, auditBackend, *sql.DB, error) {
	if cfg.Database.URL == "" {
		log.Info("DATABASE_URL not set; records and audit kept in memory")
		return store.NewInMemoryStore(store.WithTxTimeout(cfg.TxTimeout)), auditmemory.NewInMemoryStore(), nil, nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := postgres.Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return store.NewPostgres(db).WithTimeout(cfg.TxTimeout), auditpostgres.New(db), db, nil
}

// healthz reports 503 when a configured backend stops answering.
func healthz(db *sql.DB, rc *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if rc != nil {
			if err := rc.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
