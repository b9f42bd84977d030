// main wires the vault: config, stores, engine, service, transport and the
// background audit pipeline. Business rules live in internal packages; this
// file only connects them and manages the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"covault/internal/engine"
	enginehandler "covault/internal/engine/handler"
	enginemetrics "covault/internal/engine/metrics"
	"covault/internal/engine/service"
	"covault/internal/engine/store/journal"
	"covault/internal/executor"
	"covault/internal/guard"
	guardmemory "covault/internal/guard/store/memory"
	guardredis "covault/internal/guard/store/redis"
	"covault/internal/platform/config"
	"covault/internal/platform/httpserver"
	"covault/internal/platform/logger"
	"covault/internal/platform/metrics"
	"covault/internal/platform/postgres"
	platformredis "covault/internal/platform/redis"
	"covault/internal/platform/token"
	id "covault/pkg/domain"
	audit "covault/pkg/platform/audit"
	"covault/pkg/platform/audit/publisher"
	"covault/pkg/platform/audit/publishers/kafka"
	auditmemory "covault/pkg/platform/audit/store/memory"
	auditpostgres "covault/pkg/platform/audit/store/postgres"
	"covault/pkg/platform/audit/worker"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("covault exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	members := make([]id.Principal, 0, len(cfg.Vault.Members))
	for _, raw := range cfg.Vault.Members {
		member, err := id.ParsePrincipal(raw)
		if err != nil {
			return err
		}
		members = append(members, member)
	}

	// Delivery capabilities. Treasury settles internal transfers; webhooks
	// reach external receivers.
	dispatcher := executor.NewDispatcher().
		Register("treasury", executor.NewTreasury(log)).
		Register("webhook", executor.NewWebhook([]byte(cfg.Server.WebhookSecret), log))

	eng, err := engine.New(engine.Config{
		Members:  members,
		Quorum:   cfg.Vault.Quorum,
		Executor: dispatcher,
	})
	if err != nil {
		return err
	}

	// Durable journal. Without Postgres the vault still runs, but state
	// lives only in memory.
	var vaultJournal journal.Journal = journal.NewInMemory()
	var auditStore audit.Store = auditmemory.New()
	var outboxDB *sql.DB
	if cfg.Postgres.URL != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgJournal := journal.NewPostgres(pool)
		if err := pgJournal.Migrate(ctx); err != nil {
			return err
		}
		vaultJournal = pgJournal

		outboxDB, err = postgres.NewDB(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer outboxDB.Close()

		pgAudit := auditpostgres.New(outboxDB)
		if err := pgAudit.Migrate(ctx); err != nil {
			return err
		}
		auditStore = pgAudit
	} else {
		log.Warn("postgres not configured; journal and audit are in-memory only")
	}

	replayed, err := journal.Restore(ctx, vaultJournal, eng)
	if err != nil {
		return err
	}
	if replayed > 0 {
		log.Info("journal replayed", "records", replayed)
	}

	auditPublisher := publisher.New(1024)
	vault := service.New(eng,
		service.WithJournal(vaultJournal),
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(enginemetrics.New()),
	)

	// Abuse guard. Redis shares lockouts across instances; absent Redis the
	// in-memory store throttles this instance alone.
	var guardStore guard.Store = guardmemory.New()
	redisClient, err := platformredis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		guardStore = guardredis.New(redisClient)
	}
	guardSvc, err := guard.New(guardStore,
		guard.WithLogger(log),
		guard.WithAuditPublisher(auditPublisher),
		guard.WithConfig(guard.Config{
			MaxFailures: cfg.Guard.MaxFailures,
			Window:      cfg.Guard.Window,
			Lockout:     cfg.Guard.Lockout,
		}),
	)
	if err != nil {
		return err
	}

	httpMetrics := metrics.New()
	tokens := token.NewService(cfg.Server.JWTSigningKey)
	handler := enginehandler.New(vault, guardSvc, log, httpMetrics, tokens)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.Register(router)

	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting covault", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		auditWorker := worker.NewWorker(auditStore, auditPublisher.Events(), log,
			worker.WithDropSource(auditPublisher))
		err := auditWorker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if len(cfg.Kafka.Brokers) > 0 && outboxDB != nil {
		shipper, err := kafka.New(ctx, outboxDB, kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			PollInterval: cfg.Kafka.PollInterval,
		}, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := shipper.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
