// Command server runs the identity registry: the ledger API, the render
// endpoints, and (in postgres mode with Kafka configured) the outbox
// worker and event materializer.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	identityhandler "sigil/internal/identity/handler"
	identitymetrics "sigil/internal/identity/metrics"
	identityservice "sigil/internal/identity/service"
	identitystore "sigil/internal/identity/store"
	modulehandler "sigil/internal/module/handler"
	moduleservice "sigil/internal/module/service"
	modulestore "sigil/internal/module/store"
	"sigil/internal/platform/config"
	"sigil/internal/platform/httpserver"
	kafkaconsumer "sigil/internal/platform/kafka/consumer"
	kafkaproducer "sigil/internal/platform/kafka/producer"
	"sigil/internal/platform/logger"
	platformredis "sigil/internal/platform/redis"
	rendercache "sigil/internal/render/cache"
	rendermetrics "sigil/internal/render/metrics"
	renderservice "sigil/internal/render/service"
	"sigil/internal/token"
	tokenhandler "sigil/internal/token/handler"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/audit"
	auditconsumer "sigil/pkg/platform/audit/consumer"
	auditpublisher "sigil/pkg/platform/audit/publisher"
	auditmem "sigil/pkg/platform/audit/store/memory"
	auditpg "sigil/pkg/platform/audit/store/postgres"
	auditworker "sigil/pkg/platform/audit/worker"
	"sigil/pkg/platform/middleware/admin"
	authmw "sigil/pkg/platform/middleware/auth"
	"sigil/pkg/platform/middleware/requestid"
	"sigil/pkg/platform/middleware/requesttime"
	"sigil/pkg/platform/opguard"
	"sigil/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		stores      identityservice.Stores
		catalog     moduleservice.CatalogStore
		runner      tx.Runner
		auditStore  audit.Store
		outboxStore *auditpg.Store
	)

	switch cfg.Mode {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("failed to reach postgres", "error", err)
			os.Exit(1)
		}
		for _, ensure := range []func(context.Context, *sql.DB) error{
			identitystore.EnsureSchema,
			modulestore.EnsureSchema,
			auditpg.EnsureSchema,
		} {
			if err := ensure(ctx, db); err != nil {
				log.Error("failed to ensure schema", "error", err)
				os.Exit(1)
			}
		}
		stores = identityservice.Stores{
			Identities: identitystore.NewPostgresIdentityStore(db),
			Accounts:   identitystore.NewPostgresAccountStore(db),
			Messages:   identitystore.NewPostgresMessageStore(db),
			Storage:    identitystore.NewPostgresStorageStore(db),
			Scores:     identitystore.NewPostgresScoreStore(db),
			Settings:   identitystore.NewPostgresSettingsStore(db),
			Height:     identitystore.NewPostgresHeightStore(db),
		}
		catalog = modulestore.NewPostgresCatalogStore(db)
		runner = tx.NewSQLRunner(db)
		outboxStore = auditpg.New(db)
		auditStore = outboxStore
	default:
		stores = identityservice.Stores{
			Identities: identitystore.NewInMemoryIdentityStore(),
			Accounts:   identitystore.NewInMemoryAccountStore(),
			Messages:   identitystore.NewInMemoryMessageStore(),
			Storage:    identitystore.NewInMemoryStorageStore(),
			Scores:     identitystore.NewInMemoryScoreStore(),
			Settings:   identitystore.NewInMemorySettingsStore(),
			Height:     identitystore.NewInMemoryHeightStore(),
		}
		catalog = modulestore.NewInMemoryCatalogStore()
		runner = tx.NewMemoryRunner()
		auditStore = auditmem.NewInMemoryStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := auditpublisher.NewPublisher(auditStore, auditpublisher.WithLogger(log))
	defer publisher.Close()

	imageCache := rendercache.New(redisClient, config.RenderCacheTTL, log)
	forwarder := treasury.NewMemoryTreasury(id.AccountID(cfg.TreasuryAccount))
	guard := opguard.New()

	identitySvc := identityservice.New(stores, forwarder, runner,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithCacheInvalidator(imageCache),
		identityservice.WithPayableGuard(guard),
	)
	moduleSvc := moduleservice.New(catalog, stores.Identities, stores.Height, forwarder, runner,
		moduleservice.WithLogger(log),
		moduleservice.WithAuditPublisher(publisher),
		moduleservice.WithCacheInvalidator(imageCache),
		moduleservice.WithPayableGuard(guard),
	)
	renderSvc := renderservice.New(stores.Identities, stores.Height,
		renderservice.WithLogger(log),
		renderservice.WithMetrics(rendermetrics.New()),
		renderservice.WithCache(imageCache),
		renderservice.WithRoyaltyBps(cfg.RoyaltyBps),
	)
	tokens := token.NewService(cfg.JWTSigningKey, "sigil")

	identityH := identityhandler.New(identitySvc, renderSvc, publisher, log)
	moduleH := modulehandler.New(moduleSvc, log)
	tokenH := tokenhandler.New(tokens, log)

	router := chi.NewRouter()
	router.Use(requestid.Middleware, requesttime.Middleware)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				log.WarnContext(r.Context(), "health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Group(func(pub chi.Router) {
		identityH.RegisterPublic(pub)
		moduleH.RegisterPublic(pub)
	})
	router.Group(func(authed chi.Router) {
		authed.Use(authmw.RequireAccount(tokens, log))
		identityH.Register(authed)
		moduleH.Register(authed)
	})
	router.Group(func(adm chi.Router) {
		adm.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		identityH.RegisterAdmin(adm)
		moduleH.RegisterAdmin(adm)
		tokenH.RegisterAdmin(adm)
	})

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting sigil registry", "addr", cfg.Addr, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if outboxStore != nil && len(cfg.KafkaBrokers) > 0 {
		topics := []string{
			audit.CategoryRegistry.Topic(),
			audit.CategoryEconomic.Topic(),
			audit.CategoryAdmin.Topic(),
		}
		producer, err := kafkaproducer.New(cfg.KafkaBrokers, topics...)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		worker := auditworker.New(outboxStore, producer, log)
		group.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		materializer := auditconsumer.NewMaterializer(outboxStore, log)
		eventRouter := auditconsumer.NewRouter(log)
		for _, topic := range topics {
			eventRouter.Register(topic, materializer)
		}
		consumer, err := kafkaconsumer.New(cfg.KafkaBrokers, "sigil-materializer", topics, eventRouter, log)
		if err != nil {
			log.Error("failed to start kafka consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		group.Go(func() error {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
