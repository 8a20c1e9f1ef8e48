package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	httpapi "brightpath/internal/http"
	jwttoken "brightpath/internal/jwt_token"
	"brightpath/internal/notification"
	"brightpath/internal/platform/config"
	"brightpath/internal/platform/httpserver"
	"brightpath/internal/platform/kafka"
	"brightpath/internal/platform/logger"
	"brightpath/internal/platform/metrics"
	"brightpath/internal/platform/postgres"
	"brightpath/internal/platform/redis"
	"brightpath/internal/registration/gateway"
	"brightpath/internal/registration/handler"
	regmetrics "brightpath/internal/registration/metrics"
	"brightpath/internal/registration/reaper"
	"brightpath/internal/registration/service"
	accountstore "brightpath/internal/registration/store/account"
	draftstore "brightpath/internal/registration/store/draft"
	ledgerstore "brightpath/internal/registration/store/ledger"
	profilestore "brightpath/internal/registration/store/profile"
	subscriptionstore "brightpath/internal/registration/store/subscription"
	"brightpath/migrations"
	id "brightpath/pkg/domain"
	audit "brightpath/pkg/platform/audit"
	auditpublisher "brightpath/pkg/platform/audit/publisher"
	auditmemory "brightpath/pkg/platform/audit/store/memory"
	auditpg "brightpath/pkg/platform/audit/store/postgres"
	auditworker "brightpath/pkg/platform/audit/worker"
	"brightpath/pkg/platform/circuit"
	"brightpath/pkg/secrets"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("brightpath stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("brightpath stopped")
}

// infra holds the optional backing services. Nil fields mean the in-memory
// fallback is in use.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error

	if cfg.Database.URL != "" {
		if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if err := migrations.Apply(ctx, in.db); err != nil {
			in.close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("postgres connected, migrations applied")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		in.close()
		return nil, err
	}
	if in.redis != nil {
		log.Info("redis connected, reaper uses distributed lock")
	}

	if in.kafka, err = kafka.NewClient(ctx, cfg.Kafka); err != nil {
		in.close()
		return nil, err
	}
	if in.kafka != nil {
		if err := kafka.EnsureTopics(ctx, in.kafka, cfg.Kafka.TopicPartitions, cfg.Kafka.ReplicationFactor,
			cfg.Kafka.AuditTopic, cfg.Kafka.NotificationTopic); err != nil {
			in.close()
			return nil, err
		}
		log.Info("kafka connected", "brokers", cfg.Kafka.Brokers)
	}
	return in, nil
}

// registrationStores picks Postgres or in-memory persistence. The returned
// tx runner is nil for the in-memory stores, which makes the service fall
// back to its process-wide lock.
func registrationStores(in *infra) (service.Stores, *reaperStores, service.StoreTx, audit.Store) {
	if in.db != nil {
		subs := subscriptionstore.NewPostgres(in.db)
		accounts := accountstore.NewPostgres(in.db)
		return service.Stores{
				Drafts:        draftstore.NewPostgres(in.db),
				Subscriptions: subs,
				Accounts:      accounts,
				Ledger:        ledgerstore.NewPostgres(in.db),
				Profiles:      profilestore.NewPostgres(in.db),
			}, &reaperStores{subs: subs, accounts: accounts},
			postgres.NewTxRunner(in.db),
			auditpg.New(in.db)
	}
	subs := subscriptionstore.NewInMemory()
	accounts := accountstore.NewInMemory()
	return service.Stores{
			Drafts:        draftstore.NewInMemory(),
			Subscriptions: subs,
			Accounts:      accounts,
			Ledger:        ledgerstore.NewInMemory(),
			Profiles:      profilestore.NewInMemory(),
		}, &reaperStores{subs: subs, accounts: accounts},
		nil,
		auditmemory.NewInMemoryStore()
}

// reaperStores are the views of the subscription and account stores the
// expiry sweep needs.
type reaperStores struct {
	subs     reaper.SubscriptionStore
	accounts reaper.AccountReader
}

func newGateway(cfg config.GatewayConfig, m *regmetrics.Metrics, log *slog.Logger) gateway.Gateway {
	if cfg.UseFake {
		log.Warn("using in-process fake payment gateway")
		return gateway.NewFake("http://localhost:8080/fake-checkout", cfg.WebhookHash)
	}
	breaker := circuit.New("flutterwave",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	return gateway.NewFlutterwave(cfg.BaseURL, cfg.SecretKey, cfg.WebhookHash,
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithBreaker(breaker),
		gateway.WithLogger(log),
		gateway.WithCallObserver(m.ObserveGatewayCall),
	)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	currency, err := id.ParseCurrency(cfg.Registration.Currency)
	if err != nil {
		return fmt.Errorf("SUBSCRIPTION_CURRENCY: %w", err)
	}

	in, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	regMetrics := regmetrics.New()
	stores, sweepStores, txRunner, auditStore := registrationStores(in)
	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	defer publisher.Close()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(regMetrics),
		service.WithHasher(secrets.NewHasher(cfg.Server.BcryptCost)),
	}
	if txRunner != nil {
		opts = append(opts, service.WithTx(txRunner))
	}
	svc, err := service.New(stores, newGateway(cfg.Gateway, regMetrics, log), service.Config{
		Price:        cfg.Registration.Price,
		Currency:     currency,
		ValidityDays: cfg.Registration.ValidityDays,
		RedirectURL:  cfg.Gateway.RedirectURL,
	}, opts...)
	if err != nil {
		return fmt.Errorf("build registration service: %w", err)
	}

	var notifier reaper.Notifier = notification.NewLogNotifier(log)
	if in.kafka != nil {
		notifier = notification.NewKafkaNotifier(in.kafka, cfg.Kafka.NotificationTopic)
	}
	var locker reaper.Locker = reaper.NewMemoryLock()
	if in.redis != nil {
		locker = reaper.NewRedisLock(in.redis.Client)
	}
	sweeper := reaper.New(sweepStores.subs, notifier,
		reaper.WithInterval(cfg.Registration.ReaperInterval),
		reaper.WithBatchSize(cfg.Registration.ReaperBatchSize),
		reaper.WithNotifyConcurrency(cfg.Registration.NotifyConcurrency),
		reaper.WithLocker(locker),
		reaper.WithLockTTL(cfg.Registration.ReaperLockTTL),
		reaper.WithAccounts(sweepStores.accounts),
		reaper.WithAuditPublisher(publisher),
		reaper.WithMetrics(regMetrics),
		reaper.WithLogger(log),
	)

	validator := jwttoken.NewMiddlewareAdapter(
		jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
	)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		HTTPMetrics:    metrics.NewHTTP(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Checks:         healthChecks(in),
		MetricsHandler: promhttp.Handler(),
		Routes: []httpapi.Registrar{
			handler.New(svc, log, validator, cfg.Server.AdminToken),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	log.Info("starting brightpath", "environment", cfg.Server.Environment)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, shutdownTimeout, log)
	})
	g.Go(func() error {
		return ignoreCanceled(sweeper.Run(gctx))
	})
	if outbox, ok := auditStore.(*auditpg.Store); ok && in.kafka != nil {
		relay := auditworker.NewWorker(outbox, in.kafka, cfg.Kafka.AuditTopic,
			auditworker.WithInterval(cfg.Kafka.RelayInterval),
			auditworker.WithBatchSize(cfg.Kafka.RelayBatchSize),
			auditworker.WithLogger(log),
		)
		g.Go(func() error {
			return ignoreCanceled(relay.Run(gctx))
		})
	}
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func healthChecks(in *infra) map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Ping
	}
	return checks
}
