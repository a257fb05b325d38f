// Command server runs the marketplace API: catalog and pricing, tier
// changes through the payment processor, and product launch tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/api"
	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/entitlement"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/jobs"
	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/httpserver"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/metrics"
	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/pkg/redis"
	"github.com/spongetheory/marketplace/pkg/requestid"
	"github.com/spongetheory/marketplace/store/memory"
	pgstore "github.com/spongetheory/marketplace/store/postgres"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

// storage is what both store implementations provide.
type storage interface {
	catalog.Store
	tier.Store
	subscription.Store
	subscription.TierLookup
	subscription.Counters
	usage.Store
	billing.PaymentStore
	audit.Storage
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var (
	_ storage = (*memory.Store)(nil)
	_ storage = (*pgstore.Store)(nil)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.app.Env, cfg.app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), identity.LoggerExtractor()),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ready []func(context.Context) error

	store, closeStore, check, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if check != nil {
		ready = append(ready, check)
	}

	nonces, closeNonces, check, err := openNonces(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNonces()
	if check != nil {
		ready = append(ready, check)
	}

	m := metrics.New()
	auditor := audit.NewLogger(store,
		audit.WithActorExtractor(identity.UserID),
		audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
			id := requestid.FromContext(ctx)
			return id, id != ""
		}),
	)

	products := catalog.NewService(store, catalog.WithAuditor(auditor), catalog.WithLogger(log))
	registry := tier.NewRegistry(store, products, store, tier.WithAuditor(auditor), tier.WithLogger(log))
	subs := subscription.NewService(store, store, store, store,
		subscription.WithAuditor(auditor), subscription.WithLogger(log))
	meter := usage.NewService(store, usage.WithRecorder(m), usage.WithLogger(log))
	resolver := entitlement.NewResolver(subs, registry, meter, log)

	var provider billing.Provider
	switch p, err := billing.NewProvider(cfg.billing, cfg.stripe, cfg.paddle); {
	case err == nil:
		provider = p
	case cfg.app.production():
		return fmt.Errorf("billing provider: %w", err)
	default:
		log.Warn("billing provider disabled, paid tiers cannot be purchased", logger.Error(err))
	}
	orchestrator := billing.NewOrchestrator(cfg.billing, registry, subs, store, store, provider,
		billing.WithAuditor(auditor), billing.WithRecorder(m), billing.WithLogger(log))

	launcher, err := access.NewService(cfg.access, nonces, resolver, products, meter, access.WithLogger(log))
	if err != nil {
		return err
	}

	var verifier identity.Verifier
	switch v, err := identity.NewOIDCVerifier(ctx, cfg.identity); {
	case err == nil:
		verifier = v
	case cfg.app.production():
		return err
	default:
		log.Warn("identity provider disabled, only public routes are reachable", logger.Error(err))
	}

	scheduler, err := jobs.New(cfg.jobs, meter, log)
	if err != nil {
		return err
	}

	router := api.Router(api.RouterOptions{
		Products:        api.NewProductsAPI(products, launcher, log),
		Tiers:           api.NewTiersAPI(registry, log),
		Subscriptions:   api.NewSubscriptionsAPI(orchestrator, subs, resolver, log),
		Access:          api.NewAccessAPI(launcher, log),
		Admin:           api.NewAdminAPI(subs, resolver, log),
		Verifier:        verifier,
		Metrics:         m,
		ReadinessChecks: ready,
		Logger:          log,
	})
	server := httpserver.NewFromConfig(cfg.http, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, router) })
	g.Go(func() error { return scheduler.Run(ctx) })

	log.Info("marketplace started",
		slog.String("store", cfg.app.StoreDriver),
		slog.String("nonces", cfg.app.NonceDriver),
		slog.String("addr", cfg.http.Addr))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg settings, log *slog.Logger) (storage, func(), func(context.Context) error, error) {
	switch cfg.app.StoreDriver {
	case driverMemory:
		log.Warn("using the in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil, nil
	case driverPostgres:
		pool, err := pg.Connect(ctx, cfg.pg)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.pg.MigrateOnStart {
			if err := pg.Migrate(ctx, pool, cfg.pg, pgstore.Migrations(), log); err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
		}
		return pgstore.New(pool), pool.Close, pg.Healthcheck(pool), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.app.StoreDriver)
	}
}

func openNonces(ctx context.Context, cfg settings) (access.NonceStore, func(), func(context.Context) error, error) {
	switch cfg.app.NonceDriver {
	case driverMemory:
		return access.NewMemoryNonces(cfg.app.NonceCache), func() {}, nil, nil
	case driverRedis:
		client, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return access.NewRedisNonces(client), func() { _ = client.Close() }, redis.Healthcheck(client), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown NONCE_STORE %q", cfg.app.NonceDriver)
	}
}
