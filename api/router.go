package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/pkg/httpserver"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/requestid"
)

// Mountable is a handler group mounted under its own prefix.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions lists the handler groups to mount. Nil groups are skipped.
type RouterOptions struct {
	Products      Mountable
	Tiers         Mountable
	Subscriptions Mountable
	Access        Mountable
	Admin         Mountable

	Verifier identity.Verifier
	Metrics  interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}
	ReadinessChecks []func(context.Context) error
	Logger          *slog.Logger
}

// Router builds the service's root handler.
//
//	r := api.Router(api.RouterOptions{
//		Products:      api.NewProductsAPI(catalogSvc, launcher, log),
//		Tiers:         api.NewTiersAPI(registry, log),
//		Subscriptions: api.NewSubscriptionsAPI(orchestrator, subs, resolver, log),
//		Verifier:      verifier,
//	})
func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/health/live", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, opts.ReadinessChecks...))

	r.Route("/api/v1", func(v1 chi.Router) {
		if opts.Verifier != nil {
			v1.Use(identity.Authenticate(opts.Verifier, authErrors(log)))
		}
		mount := func(path string, m Mountable) {
			if m != nil {
				v1.Mount(path, m.Handle())
			}
		}
		mount("/products", opts.Products)
		mount("/tiers", opts.Tiers)
		mount("/subscriptions", opts.Subscriptions)
		mount("/access", opts.Access)
		mount("/admin", opts.Admin)
	})

	return r
}
