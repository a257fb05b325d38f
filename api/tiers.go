package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/tier"
)

// Tiers manages the pricing table.
type Tiers interface {
	List(ctx context.Context) ([]tier.Tier, error)
	Get(ctx context.Context, id uuid.UUID) (tier.Tier, error)
	Create(ctx context.Context, in tier.Input) (tier.Tier, error)
	Update(ctx context.Context, id uuid.UUID, patch tier.Patch) (tier.Tier, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TiersAPI serves the pricing table; writes need an admin.
type TiersAPI struct {
	tiers   Tiers
	log     *slog.Logger
	onError handler.ErrorHandler
}

// NewTiersAPI creates the tier handlers.
func NewTiersAPI(tiers Tiers, log *slog.Logger) *TiersAPI {
	return &TiersAPI{tiers: tiers, log: log, onError: handler.NewErrorHandler(log, Classify)}
}

type tierRequest struct {
	ID uuid.UUID `path:"id" json:"-"`
}

type createTierRequest struct {
	tier.Input
}

type updateTierRequest struct {
	ID uuid.UUID `path:"id" json:"-"`
	tier.Patch
}

// Handle returns the routes mounted under /tiers.
func (a *TiersAPI) Handle() http.Handler {
	r := chi.NewRouter()
	path := binder.Path(chi.URLParam)

	r.Get("/", handler.Wrap(a.list,
		handler.WithErrorHandler[struct{}](a.onError),
	))
	r.Get("/{id}", handler.Wrap(a.get,
		handler.WithBinders[tierRequest](path),
		handler.WithErrorHandler[tierRequest](a.onError),
	))

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAdmin(authErrors(a.log)))
		r.Post("/", handler.Wrap(a.create,
			handler.WithBinders[createTierRequest](binder.JSON()),
			handler.WithErrorHandler[createTierRequest](a.onError),
		))
		update := handler.Wrap(a.update,
			handler.WithBinders[updateTierRequest](path, binder.JSON()),
			handler.WithErrorHandler[updateTierRequest](a.onError),
		)
		r.Put("/{id}", update)
		r.Patch("/{id}", update)
		r.Delete("/{id}", handler.Wrap(a.delete,
			handler.WithBinders[tierRequest](path),
			handler.WithErrorHandler[tierRequest](a.onError),
		))
	})
	return r
}

func (a *TiersAPI) list(ctx handler.Context, _ struct{}) handler.Response {
	tiers, err := a.tiers.List(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(tiers, handler.WithJSONMeta(map[string]any{"total": len(tiers)}))
}

func (a *TiersAPI) get(ctx handler.Context, req tierRequest) handler.Response {
	t, err := a.tiers.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(t)
}

func (a *TiersAPI) create(ctx handler.Context, req createTierRequest) handler.Response {
	t, err := a.tiers.Create(ctx, req.Input)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(t, handler.WithJSONStatus(http.StatusCreated))
}

func (a *TiersAPI) update(ctx handler.Context, req updateTierRequest) handler.Response {
	t, err := a.tiers.Update(ctx, req.ID, req.Patch)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(t)
}

func (a *TiersAPI) delete(ctx handler.Context, req tierRequest) handler.Response {
	if err := a.tiers.Delete(ctx, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}
