package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
)

// Catalog manages products.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Product, error)
	Get(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	Create(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
	Update(ctx context.Context, id uuid.UUID, patch catalog.ProductPatch) (catalog.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Launcher issues and redeems launch tokens.
type Launcher interface {
	Issue(ctx context.Context, userID string, productID uuid.UUID) (access.Launch, error)
	Verify(ctx context.Context, raw string, productID uuid.UUID) (access.Grant, error)
}

// ProductsAPI serves the catalog. Reads are public, writes need an admin and
// launching needs a signed-in user.
type ProductsAPI struct {
	catalog  Catalog
	launcher Launcher
	log      *slog.Logger
	onError  handler.ErrorHandler
}

// NewProductsAPI creates the product handlers.
func NewProductsAPI(c Catalog, launcher Launcher, log *slog.Logger) *ProductsAPI {
	return &ProductsAPI{catalog: c, launcher: launcher, log: log, onError: handler.NewErrorHandler(log, Classify)}
}

type productRequest struct {
	ID uuid.UUID `path:"id" json:"-"`
}

type createProductRequest struct {
	catalog.ProductInput
}

type updateProductRequest struct {
	ID uuid.UUID `path:"id" json:"-"`
	catalog.ProductPatch
}

// Handle returns the routes mounted under /products.
func (a *ProductsAPI) Handle() http.Handler {
	r := chi.NewRouter()
	path := binder.Path(chi.URLParam)
	auth := authErrors(a.log)

	r.Get("/", handler.Wrap(a.list,
		handler.WithErrorHandler[struct{}](a.onError),
	))
	r.Get("/{id}", handler.Wrap(a.get,
		handler.WithBinders[productRequest](path),
		handler.WithErrorHandler[productRequest](a.onError),
	))

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAdmin(auth))
		r.Post("/", handler.Wrap(a.create,
			handler.WithBinders[createProductRequest](binder.JSON()),
			handler.WithErrorHandler[createProductRequest](a.onError),
		))
		update := handler.Wrap(a.update,
			handler.WithBinders[updateProductRequest](path, binder.JSON()),
			handler.WithErrorHandler[updateProductRequest](a.onError),
		)
		r.Put("/{id}", update)
		r.Patch("/{id}", update)
		r.Delete("/{id}", handler.Wrap(a.delete,
			handler.WithBinders[productRequest](path),
			handler.WithErrorHandler[productRequest](a.onError),
		))
	})

	if a.launcher != nil {
		r.With(identity.RequireUser(auth)).Post("/{id}/launch", handler.Wrap(a.launch,
			handler.WithBinders[productRequest](path),
			handler.WithErrorHandler[productRequest](a.onError),
		))
	}
	return r
}

func (a *ProductsAPI) list(ctx handler.Context, _ struct{}) handler.Response {
	products, err := a.catalog.List(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(products, handler.WithJSONMeta(map[string]any{"total": len(products)}))
}

func (a *ProductsAPI) get(ctx handler.Context, req productRequest) handler.Response {
	p, err := a.catalog.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p)
}

func (a *ProductsAPI) create(ctx handler.Context, req createProductRequest) handler.Response {
	p, err := a.catalog.Create(ctx, req.ProductInput)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p, handler.WithJSONStatus(http.StatusCreated))
}

func (a *ProductsAPI) update(ctx handler.Context, req updateProductRequest) handler.Response {
	p, err := a.catalog.Update(ctx, req.ID, req.ProductPatch)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p)
}

func (a *ProductsAPI) delete(ctx handler.Context, req productRequest) handler.Response {
	if err := a.catalog.Delete(ctx, req.ID); err != nil {
		return handler.Fail(err)
	}
	return handler.Empty()
}

func (a *ProductsAPI) launch(ctx handler.Context, req productRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	launch, err := a.launcher.Issue(ctx, p.UserID, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(launch, handler.WithJSONStatus(http.StatusCreated))
}
