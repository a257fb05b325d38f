package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/subscription"
)

// AdminAPI is the support view of a single user.
type AdminAPI struct {
	subs         Subscriptions
	entitlements Entitlements
	log          *slog.Logger
	onError      handler.ErrorHandler
}

// NewAdminAPI creates the admin inspection handlers.
func NewAdminAPI(subs Subscriptions, ents Entitlements, log *slog.Logger) *AdminAPI {
	return &AdminAPI{subs: subs, entitlements: ents, log: log, onError: handler.NewErrorHandler(log, Classify)}
}

type userRequest struct {
	UserID string `path:"user_id"`
}

func (a *AdminAPI) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(identity.RequireAdmin(authErrors(a.log)))

	path := binder.Path(chi.URLParam)
	r.Get("/users/{user_id}/entitlement", handler.Wrap(a.entitlement,
		handler.WithBinders[userRequest](path),
		handler.WithErrorHandler[userRequest](a.onError),
	))
	r.Get("/users/{user_id}/subscriptions", handler.Wrap(a.subscriptions,
		handler.WithBinders[userRequest](path),
		handler.WithErrorHandler[userRequest](a.onError),
	))
	return r
}

func (a *AdminAPI) entitlement(ctx handler.Context, req userRequest) handler.Response {
	ent, err := a.entitlements.Resolve(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(ent, handler.WithJSONMeta(map[string]any{"user_id": req.UserID}))
}

func (a *AdminAPI) subscriptions(ctx handler.Context, req userRequest) handler.Response {
	subs, err := a.subs.History(ctx, req.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return handler.JSON(subs, handler.WithJSONMeta(map[string]any{"user_id": req.UserID, "total": len(subs)}))
}
