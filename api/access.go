package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/handler"
)

// AccessAPI is called by products to redeem launch tokens. The token is the
// credential, so the route needs no user session.
type AccessAPI struct {
	launcher Launcher
	onError  handler.ErrorHandler
}

// NewAccessAPI creates the launch token redemption handler for products.
func NewAccessAPI(launcher Launcher, log *slog.Logger) *AccessAPI {
	return &AccessAPI{launcher: launcher, onError: handler.NewErrorHandler(log, Classify)}
}

type verifyRequest struct {
	Token     string    `json:"token"`
	ProductID uuid.UUID `json:"product_id"`
}

func (a *AccessAPI) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/verify", handler.Wrap(a.verify,
		handler.WithBinders[verifyRequest](binder.JSON()),
		handler.WithErrorHandler[verifyRequest](a.onError),
	))
	return r
}

func (a *AccessAPI) verify(ctx handler.Context, req verifyRequest) handler.Response {
	if req.Token == "" || req.ProductID == uuid.Nil {
		return handler.Fail(handler.ErrUnprocessableEntity.WithMessage("token and product_id are required"))
	}
	grant, err := a.launcher.Verify(ctx, req.Token, req.ProductID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(grant)
}
