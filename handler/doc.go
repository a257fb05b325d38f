// Package handler binds HTTP requests into typed values and renders typed
// responses.
//
// A HandlerFunc receives the bound request and returns a Response; Wrap turns
// it into an http.HandlerFunc:
//
//	type getTierRequest struct {
//		ID uuid.UUID `path:"id"`
//	}
//
//	h := func(ctx handler.Context, req getTierRequest) handler.Response {
//		t, err := registry.Get(ctx, req.ID)
//		if err != nil {
//			return handler.JSONError(classify(err))
//		}
//		return handler.JSON(t)
//	}
//
//	r.Get("/tiers/{id}", handler.Wrap(h,
//		handler.WithBinders[getTierRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[getTierRequest](handler.NewErrorHandler(log, classify)),
//	))
//
// # Responses
//
// JSON and JSONError render the {data, meta, error} envelope. Errors choose
// their status: HTTPError carries its own code, an error exposing
// Fields() map[string][]string becomes 422 with per-field details, and any
// other error is a 500 whose message is not exposed. Empty and
// EmptyWithStatus write no body.
//
// # Errors
//
// Binding and rendering failures go to the ErrorHandler. NewErrorHandler
// logs them with the request id and renders the same envelope after running
// the configured classifiers.
package handler
