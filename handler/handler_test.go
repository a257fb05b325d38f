package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/pkg/logger"
)

type renameRequest struct {
	ID   uuid.UUID `path:"id" json:"-"`
	Name string    `json:"name"`
}

var errGone = errors.New("gone")

func classify(err error) error {
	if errors.Is(err, errGone) {
		return handler.ErrNotFound.Wrap(err)
	}
	return err
}

func newRouter(h handler.HandlerFunc[renameRequest], decorators ...handler.Decorator[renameRequest]) http.Handler {
	r := chi.NewRouter()
	r.Put("/items/{id}", handler.Wrap(h,
		handler.WithBinders[renameRequest](binder.Path(chi.URLParam), binder.JSON()),
		handler.WithErrorHandler[renameRequest](handler.NewErrorHandler(logger.Noop(), classify)),
		handler.WithDecorators(decorators...),
	))
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var got handler.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func TestWrap(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	t.Run("binds path and body", func(t *testing.T) {
		t.Parallel()
		var seen renameRequest
		srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
			seen = req
			return handler.JSON(map[string]string{"name": req.Name})
		})

		req := httptest.NewRequest(http.MethodPut, "/items/"+id.String(), strings.NewReader(`{"name":"pro"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, seen.ID)
		assert.Equal(t, "pro", seen.Name)
	})

	t.Run("invalid path id is a bad request", func(t *testing.T) {
		t.Parallel()
		srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
			t.Fatal("handler must not run")
			return nil
		})

		req := httptest.NewRequest(http.MethodPut, "/items/not-a-uuid", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decode(t, w).Error.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
			return handler.Empty()
		})

		req := httptest.NewRequest(http.MethodPut, "/items/"+id.String(), bytes.NewBufferString("name=pro"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("nil response is an internal error", func(t *testing.T) {
		t.Parallel()
		srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
			return nil
		})

		req := httptest.NewRequest(http.MethodPut, "/items/"+id.String(), strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal_server_error", decode(t, w).Error.Code)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[renameRequest] {
			return func(next handler.HandlerFunc[renameRequest]) handler.HandlerFunc[renameRequest] {
				return func(ctx handler.Context, req renameRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
			order = append(order, "handler")
			return handler.JSONError(errGone)
		}, mark("outer"), mark("inner"))

		req := httptest.NewRequest(http.MethodPut, "/items/"+id.String(), strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
		// JSONError does not run classifiers.
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestFail(t *testing.T) {
	t.Parallel()

	srv := newRouter(func(ctx handler.Context, req renameRequest) handler.Response {
		return handler.Fail(errGone)
	})

	req := httptest.NewRequest(http.MethodPut, "/items/"+uuid.NewString(), strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w).Error.Code)
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	h := handler.NewErrorHandler(logger.Noop(), classify)

	w := httptest.NewRecorder()
	h(handler.NewContext(w, httptest.NewRequest(http.MethodGet, "/", nil)), errGone)

	assert.Equal(t, http.StatusNotFound, w.Code)
	got := decode(t, w)
	assert.Equal(t, "not_found", got.Error.Code)
	assert.Equal(t, "gone", got.Error.Message)
}
