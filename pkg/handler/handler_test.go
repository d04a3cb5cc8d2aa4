package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/binder"
	"github.com/lifebank/notifykit/pkg/handler"
)

type createRequest struct {
	Name string `json:"name"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var got handler.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func TestWrap(t *testing.T) {
	t.Parallel()

	create := handler.HandlerFunc[handler.Context, createRequest](
		func(_ handler.Context, req createRequest) handler.Response {
			if req.Name == "missing" {
				return handler.JSONError(handler.ErrNotFound)
			}
			return handler.JSON(map[string]string{"name": req.Name}, handler.WithJSONStatus(http.StatusCreated))
		},
	)
	h := handler.Wrap(create, handler.WithBinders[handler.Context, createRequest](binder.JSON()))

	t.Run("binds and renders", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, map[string]any{"name": "ana"}, decode(t, w).Data)
	})

	t.Run("binder error is bad request", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":true}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		got := decode(t, w)
		require.NotNil(t, got.Error)
		assert.Equal(t, "bad_request", got.Error.Code)
	})

	t.Run("http error from handler", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"missing"}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decode(t, w).Error.Code)
	})
}

func TestWrap_NilResponseAndDecorators(t *testing.T) {
	t.Parallel()

	var order []string
	deco := func(name string) handler.Decorator[handler.Context, struct{}] {
		return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
			return func(ctx handler.Context, req struct{}) handler.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	var gotErr error
	h := handler.Wrap(
		func(handler.Context, struct{}) handler.Response { return nil },
		handler.WithDecorators(deco("outer"), deco("inner")),
		handler.WithErrorHandler[handler.Context, struct{}](func(ctx handler.Context, err error) {
			gotErr = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		}),
	)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.ErrorIs(t, gotErr, handler.ErrNilResponse)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		hasField string
	}{
		{"opaque error hides message", errors.New("db password leaked"), http.StatusInternalServerError, "internal_server_error", ""},
		{"http error", handler.ErrConflict, http.StatusConflict, "conflict", ""},
		{"validation error", handler.ValidationError{"channels": {"required"}}, http.StatusBadRequest, "validation_error", "channels"},
		{"validation with status", errors.Join(handler.ErrUnprocessableEntity, handler.ValidationError{"body": {"bad"}}), http.StatusUnprocessableEntity, "validation_error", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, handler.StatusOf(tt.err))
			got := decode(t, w)
			require.NotNil(t, got.Error)
			assert.Equal(t, tt.code, got.Error.Code)
			assert.NotContains(t, got.Error.Message, "password")
			if tt.hasField != "" {
				assert.Contains(t, got.Error.Details, tt.hasField)
			}
		})
	}
}

func TestJSON_Meta(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	resp := handler.JSON([]int{1, 2}, handler.WithJSONMeta(map[string]int{"total": 2}))
	require.NoError(t, resp.Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	got := decode(t, w)
	assert.Equal(t, []any{float64(1), float64(2)}, got.Data)
	assert.Equal(t, map[string]any{"total": float64(2)}, got.Meta)
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	require.NoError(t, handler.Empty().Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	domainErr := errors.New("record missing")
	eh := handler.NewErrorHandler(log, func(err error) error {
		if errors.Is(err, domainErr) {
			return errors.Join(handler.ErrNotFound, err)
		}
		return err
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/notifications/1", nil)
	eh(handler.NewContext(w, r), domainErr)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"status_code":404`)

	buf.Reset()
	w = httptest.NewRecorder()
	eh(handler.NewContext(w, r), io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	v := handler.NewValidationError()
	assert.True(t, v.IsEmpty())
	v.Add("limit", "must be positive")
	assert.True(t, v.Has("limit"))
	assert.Equal(t, "must be positive", v.Get("limit"))
	assert.Equal(t, "validation error: limit: must be positive", v.Error())
}
