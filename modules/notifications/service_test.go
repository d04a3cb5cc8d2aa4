package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/modules/notifications"
	"github.com/lifebank/notifykit/pkg/handler"
	"github.com/lifebank/notifykit/pkg/metrics"
	domain "github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/queue"
	"github.com/lifebank/notifykit/pkg/validator"
)

type envelope struct {
	Data  json.RawMessage      `json:"data"`
	Meta  json.RawMessage      `json:"meta"`
	Error *handler.ErrorDetail `json:"error"`
}

type api struct {
	server  *httptest.Server
	records *domain.MemoryRecordStore
	tasks   *queue.MemoryStorage
	metrics *metrics.Metrics
}

func newAPI(t *testing.T, opts ...domain.OrchestratorOption) *api {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates := domain.NewMemoryTemplateStore(
		domain.Template{Key: "welcome", Channel: domain.ChannelEmail, Body: "Hello {{name}}!"},
		domain.Template{Key: "welcome", Channel: domain.ChannelInApp, Body: "Welcome, {{name}}"},
		domain.Template{Key: "broken", Channel: domain.ChannelEmail, Body: "fine {{name}}"},
		domain.Template{Key: "broken", Channel: domain.ChannelSMS, Body: "oops {{name"},
	)
	a := &api{
		records: domain.NewMemoryRecordStore(),
		tasks:   queue.NewMemoryStorage(),
		metrics: metrics.New(),
	}
	enq, err := queue.NewEnqueuer(a.tasks)
	require.NoError(t, err)

	opts = append(opts, domain.WithObserver(a.metrics), domain.WithLogger(log))
	orch := domain.NewOrchestrator(templates, a.records, enq, opts...)
	svc := notifications.NewNotificationService(orch, handler.NewErrorHandler(log, notifications.MapError))

	a.server = httptest.NewServer(notifications.Router(notifications.RouterOptions{
		Notifications: svc,
		Metrics:       a.metrics,
		Logger:        log,
	}))
	t.Cleanup(a.server.Close)
	return a
}

func (a *api) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (a *api) send(t *testing.T, recipient string) []domain.Record {
	t.Helper()

	code, env := a.do(t, http.MethodPost, "/notifications",
		fmt.Sprintf(`{"recipientId":%q,"channels":["EMAIL","IN_APP"],"templateKey":"welcome","variables":{"name":"Ada"}}`, recipient))
	require.Equal(t, http.StatusCreated, code)

	var records []domain.Record
	require.NoError(t, json.Unmarshal(env.Data, &records))
	return records
}

func TestNotificationService_Send(t *testing.T) {
	t.Parallel()

	t.Run("creates pending records", func(t *testing.T) {
		t.Parallel()

		a := newAPI(t)
		records := a.send(t, "user-42")

		require.Len(t, records, 2)
		assert.Equal(t, domain.ChannelEmail, records[0].Channel)
		assert.Equal(t, "Hello Ada!", records[0].RenderedBody)
		assert.Equal(t, domain.ChannelInApp, records[1].Channel)
		assert.Equal(t, "Welcome, Ada", records[1].RenderedBody)
		for _, r := range records {
			assert.Equal(t, domain.StatusPending, r.Status)
			assert.Equal(t, "user-42", r.RecipientID)
		}
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "missing template",
			body:   `{"recipientId":"u1","channels":["PUSH"],"templateKey":"welcome"}`,
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "validation failure",
			body:   `{"recipientId":"","channels":[],"templateKey":"welcome"}`,
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
		{
			name:   "unknown channel",
			body:   `{"recipientId":"u1","channels":["FAX"],"templateKey":"welcome"}`,
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
		{
			name:   "unknown field",
			body:   `{"recipient":"u1"}`,
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newAPI(t)
			code, env := a.do(t, http.MethodPost, "/notifications", tt.body)

			assert.Equal(t, tt.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	t.Run("render failure reports records already created", func(t *testing.T) {
		t.Parallel()

		a := newAPI(t)
		code, env := a.do(t, http.MethodPost, "/notifications",
			`{"recipientId":"u1","channels":["EMAIL","SMS"],"templateKey":"broken","variables":{"name":"x"}}`)

		assert.Equal(t, http.StatusUnprocessableEntity, code)
		require.NotNil(t, env.Error)

		var meta struct {
			Created []domain.Record `json:"created"`
		}
		require.NoError(t, json.Unmarshal(env.Meta, &meta))
		require.Len(t, meta.Created, 1)
		assert.Equal(t, domain.ChannelEmail, meta.Created[0].Channel)
	})

	t.Run("validation failure lists fields", func(t *testing.T) {
		t.Parallel()

		a := newAPI(t)
		code, env := a.do(t, http.MethodPost, "/notifications",
			`{"recipientId":" ","channels":["FAX"],"templateKey":""}`)

		assert.Equal(t, http.StatusBadRequest, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.Contains(t, env.Error.Details, "recipientId")
		assert.Contains(t, env.Error.Details, "templateKey")
		assert.Contains(t, env.Error.Details, "channels")
	})

	t.Run("missing template stops later channels", func(t *testing.T) {
		t.Parallel()

		a := newAPI(t)
		code, env := a.do(t, http.MethodPost, "/notifications",
			`{"recipientId":"u9","channels":["EMAIL","PUSH","IN_APP"],"templateKey":"welcome","variables":{"name":"x"}}`)

		assert.Equal(t, http.StatusNotFound, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "not_found", env.Error.Code)

		var meta struct {
			Created []domain.Record `json:"created"`
		}
		require.NoError(t, json.Unmarshal(env.Meta, &meta))
		require.Len(t, meta.Created, 1)
		assert.Equal(t, domain.ChannelEmail, meta.Created[0].Channel)

		n, err := a.records.CountUnread(context.Background(), "u9")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("validate first creates nothing on render failure", func(t *testing.T) {
		t.Parallel()

		a := newAPI(t, domain.WithSendMode(domain.SendModeValidateFirst))
		code, env := a.do(t, http.MethodPost, "/notifications",
			`{"recipientId":"u1","channels":["EMAIL","SMS"],"templateKey":"broken","variables":{"name":"x"}}`)

		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Empty(t, env.Meta)

		n, err := a.records.CountUnread(context.Background(), "u1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestNotificationService_List(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	for range 6 {
		a.send(t, "user-1")
	}
	a.send(t, "user-2")

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		code, env := a.do(t, http.MethodGet, "/notifications?recipientId=user-1", "")
		require.Equal(t, http.StatusOK, code)

		var records []domain.Record
		require.NoError(t, json.Unmarshal(env.Data, &records))
		assert.Len(t, records, 10)

		var meta domain.Meta
		require.NoError(t, json.Unmarshal(env.Meta, &meta))
		assert.Equal(t, domain.Meta{Total: 12, Page: 1, Limit: 10, TotalPages: 2}, meta)
	})

	t.Run("explicit page", func(t *testing.T) {
		t.Parallel()

		code, env := a.do(t, http.MethodGet, "/notifications?recipientId=user-1&page=2&limit=10", "")
		require.Equal(t, http.StatusOK, code)

		var records []domain.Record
		require.NoError(t, json.Unmarshal(env.Data, &records))
		assert.Len(t, records, 2)
	})

	t.Run("unknown recipient is empty", func(t *testing.T) {
		t.Parallel()

		code, env := a.do(t, http.MethodGet, "/notifications?recipientId=nobody", "")
		require.Equal(t, http.StatusOK, code)

		var meta domain.Meta
		require.NoError(t, json.Unmarshal(env.Meta, &meta))
		assert.Zero(t, meta.Total)
	})

	for _, q := range []string{"page=0", "limit=0", "page=-1", "limit=abc"} {
		t.Run("rejects "+q, func(t *testing.T) {
			t.Parallel()

			code, env := a.do(t, http.MethodGet, "/notifications?recipientId=user-1&"+q, "")
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, env.Error)
		})
	}
}

func TestNotificationService_GetAndMarkRead(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	rec := a.send(t, "user-7")[0]

	code, env := a.do(t, http.MethodGet, "/notifications/"+rec.ID.String(), "")
	require.Equal(t, http.StatusOK, code)
	var got domain.Record
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, rec.ID, got.ID)

	code, env = a.do(t, http.MethodGet, "/notifications/unread-count?recipientId=user-7", "")
	require.Equal(t, http.StatusOK, code)
	var count notifications.UnreadCountResponse
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, 2, count.Unread)

	code, env = a.do(t, http.MethodPatch, "/notifications/"+rec.ID.String()+"/read", "")
	require.Equal(t, http.StatusOK, code)
	var read notifications.MarkReadResponse
	require.NoError(t, json.Unmarshal(env.Data, &read))
	assert.Equal(t, "Notification marked as read", read.Message)
	assert.Equal(t, domain.StatusRead, read.Data.Status)

	code, env = a.do(t, http.MethodGet, "/notifications/unread-count?recipientId=user-7", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, 1, count.Unread)

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		code, env := a.do(t, http.MethodPatch, "/notifications/"+uuid.NewString()+"/read", "")
		assert.Equal(t, http.StatusNotFound, code)
		require.NotNil(t, env.Error)

		code, _ = a.do(t, http.MethodGet, "/notifications/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("malformed id", func(t *testing.T) {
		t.Parallel()

		code, _ := a.do(t, http.MethodGet, "/notifications/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	a := newAPI(t)
	a.send(t, "user-1")

	resp, err := a.server.Client().Get(a.server.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = a.server.Client().Get(a.server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `notifykit_notifications_accepted_total{channel="EMAIL"} 1`)
	assert.Contains(t, string(body), `path="/notifications`)
}

func TestRouter_ReadinessProbe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(notifications.Router(notifications.RouterOptions{
		ReadinessProbes: []func(context.Context) error{
			func(context.Context) error { return errors.New("redis down") },
		},
	}))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

var errBoom = errors.New("boom")

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
		status int
	}{
		{"not found", fmt.Errorf("lookup: %w", domain.ErrNotFound), domain.ErrNotFound, http.StatusNotFound},
		{"render", &domain.RenderError{Offset: 3, Reason: "unterminated placeholder"}, domain.ErrRender, http.StatusUnprocessableEntity},
		{"validation rules", validator.ValidationErrors{{Field: "recipientId", Message: "is required"}}, domain.ErrValidation, http.StatusBadRequest},
		{"page", domain.ErrValidation, domain.ErrValidation, http.StatusBadRequest},
		{"conflict", domain.ErrStatusConflict, domain.ErrStatusConflict, http.StatusConflict},
		{"enqueue", fmt.Errorf("%w: redis down", domain.ErrEnqueue), domain.ErrEnqueue, http.StatusServiceUnavailable},
		{"already http", handler.ErrTooManyRequests, handler.ErrTooManyRequests, http.StatusTooManyRequests},
		{"unknown", errBoom, errBoom, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mapped := notifications.MapError(tt.err)
			assert.Equal(t, tt.status, handler.StatusOf(mapped))
			assert.ErrorIs(t, mapped, tt.target)
		})
	}

	assert.NoError(t, notifications.MapError(nil))
}
