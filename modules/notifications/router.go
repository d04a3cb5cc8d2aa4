// Package notifications mounts the HTTP surface of the dispatch engine:
// the notification API, the realtime WebSocket, health probes and metrics.
package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lifebank/notifykit/pkg/httpserver"
	"github.com/lifebank/notifykit/pkg/metrics"
	"github.com/lifebank/notifykit/pkg/requestid"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects what to mount. Nil entries are skipped.
type RouterOptions struct {
	Notifications Mountable
	// Realtime serves the WebSocket endpoint, see realtime.Gateway.ServeWS.
	Realtime http.Handler
	Metrics  *metrics.Metrics
	// ReadinessProbes back /health/ready.
	ReadinessProbes []func(context.Context) error
	Logger          *slog.Logger
}

// Router builds the service router.
//
//	svc := notifications.NewNotificationService(orch, handler.NewErrorHandler(log, notifications.MapError))
//	r := notifications.Router(notifications.RouterOptions{
//		Notifications: svc,
//		Realtime:      gateway.ServeWSHandler(),
//		Metrics:       m,
//	})
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/health/live", httpserver.HealthCheckHandler(opts.Logger))
	r.Get("/health/ready", httpserver.HealthCheckHandler(opts.Logger, opts.ReadinessProbes...))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.Notifications != nil {
		r.Mount("/notifications", opts.Notifications.Handle())
	}
	if opts.Realtime != nil {
		r.Method(http.MethodGet, "/ws", opts.Realtime)
	}

	return r
}
