package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const probeTimeout = 3 * time.Second

// HealthCheckHandler serves liveness ("ALIVE") when no probes are given and
// readiness ("READY" / 503 "NOT_READY") otherwise.
func HealthCheckHandler(log *slog.Logger, probes ...func(context.Context) error) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
