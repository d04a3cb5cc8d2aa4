package handler

import (
	"log/slog"
	"net/http"

	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/requestid"
)

// ErrorMapper translates domain errors into HTTPError or ValidationError
// values before rendering.
type ErrorMapper func(error) error

// NewErrorHandler logs the error at a level matching its status and renders
// it as a JSON error envelope. Client errors log at warn, server errors at
// error.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		for _, m := range mappers {
			err = m(err)
		}

		r := ctx.Request()
		resp := JSONError(err)
		status := StatusOf(err)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.Error("failed to render error response",
				logger.Error(renderErr),
				logger.Event("render_error"))
		}
	}
}
