package notifications

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/binder"
	"github.com/lifebank/notifykit/pkg/handler"
	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/validator"
)

// Orchestrator is the part of notifications.Orchestrator the HTTP surface uses.
type Orchestrator interface {
	Send(ctx context.Context, req notifications.SendRequest) ([]notifications.Record, error)
	Get(ctx context.Context, id uuid.UUID) (notifications.Record, error)
	FindForRecipient(ctx context.Context, recipientID string, page, limit int) (notifications.Page[notifications.Record], error)
	MarkRead(ctx context.Context, id uuid.UUID) (notifications.Record, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type NotificationService struct {
	orch         Orchestrator
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewNotificationService(orch Orchestrator, errorHandler handler.ErrorHandler[handler.Context]) *NotificationService {
	return &NotificationService{orch: orch, errorHandler: errorHandler}
}

func (s *NotificationService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/", handler.Wrap(s.send,
		handler.WithBinder[handler.Context, SendRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, SendRequest](s.errorHandler),
	))

	r.Get("/", handler.Wrap(s.list,
		handler.WithBinder[handler.Context, ListRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, ListRequest](s.errorHandler),
	))

	r.Get("/unread-count", handler.Wrap(s.unreadCount,
		handler.WithBinder[handler.Context, UnreadCountRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, UnreadCountRequest](s.errorHandler),
	))

	r.Get("/{id}", handler.Wrap(s.get,
		handler.WithBinder[handler.Context, RecordRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, RecordRequest](s.errorHandler),
	))

	r.Patch("/{id}/read", handler.Wrap(s.markRead,
		handler.WithBinder[handler.Context, RecordRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, RecordRequest](s.errorHandler),
	))

	return r
}

type SendRequest struct {
	RecipientID string                  `json:"recipientId"`
	Channels    []notifications.Channel `json:"channels"`
	TemplateKey string                  `json:"templateKey"`
	Variables   map[string]string       `json:"variables"`
}

// send answers 201 with the created records. When a later channel fails,
// the error response lists the records already created under meta.created.
func (s *NotificationService) send(ctx handler.Context, req SendRequest) handler.Response {
	records, err := s.orch.Send(ctx, notifications.SendRequest{
		RecipientID: req.RecipientID,
		Channels:    req.Channels,
		TemplateKey: req.TemplateKey,
		Variables:   req.Variables,
	})
	if err != nil {
		if len(records) > 0 {
			return handler.JSONError(MapError(err), handler.WithJSONMeta(map[string]any{"created": records}))
		}
		return fail(err)
	}
	return handler.JSON(records, handler.WithJSONStatus(http.StatusCreated))
}

// ListRequest uses pointers so that an explicit page=0 is rejected while an
// absent one takes the default.
type ListRequest struct {
	RecipientID string `query:"recipientId"`
	Page        *int   `query:"page"`
	Limit       *int   `query:"limit"`
}

func (r ListRequest) Validate() error {
	var rules []validator.Rule
	if r.Page != nil {
		rules = append(rules, validator.MinNum("page", *r.Page, 1))
	}
	if r.Limit != nil {
		rules = append(rules, validator.MinNum("limit", *r.Limit, 1))
	}
	return validator.Apply(rules...)
}

func (s *NotificationService) list(ctx handler.Context, req ListRequest) handler.Response {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	var page, limit int
	if req.Page != nil {
		page = *req.Page
	}
	if req.Limit != nil {
		limit = *req.Limit
	}

	result, err := s.orch.FindForRecipient(ctx, req.RecipientID, page, limit)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(result.Data, handler.WithJSONMeta(result.Meta))
}

type RecordRequest struct {
	ID uuid.UUID `path:"id"`
}

func (s *NotificationService) get(ctx handler.Context, req RecordRequest) handler.Response {
	rec, err := s.orch.Get(ctx, req.ID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(rec)
}

type UnreadCountRequest struct {
	RecipientID string `query:"recipientId"`
}

type UnreadCountResponse struct {
	RecipientID string `json:"recipientId"`
	Unread      int    `json:"unread"`
}

func (s *NotificationService) unreadCount(ctx handler.Context, req UnreadCountRequest) handler.Response {
	n, err := s.orch.CountUnread(ctx, req.RecipientID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(UnreadCountResponse{RecipientID: req.RecipientID, Unread: n})
}

type MarkReadResponse struct {
	Message string               `json:"message"`
	Data    notifications.Record `json:"data"`
}

func (s *NotificationService) markRead(ctx handler.Context, req RecordRequest) handler.Response {
	rec, err := s.orch.MarkRead(ctx, req.ID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(MarkReadResponse{Message: "Notification marked as read", Data: rec})
}

// failure hands err to the wrapped error handler, which maps, logs and
// renders it.
type failure struct{ err error }

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

func fail(err error) handler.Response { return failure{err: err} }
