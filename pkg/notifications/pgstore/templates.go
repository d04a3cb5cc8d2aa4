package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/pg"
)

func (s *Store) Resolve(ctx context.Context, key string, channel notifications.Channel) (notifications.Template, error) {
	var t notifications.Template
	err := s.db.QueryRow(ctx, `
		SELECT id, key, channel, body, created_at, updated_at
		FROM notification_templates
		WHERE key = $1 AND channel = $2`,
		key, string(channel),
	).Scan(&t.ID, &t.Key, &t.Channel, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notifications.Template{}, fmt.Errorf("%w: template %q for channel %s", notifications.ErrNotFound, key, channel)
		}
		return notifications.Template{}, fmt.Errorf("pgstore: resolve template: %w", err)
	}
	return t, nil
}

// PutTemplate inserts the template or replaces the body of the existing
// (key, channel) pair.
func (s *Store) PutTemplate(ctx context.Context, t notifications.Template) (notifications.Template, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()

	err := s.db.QueryRow(ctx, `
		INSERT INTO notification_templates (id, key, channel, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key, channel) DO UPDATE
		SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		t.ID, t.Key, string(t.Channel), t.Body, now,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return notifications.Template{}, fmt.Errorf("pgstore: put template: %w", err)
	}
	return t, nil
}
