package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/pg"
)

const recordColumns = `id, recipient_id, channel, template_key, variables, rendered_body, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *notifications.Record) error {
	vars := r.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.RecipientID, string(r.Channel), r.TemplateKey, vars,
		r.RenderedBody, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: record %s", notifications.ErrDuplicate, r.ID)
		}
		return fmt.Errorf("pgstore: create record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (notifications.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM notification_records WHERE id = $1`, id)
	r, err := scanRecord(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notifications.Record{}, fmt.Errorf("%w: record %s", notifications.ErrNotFound, id)
		}
		return notifications.Record{}, fmt.Errorf("pgstore: get record: %w", err)
	}
	return r, nil
}

func (s *Store) Find(ctx context.Context, f notifications.Filter, page, limit int) (notifications.Page[notifications.Record], error) {
	where := ""
	args := []any{}
	if f.RecipientID != "" {
		where = " WHERE recipient_id = $1"
		args = append(args, f.RecipientID)
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM notification_records`+where, args...).Scan(&total); err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("pgstore: count records: %w", err)
	}

	meta := notifications.NewMeta(total, page, limit)
	query := fmt.Sprintf(`SELECT %s FROM notification_records%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, meta.Offset())

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("pgstore: find records: %w", err)
	}
	defer rows.Close()

	data := make([]notifications.Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return notifications.Page[notifications.Record]{}, fmt.Errorf("pgstore: scan record: %w", err)
		}
		data = append(data, r)
	}
	if err := rows.Err(); err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("pgstore: iterate records: %w", err)
	}
	return notifications.Page[notifications.Record]{Data: data, Meta: meta}, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to notifications.Status) (notifications.Record, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE notification_records SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+recordColumns,
		id, string(from), string(to), time.Now().UTC(),
	)
	r, err := scanRecord(row)
	if err == nil {
		return r, nil
	}
	if !pg.IsNotFoundError(err) {
		return notifications.Record{}, fmt.Errorf("pgstore: update record status: %w", err)
	}

	// Nothing matched: either the record is gone or its status moved on.
	current, gerr := s.Get(ctx, id)
	if gerr != nil {
		return notifications.Record{}, gerr
	}
	return notifications.Record{}, fmt.Errorf("%w: record %s is %s, expected %s",
		notifications.ErrStatusConflict, id, current.Status, from)
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) (notifications.Record, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE notification_records SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+recordColumns,
		id, string(notifications.StatusRead), time.Now().UTC(),
	)
	r, err := scanRecord(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notifications.Record{}, fmt.Errorf("%w: record %s", notifications.ErrNotFound, id)
		}
		return notifications.Record{}, fmt.Errorf("pgstore: mark read: %w", err)
	}
	return r, nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM notification_records
		WHERE recipient_id = $1 AND status IN ($2, $3)`,
		recipientID, string(notifications.StatusPending), string(notifications.StatusSent),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count unread: %w", err)
	}
	return n, nil
}

func scanRecord(row pgx.Row) (notifications.Record, error) {
	var (
		r       notifications.Record
		channel string
		status  string
	)
	err := row.Scan(
		&r.ID, &r.RecipientID, &channel, &r.TemplateKey, &r.Variables,
		&r.RenderedBody, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return notifications.Record{}, err
	}
	r.Channel = notifications.Channel(channel)
	r.Status = notifications.Status(status)
	return r, nil
}
