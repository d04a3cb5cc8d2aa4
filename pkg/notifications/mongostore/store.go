// Package mongostore keeps notification records in a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lifebank/notifykit/pkg/notifications"
)

// DefaultCollection holds the records when no other name is configured.
const DefaultCollection = "notification_records"

var _ notifications.RecordStore = (*Store)(nil)

type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

type Option func(*Store)

func WithCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.coll = s.coll.Database().Collection(name)
		}
	}
}

func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		coll: db.Collection(DefaultCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the index serving recipient listings.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create index: %w", err)
	}
	return nil
}

type recordDoc struct {
	ID           string            `bson:"_id"`
	RecipientID  string            `bson:"recipient_id"`
	Channel      string            `bson:"channel"`
	TemplateKey  string            `bson:"template_key"`
	Variables    map[string]string `bson:"variables,omitempty"`
	RenderedBody string            `bson:"rendered_body"`
	Status       string            `bson:"status"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

func toDoc(r notifications.Record) recordDoc {
	return recordDoc{
		ID:           r.ID.String(),
		RecipientID:  r.RecipientID,
		Channel:      string(r.Channel),
		TemplateKey:  r.TemplateKey,
		Variables:    r.Variables,
		RenderedBody: r.RenderedBody,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (d recordDoc) record() (notifications.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return notifications.Record{}, fmt.Errorf("mongostore: bad record id %q: %w", d.ID, err)
	}
	return notifications.Record{
		ID:           id,
		RecipientID:  d.RecipientID,
		Channel:      notifications.Channel(d.Channel),
		TemplateKey:  d.TemplateKey,
		Variables:    d.Variables,
		RenderedBody: d.RenderedBody,
		Status:       notifications.Status(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

func (s *Store) Create(ctx context.Context, r *notifications.Record) error {
	if _, err := s.coll.InsertOne(ctx, toDoc(*r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: record %s", notifications.ErrDuplicate, r.ID)
		}
		return fmt.Errorf("mongostore: create record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (notifications.Record, error) {
	var d recordDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return notifications.Record{}, fmt.Errorf("%w: record %s", notifications.ErrNotFound, id)
		}
		return notifications.Record{}, fmt.Errorf("mongostore: get record: %w", err)
	}
	return d.record()
}

func (s *Store) Find(ctx context.Context, f notifications.Filter, page, limit int) (notifications.Page[notifications.Record], error) {
	filter := bson.M{}
	if f.RecipientID != "" {
		filter["recipient_id"] = f.RecipientID
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("mongostore: count records: %w", err)
	}
	meta := notifications.NewMeta(int(total), page, limit)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(meta.Offset())).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("mongostore: find records: %w", err)
	}
	defer cur.Close(ctx)

	data := make([]notifications.Record, 0, limit)
	for cur.Next(ctx) {
		var d recordDoc
		if err := cur.Decode(&d); err != nil {
			return notifications.Page[notifications.Record]{}, fmt.Errorf("mongostore: decode record: %w", err)
		}
		r, err := d.record()
		if err != nil {
			return notifications.Page[notifications.Record]{}, err
		}
		data = append(data, r)
	}
	if err := cur.Err(); err != nil {
		return notifications.Page[notifications.Record]{}, fmt.Errorf("mongostore: iterate records: %w", err)
	}
	return notifications.Page[notifications.Record]{Data: data, Meta: meta}, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to notifications.Status) (notifications.Record, error) {
	r, err := s.setStatus(ctx, bson.M{"_id": id.String(), "status": string(from)}, to)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return notifications.Record{}, fmt.Errorf("mongostore: update record status: %w", err)
	}

	current, gerr := s.Get(ctx, id)
	if gerr != nil {
		return notifications.Record{}, gerr
	}
	return notifications.Record{}, fmt.Errorf("%w: record %s is %s, expected %s",
		notifications.ErrStatusConflict, id, current.Status, from)
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) (notifications.Record, error) {
	r, err := s.setStatus(ctx, bson.M{"_id": id.String()}, notifications.StatusRead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return notifications.Record{}, fmt.Errorf("%w: record %s", notifications.ErrNotFound, id)
		}
		return notifications.Record{}, fmt.Errorf("mongostore: mark read: %w", err)
	}
	return r, nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"recipient_id": recipientID,
		"status": bson.M{"$in": bson.A{
			string(notifications.StatusPending),
			string(notifications.StatusSent),
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("mongostore: count unread: %w", err)
	}
	return int(n), nil
}

func (s *Store) setStatus(ctx context.Context, filter bson.M, to notifications.Status) (notifications.Record, error) {
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": s.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d recordDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		return notifications.Record{}, err
	}
	return d.record()
}
