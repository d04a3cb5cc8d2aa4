package notifications_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/notifications"
)

func newRecord(recipient string, status notifications.Status, createdAt time.Time) *notifications.Record {
	return &notifications.Record{
		ID:           uuid.New(),
		RecipientID:  recipient,
		Channel:      notifications.ChannelInApp,
		TemplateKey:  "welcome",
		Variables:    map[string]string{"name": "Ada"},
		RenderedBody: "Hello Ada!",
		Status:       status,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestMemoryRecordStore_CreateGet(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryRecordStore()
	ctx := context.Background()
	rec := newRecord("user-1", notifications.StatusPending, time.Now())

	require.NoError(t, store.Create(ctx, rec))
	assert.ErrorIs(t, store.Create(ctx, rec), notifications.ErrDuplicate)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RenderedBody, got.RenderedBody)

	got.Variables["name"] = "mutated"
	again, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Variables["name"])

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestMemoryRecordStore_Find(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryRecordStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := range 25 {
		rec := newRecord("user-1", notifications.StatusPending, base.Add(time.Duration(i)*time.Minute))
		rec.RenderedBody = fmt.Sprintf("#%d", i)
		require.NoError(t, store.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, store.Create(ctx, newRecord("user-2", notifications.StatusPending, base)))

	tests := []struct {
		name       string
		page       int
		limit      int
		wantLen    int
		wantFirst  string
		totalPages int
	}{
		{"first page", 1, 10, 10, "#24", 3},
		{"second page", 2, 10, 10, "#14", 3},
		{"last partial page", 3, 10, 5, "#4", 3},
		{"past the end", 4, 10, 0, "", 3},
		{"single big page", 1, 100, 25, "#24", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page, err := store.Find(ctx, notifications.Filter{RecipientID: "user-1"}, tt.page, tt.limit)
			require.NoError(t, err)
			assert.Len(t, page.Data, tt.wantLen)
			assert.Equal(t, 25, page.Meta.Total)
			assert.Equal(t, tt.page, page.Meta.Page)
			assert.Equal(t, tt.limit, page.Meta.Limit)
			assert.Equal(t, tt.totalPages, page.Meta.TotalPages)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, page.Data[0].RenderedBody)
			}
		})
	}
}

func TestMemoryRecordStore_FindEmpty(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryRecordStore()
	page, err := store.Find(context.Background(), notifications.Filter{RecipientID: "nobody"}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, notifications.Meta{Total: 0, Page: 1, Limit: 10, TotalPages: 0}, page.Meta)
}

func TestMemoryRecordStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryRecordStore()
	ctx := context.Background()
	rec := newRecord("user-1", notifications.StatusPending, time.Now())
	require.NoError(t, store.Create(ctx, rec))

	updated, err := store.UpdateStatus(ctx, rec.ID, notifications.StatusPending, notifications.StatusSent)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusSent, updated.Status)

	_, err = store.UpdateStatus(ctx, rec.ID, notifications.StatusPending, notifications.StatusFailed)
	assert.ErrorIs(t, err, notifications.ErrStatusConflict)

	_, err = store.UpdateStatus(ctx, uuid.New(), notifications.StatusPending, notifications.StatusSent)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestMemoryRecordStore_MarkReadAndCountUnread(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryRecordStore()
	ctx := context.Background()

	statuses := []notifications.Status{
		notifications.StatusPending,
		notifications.StatusSent,
		notifications.StatusFailed,
		notifications.StatusRead,
	}
	recs := make([]*notifications.Record, 0, len(statuses))
	for _, s := range statuses {
		rec := newRecord("user-1", s, time.Now())
		require.NoError(t, store.Create(ctx, rec))
		recs = append(recs, rec)
	}
	require.NoError(t, store.Create(ctx, newRecord("user-2", notifications.StatusSent, time.Now())))

	n, err := store.CountUnread(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.MarkRead(ctx, recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, got.Status)

	// READ is reachable from any status, including FAILED.
	got, err = store.MarkRead(ctx, recs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, got.Status)

	n, err = store.CountUnread(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.MarkRead(ctx, uuid.New())
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}
