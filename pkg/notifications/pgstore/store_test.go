package pgstore_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/notifications/pgstore"
	"github.com/lifebank/notifykit/pkg/pg"
)

// newStore connects to PG_TEST_CONN_URL and migrates the schema. Tests are
// skipped when the variable is unset.
func newStore(t *testing.T) *pgstore.Store {
	t.Helper()

	connURL := os.Getenv("PG_TEST_CONN_URL")
	if connURL == "" {
		t.Skip("PG_TEST_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: connURL,
		MaxOpenConns:     4,
		RetryAttempts:    1,
		MigrationsTable:  "notifykit_test_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return pgstore.New(pool)
}

func TestStore_Templates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := "welcome-" + uuid.NewString()

	first, err := store.PutTemplate(ctx, notifications.Template{Key: key, Channel: notifications.ChannelEmail, Body: "v1"})
	require.NoError(t, err)
	second, err := store.PutTemplate(ctx, notifications.Template{Key: key, Channel: notifications.ChannelEmail, Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	tmpl, err := store.Resolve(ctx, key, notifications.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Body)

	_, err = store.Resolve(ctx, key, notifications.ChannelSMS)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestStore_Records(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	recipient := "user-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []uuid.UUID
	for i := range 12 {
		at := base.Add(time.Duration(i) * time.Second)
		rec := &notifications.Record{
			ID:           uuid.New(),
			RecipientID:  recipient,
			Channel:      notifications.ChannelInApp,
			TemplateKey:  "welcome",
			Variables:    map[string]string{"name": "Ada"},
			RenderedBody: "Hello Ada!",
			Status:       notifications.StatusPending,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		require.NoError(t, store.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}

	got, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Variables["name"])

	page, err := store.Find(ctx, notifications.Filter{RecipientID: recipient}, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, notifications.Meta{Total: 12, Page: 2, Limit: 5, TotalPages: 3}, page.Meta)
	require.Len(t, page.Data, 5)
	assert.Equal(t, ids[6], page.Data[0].ID)

	_, err = store.UpdateStatus(ctx, ids[0], notifications.StatusPending, notifications.StatusSent)
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, ids[0], notifications.StatusPending, notifications.StatusFailed)
	assert.ErrorIs(t, err, notifications.ErrStatusConflict)
	_, err = store.UpdateStatus(ctx, uuid.New(), notifications.StatusPending, notifications.StatusSent)
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	read, err := store.MarkRead(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, read.Status)

	n, err := store.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}
