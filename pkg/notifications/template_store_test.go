package notifications_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/notifications"
)

func TestMemoryTemplateStore_Resolve(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryTemplateStore(
		notifications.Template{Key: "welcome", Channel: notifications.ChannelEmail, Body: "email body"},
		notifications.Template{Key: "welcome", Channel: notifications.ChannelSMS, Body: "sms body"},
	)

	tmpl, err := store.Resolve(context.Background(), "welcome", notifications.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "sms body", tmpl.Body)
	assert.NotZero(t, tmpl.ID)

	_, err = store.Resolve(context.Background(), "welcome", notifications.ChannelPush)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestMemoryTemplateStore_PutReplacesBody(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryTemplateStore()
	first := store.Put(notifications.Template{Key: "k", Channel: notifications.ChannelPush, Body: "v1"})
	second := store.Put(notifications.Template{Key: "k", Channel: notifications.ChannelPush, Body: "v2"})

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	tmpl, err := store.Resolve(context.Background(), "k", notifications.ChannelPush)
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Body)
}

func TestLoadTemplatesYAML(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		doc := `
templates:
  - key: welcome
    channel: EMAIL
    body: "Hello {{name}}!"
  - key: welcome
    channel: SMS
    body: "Hi {{name}}"
`
		templates, err := notifications.LoadTemplatesYAML(strings.NewReader(doc))
		require.NoError(t, err)
		require.Len(t, templates, 2)
		assert.Equal(t, notifications.ChannelEmail, templates[0].Channel)
		assert.Equal(t, "Hi {{name}}", templates[1].Body)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()
		templates, err := notifications.LoadTemplatesYAML(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, templates)
	})

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()
		doc := "templates:\n  - key: a\n    channel: FAX\n    body: x\n"
		_, err := notifications.LoadTemplatesYAML(strings.NewReader(doc))
		assert.ErrorIs(t, err, notifications.ErrValidation)
	})

	t.Run("duplicate pair", func(t *testing.T) {
		t.Parallel()
		doc := "templates:\n  - key: a\n    channel: SMS\n    body: x\n  - key: a\n    channel: SMS\n    body: y\n"
		_, err := notifications.LoadTemplatesYAML(strings.NewReader(doc))
		assert.ErrorIs(t, err, notifications.ErrDuplicate)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		doc := "templates:\n  - key: a\n    channel: SMS\n    text: x\n"
		_, err := notifications.LoadTemplatesYAML(strings.NewReader(doc))
		assert.Error(t, err)
	})
}

type countingTemplateStore struct {
	next  notifications.TemplateStore
	calls atomic.Int32
}

func (s *countingTemplateStore) Resolve(ctx context.Context, key string, ch notifications.Channel) (notifications.Template, error) {
	s.calls.Add(1)
	return s.next.Resolve(ctx, key, ch)
}

func TestCachedTemplateStore(t *testing.T) {
	t.Parallel()

	mem := notifications.NewMemoryTemplateStore(
		notifications.Template{Key: "welcome", Channel: notifications.ChannelEmail, Body: "v1"},
	)
	counting := &countingTemplateStore{next: mem}
	cached := notifications.NewCachedTemplateStore(counting, 16, time.Minute)
	ctx := context.Background()

	for range 3 {
		tmpl, err := cached.Resolve(ctx, "welcome", notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, "v1", tmpl.Body)
	}
	assert.EqualValues(t, 1, counting.calls.Load())

	mem.Put(notifications.Template{Key: "welcome", Channel: notifications.ChannelEmail, Body: "v2"})
	cached.Invalidate("welcome", notifications.ChannelEmail)

	tmpl, err := cached.Resolve(ctx, "welcome", notifications.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Body)
	assert.EqualValues(t, 2, counting.calls.Load())

	_, err = cached.Resolve(ctx, "missing", notifications.ChannelEmail)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
	_, err = cached.Resolve(ctx, "missing", notifications.ChannelEmail)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
	assert.EqualValues(t, 4, counting.calls.Load())
}
