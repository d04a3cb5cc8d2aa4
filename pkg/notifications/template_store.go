package notifications

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lifebank/notifykit/pkg/cache"
)

// TemplateStore resolves the template registered for a key on a channel.
// Implementations return ErrNotFound when no such template exists.
type TemplateStore interface {
	Resolve(ctx context.Context, key string, channel Channel) (Template, error)
}

type templateKey struct {
	key     string
	channel Channel
}

// MemoryTemplateStore keeps templates in process memory.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
	now       func() time.Time
}

func NewMemoryTemplateStore(templates ...Template) *MemoryTemplateStore {
	s := &MemoryTemplateStore{
		templates: make(map[templateKey]Template, len(templates)),
		now:       time.Now,
	}
	for _, t := range templates {
		s.Put(t)
	}
	return s
}

// Put inserts or replaces the template for (t.Key, t.Channel).
func (s *MemoryTemplateStore) Put(t Template) Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := templateKey{key: t.Key, channel: t.Channel}
	now := s.now()
	if prev, ok := s.templates[k]; ok {
		t.ID = prev.ID
		t.CreatedAt = prev.CreatedAt
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.templates[k] = t
	return t
}

func (s *MemoryTemplateStore) Resolve(_ context.Context, key string, channel Channel) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[templateKey{key: key, channel: channel}]
	if !ok {
		return Template{}, fmt.Errorf("%w: template %q for channel %s", ErrNotFound, key, channel)
	}
	return t, nil
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplatesYAML reads a document of the form
//
//	templates:
//	  - key: welcome
//	    channel: EMAIL
//	    body: "Hello {{name}}!"
//
// Each (key, channel) pair may appear once.
func LoadTemplatesYAML(r io.Reader) ([]Template, error) {
	var doc templateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	seen := make(map[templateKey]struct{}, len(doc.Templates))
	for i, t := range doc.Templates {
		if t.Key == "" {
			return nil, fmt.Errorf("%w: template #%d has no key", ErrValidation, i)
		}
		if !t.Channel.Valid() {
			return nil, fmt.Errorf("%w: template %q has unknown channel %q", ErrValidation, t.Key, t.Channel)
		}
		k := templateKey{key: t.Key, channel: t.Channel}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: template %q for channel %s", ErrDuplicate, t.Key, t.Channel)
		}
		seen[k] = struct{}{}
	}
	return doc.Templates, nil
}

// CachedTemplateStore puts an LRU with a TTL in front of another store.
// Misses are not cached.
type CachedTemplateStore struct {
	next  TemplateStore
	cache *cache.LRU[templateKey, Template]
}

func NewCachedTemplateStore(next TemplateStore, capacity int, ttl time.Duration) *CachedTemplateStore {
	return &CachedTemplateStore{
		next:  next,
		cache: cache.NewLRU[templateKey, Template](capacity, ttl),
	}
}

func (s *CachedTemplateStore) Resolve(ctx context.Context, key string, channel Channel) (Template, error) {
	k := templateKey{key: key, channel: channel}
	if t, ok := s.cache.Get(k); ok {
		return t, nil
	}
	t, err := s.next.Resolve(ctx, key, channel)
	if err != nil {
		return Template{}, err
	}
	s.cache.Put(k, t)
	return t, nil
}

// Invalidate drops a cached template so the next Resolve reloads it.
func (s *CachedTemplateStore) Invalidate(key string, channel Channel) {
	s.cache.Remove(templateKey{key: key, channel: channel})
}
