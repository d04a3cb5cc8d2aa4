package notifications

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordStore persists notification records.
type RecordStore interface {
	// Create stores r; ID, timestamps and status are assigned by the caller.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	// Find returns one page of matching records, newest first. page and
	// limit are already normalized.
	Find(ctx context.Context, f Filter, page, limit int) (Page[Record], error)
	// UpdateStatus moves a record from `from` to `to`. It fails with
	// ErrStatusConflict when the stored status is no longer `from`.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (Record, error)
	// MarkRead sets READ regardless of the current status.
	MarkRead(ctx context.Context, id uuid.UUID) (Record, error)
	// CountUnread counts the recipient's PENDING and SENT records.
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// MemoryRecordStore keeps records in process memory.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	order   []uuid.UUID
	now     func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
}

func (s *MemoryRecordStore) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("%w: record %s", ErrDuplicate, r.ID)
	}
	cp := cloneRecord(*r)
	s.records[r.ID] = &cp
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	return cloneRecord(*r), nil
}

func (s *MemoryRecordStore) Find(_ context.Context, f Filter, page, limit int) (Page[Record], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk insertion order backwards so equal timestamps stay newest first.
	matched := make([]Record, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.records[s.order[i]]
		if f.Match(*r) {
			matched = append(matched, *r)
		}
	}
	slices.SortStableFunc(matched, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	meta := NewMeta(len(matched), page, limit)
	start := min(meta.Offset(), len(matched))
	end := min(start+limit, len(matched))

	data := make([]Record, 0, end-start)
	for _, r := range matched[start:end] {
		data = append(data, cloneRecord(r))
	}
	return Page[Record]{Data: data, Meta: meta}, nil
}

func (s *MemoryRecordStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	if r.Status != from {
		return Record{}, fmt.Errorf("%w: record %s is %s, expected %s", ErrStatusConflict, id, r.Status, from)
	}
	r.Status = to
	r.UpdatedAt = s.now()
	return cloneRecord(*r), nil
}

func (s *MemoryRecordStore) MarkRead(_ context.Context, id uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	r.Status = StatusRead
	r.UpdatedAt = s.now()
	return cloneRecord(*r), nil
}

func (s *MemoryRecordStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.RecipientID == recipientID && isUnread(r.Status) {
			n++
		}
	}
	return n, nil
}

func cloneRecord(r Record) Record {
	r.Variables = maps.Clone(r.Variables)
	return r
}

func isUnread(s Status) bool {
	return s == StatusPending || s == StatusSent
}
