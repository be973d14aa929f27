package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golden/internal/request/models"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	"golden/pkg/platform/sentinel"
)

// DefaultTxTimeout bounds a transaction whose context carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// InMemoryStore keeps requests in process memory.
//
// Transactions are serialized: RunInTx holds a single writer slot for the
// duration of fn, stages every write, and publishes the staged records in
// one step when fn succeeds. Reads outside a transaction see only committed
// state. The Active-per-key index is maintained at commit time, so at most
// one Active record per duplicate key is ever visible.
type InMemoryStore struct {
	writer  chan struct{}
	timeout time.Duration

	mu          sync.RWMutex
	records     map[id.RequestID]*models.Request
	activeByKey map[models.DuplicateKey]id.RequestID
}

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithTxTimeout overrides DefaultTxTimeout.
func WithTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		writer:      make(chan struct{}, 1),
		timeout:     DefaultTxTimeout,
		records:     make(map[id.RequestID]*models.Request),
		activeByKey: make(map[models.DuplicateKey]id.RequestID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn against a staged view of the store. Nothing fn writes is
// visible to other callers until fn returns nil; an error discards it all.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.RecordStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: waiting for writer")
	}
	defer func() { <-s.writer }()

	view := &memoryTx{base: s, staged: make(map[id.RequestID]*models.Request)}
	if err := fn(ctx, view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	s.commit(view.staged)
	return nil
}

func (s *InMemoryStore) commit(staged map[id.RequestID]*models.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop index entries first so a supersede followed by an activation on
	// the same key lands in a consistent index.
	for reqID := range staged {
		if old, ok := s.records[reqID]; ok && old.IsActive() {
			if s.activeByKey[old.Key()] == reqID {
				delete(s.activeByKey, old.Key())
			}
		}
	}
	for reqID, rec := range staged {
		s.records[reqID] = rec
		if rec.IsActive() {
			s.activeByKey[rec.Key()] = reqID
		}
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// Create stores r in its own transaction.
func (s *InMemoryStore) Create(ctx context.Context, r *models.Request) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		return tx.Create(ctx, r)
	})
}

// Save updates r in its own transaction.
func (s *InMemoryStore) Save(ctx context.Context, r *models.Request) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		return tx.Save(ctx, r)
	})
}

func (s *InMemoryStore) FindActiveByKey(_ context.Context, key models.DuplicateKey) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqID, ok := s.activeByKey[key]
	if !ok {
		return nil, nil
	}
	return s.records[reqID].Clone(), nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, statuses []models.Status, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0)
	for _, rec := range s.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	return sortAndLimit(out, limit), nil
}

// Len reports the number of committed records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// memoryTx is the RecordStore handed to RunInTx callbacks. Reads see staged
// writes first, then committed state.
type memoryTx struct {
	base   *InMemoryStore
	staged map[id.RequestID]*models.Request
}

func (t *memoryTx) current(requestID id.RequestID) *models.Request {
	if rec, ok := t.staged[requestID]; ok {
		return rec
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	return t.base.records[requestID]
}

func (t *memoryTx) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	rec := t.current(requestID)
	if rec == nil {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memoryTx) Create(_ context.Context, r *models.Request) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if t.current(r.ID) != nil {
		return fmt.Errorf("create request %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	if r.IsActive() {
		if holder := t.activeHolder(r.Key()); holder != nil {
			return fmt.Errorf("create request %s: key held by %s: %w", r.ID, holder.ID, sentinel.ErrAlreadyUsed)
		}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	t.staged[r.ID] = r.Clone()
	return nil
}

func (t *memoryTx) Save(_ context.Context, r *models.Request) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	existing := t.current(r.ID)
	if existing == nil {
		return fmt.Errorf("save request %s: %w", r.ID, sentinel.ErrNotFound)
	}
	if existing.Version != r.Version {
		return fmt.Errorf("save request %s: stale version %d (current %d): %w", r.ID, r.Version, existing.Version, sentinel.ErrConflict)
	}
	if r.IsActive() {
		if holder := t.activeHolder(r.Key()); holder != nil && holder.ID != r.ID {
			return fmt.Errorf("save request %s: key held by %s: %w", r.ID, holder.ID, sentinel.ErrAlreadyUsed)
		}
	}
	r.Version++
	t.staged[r.ID] = r.Clone()
	return nil
}

func (t *memoryTx) FindActiveByKey(_ context.Context, key models.DuplicateKey) (*models.Request, error) {
	if holder := t.activeHolder(key); holder != nil {
		return holder.Clone(), nil
	}
	return nil, nil
}

// activeHolder returns the record holding key as this transaction sees it.
func (t *memoryTx) activeHolder(key models.DuplicateKey) *models.Request {
	for _, rec := range t.staged {
		if rec.IsActive() && rec.Key() == key {
			return rec
		}
	}
	t.base.mu.RLock()
	reqID, ok := t.base.activeByKey[key]
	rec := t.base.records[reqID]
	t.base.mu.RUnlock()
	if !ok {
		return nil
	}
	if _, overwritten := t.staged[reqID]; overwritten {
		// The staged copy was checked above and no longer holds key.
		return nil
	}
	return rec
}

func (t *memoryTx) ListByStatus(_ context.Context, statuses []models.Status, limit int) ([]*models.Request, error) {
	t.base.mu.RLock()
	out := make([]*models.Request, 0)
	for reqID, rec := range t.base.records {
		if _, overwritten := t.staged[reqID]; overwritten {
			continue
		}
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	t.base.mu.RUnlock()
	for _, rec := range t.staged {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	return sortAndLimit(out, limit), nil
}

func sortAndLimit(recs []*models.Request, limit int) []*models.Request {
	slices.SortFunc(recs, func(a, b *models.Request) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID.String() < b.ID.String():
			return -1
		case a.ID.String() > b.ID.String():
			return 1
		}
		return 0
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
