package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memRecord struct {
	data      map[string]any
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore keeps documents in process. Transactions run one at a time under
// an exclusive lock, so they are serialisable by construction.
type MemoryStore struct {
	mu     sync.RWMutex
	cols   map[string]map[string]*memRecord
	closed bool
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cols: map[string]map[string]*memRecord{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.get(collection, id)
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.query(collection, filters), nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) get(collection, id string) (*Document, error) {
	rec, ok := s.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.document(collection, id), nil
}

func (s *MemoryStore) query(collection string, filters []Filter) []*Document {
	out := []*Document{}
	for id, rec := range s.cols[collection] {
		if Matches(rec.data, filters) {
			out = append(out, rec.document(collection, id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRecord) document(collection, id string) *Document {
	return &Document{
		Collection: collection,
		ID:         id,
		Data:       Clone(r.data),
		Version:    r.version,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
	}
}

type writeOp int

const (
	opCreate writeOp = iota
	opSet
	opMerge
	opDelete
)

type pendingWrite struct {
	op         writeOp
	collection string
	id         string
	data       map[string]any
}

type memTx struct {
	store  *MemoryStore
	writes []pendingWrite
}

func (t *memTx) Get(ctx context.Context, collection, id string) (*Document, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	return t.store.get(collection, id)
}

func (t *memTx) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	return t.store.query(collection, filters), nil
}

func (t *memTx) Create(collection, id string, data map[string]any) error {
	t.writes = append(t.writes, pendingWrite{op: opCreate, collection: collection, id: id, data: Clone(data)})
	return nil
}

func (t *memTx) Set(collection, id string, data map[string]any) error {
	t.writes = append(t.writes, pendingWrite{op: opSet, collection: collection, id: id, data: Clone(data)})
	return nil
}

func (t *memTx) Merge(collection, id string, fields map[string]any) error {
	t.writes = append(t.writes, pendingWrite{op: opMerge, collection: collection, id: id, data: Clone(fields)})
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	t.writes = append(t.writes, pendingWrite{op: opDelete, collection: collection, id: id})
	return nil
}

func (t *memTx) commit() error {
	s := t.store

	// validate creates against the committed state plus earlier writes in this tx
	exists := map[string]bool{}
	for _, w := range t.writes {
		key := w.collection + "/" + w.id
		present, seen := exists[key]
		if !seen {
			_, present = s.cols[w.collection][w.id]
		}
		switch w.op {
		case opCreate:
			if present {
				return fmt.Errorf("create %s: %w", key, ErrAlreadyExists)
			}
			exists[key] = true
		case opSet, opMerge:
			exists[key] = true
		case opDelete:
			exists[key] = false
		}
	}

	now := s.now()
	for _, w := range t.writes {
		col := s.cols[w.collection]
		if col == nil {
			col = map[string]*memRecord{}
			s.cols[w.collection] = col
		}
		switch w.op {
		case opCreate, opSet:
			rec, ok := col[w.id]
			if !ok {
				col[w.id] = &memRecord{data: w.data, version: 1, createdAt: now, updatedAt: now}
				continue
			}
			rec.data = w.data
			rec.version++
			rec.updatedAt = now
		case opMerge:
			rec, ok := col[w.id]
			if !ok {
				col[w.id] = &memRecord{data: w.data, version: 1, createdAt: now, updatedAt: now}
				continue
			}
			merged := Clone(rec.data)
			for k, v := range w.data {
				merged[k] = v
			}
			rec.data = merged
			rec.version++
			rec.updatedAt = now
		case opDelete:
			delete(col, w.id)
		}
	}
	return nil
}
