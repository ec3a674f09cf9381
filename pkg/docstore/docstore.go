// Package docstore is a minimal document-store abstraction: named collections
// of documents addressed by id, each document a field map. Every mutation goes
// through RunTransaction, which gives read-your-reads isolation over the
// documents touched and commits buffered writes atomically.
package docstore

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	ErrNotFound       = errors.New("docstore: document not found")
	ErrAlreadyExists  = errors.New("docstore: document already exists")
	ErrReadAfterWrite = errors.New("docstore: read after write in transaction")
	ErrClosed         = errors.New("docstore: store closed")
)

// Document is one stored record. Version increases on every committed write.
type Document struct {
	Collection string
	ID         string
	Data       map[string]any
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

type Reader interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error)
}

// Tx is the transaction capability. All reads must happen before the first
// write; writes are applied on commit only.
type Tx interface {
	Reader
	// Create fails the commit with ErrAlreadyExists when the id is taken.
	Create(collection, id string, data map[string]any) error
	Set(collection, id string, data map[string]any) error
	// Merge overwrites only the given top-level fields and keeps every other
	// field of the document. A missing document is created from fields.
	Merge(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

type Store interface {
	Reader
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// SortByCreated orders documents newest first, falling back to id.
func SortByCreated(docs []*Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, _ := AsTime(docs[i].Data[field])
		tj, _ := AsTime(docs[j].Data[field])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return docs[i].ID < docs[j].ID
	})
}
