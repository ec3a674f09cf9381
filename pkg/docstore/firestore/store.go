// Package firestore backs docstore with Cloud Firestore. Collections and ids
// map one to one onto Firestore collections and document ids.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type Store struct {
	log       *slog.Logger
	client    *firestore.Client
	projectID string
}

// New connects to Firestore. An empty credentialsFile falls back to
// Application Default Credentials.
func New(ctx context.Context, log *slog.Logger, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	log.Info("firestore connected", "project", projectID)
	return &Store{log: log, client: client, projectID: projectID}, nil
}

func NewWithClient(log *slog.Logger, client *firestore.Client) *Store {
	return &Store{log: log, client: client}
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return fromSnapshot(collection, snap), nil
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	snaps, err := s.query(collection, filters).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return fromSnapshots(collection, snaps), nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &fsTx{store: s, tx: tx})
	})
	return mapError(err)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) query(collection string, filters []docstore.Filter) firestore.Query {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}
	return q
}

type fsTx struct {
	store *Store
	tx    *firestore.Transaction
	wrote bool
}

func (t *fsTx) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if t.wrote {
		return nil, docstore.ErrReadAfterWrite
	}
	snap, err := t.tx.Get(t.store.client.Collection(collection).Doc(id))
	if err != nil {
		return nil, mapError(err)
	}
	return fromSnapshot(collection, snap), nil
}

func (t *fsTx) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	if t.wrote {
		return nil, docstore.ErrReadAfterWrite
	}
	snaps, err := t.tx.Documents(t.store.query(collection, filters)).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return fromSnapshots(collection, snaps), nil
}

func (t *fsTx) Create(collection, id string, data map[string]any) error {
	t.wrote = true
	return t.tx.Create(t.store.client.Collection(collection).Doc(id), data)
}

func (t *fsTx) Set(collection, id string, data map[string]any) error {
	t.wrote = true
	return t.tx.Set(t.store.client.Collection(collection).Doc(id), data)
}

// Merge replaces the listed top-level fields wholesale, nested maps included.
func (t *fsTx) Merge(collection, id string, fields map[string]any) error {
	t.wrote = true
	paths := make([]firestore.FieldPath, 0, len(fields))
	for k := range fields {
		paths = append(paths, firestore.FieldPath{k})
	}
	return t.tx.Set(t.store.client.Collection(collection).Doc(id), fields, firestore.Merge(paths...))
}

func (t *fsTx) Delete(collection, id string) error {
	t.wrote = true
	return t.tx.Delete(t.store.client.Collection(collection).Doc(id))
}

func fromSnapshot(collection string, snap *firestore.DocumentSnapshot) *docstore.Document {
	return &docstore.Document{
		Collection: collection,
		ID:         snap.Ref.ID,
		Data:       snap.Data(),
		Version:    snap.UpdateTime.UnixNano(),
		CreatedAt:  snap.CreateTime.UTC(),
		UpdatedAt:  snap.UpdateTime.UTC(),
	}
}

func fromSnapshots(collection string, snaps []*firestore.DocumentSnapshot) []*docstore.Document {
	out := make([]*docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, fromSnapshot(collection, snap))
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	// errors raised by the transaction callback pass through untouched
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrAlreadyExists) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	}
	return err
}
