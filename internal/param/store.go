package param

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	"go.uber.org/zap"

	"flightbus/internal/couchbase"
	"flightbus/internal/validator"
)

// Store persists parameter groups outside the process.
type Store interface {
	// Fetch returns the stored values of group, or ErrNotFound.
	Fetch(ctx context.Context, group string) (map[string]float32, error)

	// Save merges values into the stored group, creating it if needed.
	Save(ctx context.Context, group string, values map[string]float32) error

	// Delete removes the stored group. Deleting a missing group succeeds.
	Delete(ctx context.Context, group string) error
}

// Document is the stored form of one parameter group.
type Document struct {
	ID        string             `json:"id"`
	Group     string             `json:"group"`
	Values    map[string]float32 `json:"values"`
	UpdatedAt time.Time          `json:"updatedAt"`

	couchbase.Cas `json:"-"`
}

// DocumentKey returns the document key of group.
func DocumentKey(group string) string {
	return fmt.Sprintf("param::%s", group)
}

func newDocument(group string, values map[string]float32, now time.Time) Document {
	return Document{
		ID:        DocumentKey(group),
		Group:     group,
		Values:    values,
		UpdatedAt: now.UTC(),
	}
}

// merge overwrites the stored names present in values and keeps the rest.
func (d *Document) merge(values map[string]float32, now time.Time) {
	if d.Values == nil {
		d.Values = make(map[string]float32, len(values))
	}
	for name, v := range values {
		d.Values[name] = v
	}
	d.UpdatedAt = now.UTC()
}

// CouchbaseStore keeps one document per group in a Couchbase collection.
type CouchbaseStore struct {
	docs         *couchbase.Couchbase[Document]
	transactions *couchbase.Transactions
}

// NewCouchbaseStore creates a store over the given collection.
func NewCouchbaseStore(docs *couchbase.Couchbase[Document], transactions *couchbase.Transactions) (*CouchbaseStore, error) {
	s := CouchbaseStore{
		docs:         docs,
		transactions: transactions,
	}

	if err := validator.Validate("param store", s.docs, s.transactions); err != nil {
		return nil, fmt.Errorf("failed to validate param store dependencies: %w", err)
	}

	return &s, nil
}

// Fetch implements Store.Fetch.
func (s *CouchbaseStore) Fetch(ctx context.Context, group string) (map[string]float32, error) {
	doc, err := s.docs.Get(ctx, DocumentKey(group), nil)
	switch {
	case err == nil:
		return doc.Values, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return nil, fmt.Errorf("group %s: %w", group, ErrNotFound)
	default:
		return nil, fmt.Errorf("failed to fetch parameter group %s: %w", group, err)
	}
}

// Save implements Store.Save. Concurrent savers are serialised by the
// transaction, and a racing insert is retried as a replace.
func (s *CouchbaseStore) Save(_ context.Context, group string, values map[string]float32) error {
	key := DocumentKey(group)

	_, err := s.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		retry := true
		for retry {
			retry = false

			res, err := r.Get(s.docs, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				_, err := r.Insert(s.docs, key, newDocument(group, values, time.Now()))
				switch {
				case err == nil:
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					retry = true
					continue
				default:
					return fmt.Errorf("failed to insert parameter group: %w", err)
				}
			default:
				return fmt.Errorf("failed to get parameter group: %w", err)
			}

			var doc Document
			if err := res.Content(&doc); err != nil {
				return fmt.Errorf("failed to decode parameter group: %w", err)
			}
			doc.merge(values, time.Now())

			if _, err := r.Replace(res, doc); err != nil {
				return fmt.Errorf("failed to replace parameter group: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to save parameter group %s: %w", group, err)
	}

	return nil
}

// Delete implements Store.Delete.
func (s *CouchbaseStore) Delete(ctx context.Context, group string) error {
	err := s.docs.Remove(ctx, DocumentKey(group), nil)
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete parameter group %s: %w", group, err)
	}
	return nil
}

// Sync reconciles the table with store: groups the store knows overwrite
// the table, and groups it lacks are seeded from the table's values.
func Sync(ctx context.Context, store Store, t *Table) error {
	for _, group := range t.Groups() {
		values, err := store.Fetch(ctx, group)
		switch {
		case err == nil:
			t.Apply(Values{group: values})
		case errors.Is(err, ErrNotFound):
			current, err := t.Group(group)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, group, current); err != nil {
				return fmt.Errorf("failed to seed parameter group %s: %w", group, err)
			}
			t.logger.Info("parameter group seeded", zap.String("group", group))
		default:
			return fmt.Errorf("failed to sync parameter group %s: %w", group, err)
		}
	}

	return nil
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	groups Values
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(Values)}
}

// Fetch implements Store.Fetch.
func (m *MemoryStore) Fetch(_ context.Context, group string) (map[string]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", group, ErrNotFound)
	}

	out := make(map[string]float32, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out, nil
}

// Save implements Store.Save.
func (m *MemoryStore) Save(_ context.Context, group string, values map[string]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[group]
	if !ok {
		g = make(map[string]float32, len(values))
		m.groups[group] = g
	}
	for k, v := range values {
		g[k] = v
	}
	return nil
}

// Delete implements Store.Delete.
func (m *MemoryStore) Delete(_ context.Context, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, group)
	return nil
}
