package mlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"flightbus/internal/couchbase"
)

// Document is the stored form of one record.
type Document struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	Seq       uint64    `json:"seq"`
	MsgID     uint8     `json:"msgId"`
	Msg       string    `json:"msg"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload"`

	couchbase.Cas `json:"-"`
}

// DocumentKey returns the key of record seq in session.
func DocumentKey(session string, seq uint64) string {
	return fmt.Sprintf("mlog::%s::%d", session, seq)
}

// NewDocument returns the stored form of rec.
func NewDocument(rec Record) Document {
	return Document{
		ID:        DocumentKey(rec.Session, rec.Seq),
		Session:   rec.Session,
		Seq:       rec.Seq,
		MsgID:     uint8(rec.ID),
		Msg:       rec.ID.String(),
		Timestamp: rec.Timestamp.UTC(),
		Payload:   rec.Payload,
	}
}

// Record returns the record d was stored from.
func (d Document) Record() Record {
	return Record{
		Session:   d.Session,
		Seq:       d.Seq,
		ID:        MsgID(d.MsgID),
		Timestamp: d.Timestamp,
		Payload:   d.Payload,
	}
}

// CouchbaseSink persists every record as its own document.
type CouchbaseSink struct {
	docs *couchbase.Couchbase[Document]
}

// NewCouchbaseSink creates a sink over the given collection.
func NewCouchbaseSink(docs *couchbase.Couchbase[Document]) (*CouchbaseSink, error) {
	if docs == nil {
		return nil, fmt.Errorf("failed to create couchbase sink: nil collection")
	}
	return &CouchbaseSink{docs: docs}, nil
}

// Write implements Sink.Write. Rewriting a record already stored is not an
// error.
func (s *CouchbaseSink) Write(ctx context.Context, rec Record) error {
	doc := NewDocument(rec)
	key := doc.ID

	if err := s.docs.Insert(ctx, key, doc, nil); err != nil && !errors.Is(err, gocb.ErrDocumentExists) {
		return fmt.Errorf("failed to insert telemetry record %s: %w", key, err)
	}

	return nil
}

// Session implements SessionStore.
func (s *CouchbaseSink) Session(ctx context.Context, session string) ([]Record, error) {
	docs, err := s.docs.Query(ctx,
		fmt.Sprintf("SELECT t.* FROM %s AS t WHERE t.session = $session ORDER BY t.seq", s.docs.Keyspace()),
		&gocb.QueryOptions{
			NamedParameters: map[string]any{"session": session},
			ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry session %s: %w", session, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("session %s: %w", session, ErrSessionNotFound)
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Record())
	}
	return records, nil
}

// DeleteSession implements SessionStore.
func (s *CouchbaseSink) DeleteSession(ctx context.Context, session string) (int, error) {
	records, err := s.Session(ctx, session)
	if errors.Is(err, ErrSessionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		if err := s.docs.Remove(ctx, DocumentKey(rec.Session, rec.Seq), nil); err != nil {
			return 0, fmt.Errorf("failed to delete telemetry session %s: %w", session, err)
		}
	}
	return len(records), nil
}
