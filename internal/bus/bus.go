// Package bus implements the in-process topic hub that control stages use to
// exchange fixed-size records.
//
// A topic owns exactly one record of a fixed Go type and a monotonic version
// counter. Publishers replace the record and bump the version; subscribers
// hold a Node, a private cursor remembering the last version they copied.
// Readers only ever see the freshest record, never a history, and never a
// mixture of two publishes.
package bus

import "errors"

var (
	// ErrSizeMismatch is returned when a topic is advertised or subscribed with
	// a record whose size differs from the one the topic was created with.
	ErrSizeMismatch = errors.New("topic payload size mismatch")
	// ErrTypeMismatch is returned when the record sizes agree but the Go types
	// do not.
	ErrTypeMismatch = errors.New("topic payload type mismatch")
	// ErrNotFound is returned when subscribing to a topic nobody advertised.
	ErrNotFound = errors.New("topic not advertised")
	// ErrStale is returned by Copy and Read before the first publish.
	ErrStale = errors.New("topic has no data yet")
	// ErrInvalidName is returned for empty topic names.
	ErrInvalidName = errors.New("invalid topic name")
)
