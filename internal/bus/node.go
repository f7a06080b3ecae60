package bus

import "fmt"

// Node is one consumer's cursor into a topic. A node belongs to a single
// module and is not safe for concurrent use; publishes on the topic may run
// concurrently with it.
type Node[T any] struct {
	topic  *Topic[T]
	id     uint64
	last   uint64
	closed bool
}

// Poll reports whether the topic was published since the last Copy. It does
// not move the cursor.
func (n *Node[T]) Poll() bool {
	return n.topic.Version() > n.last
}

// Copy stores the latest record into out and moves the cursor to its
// version. Intermediate versions a slow consumer missed are skipped.
// It returns ErrStale, leaving out untouched, before the first publish.
func (n *Node[T]) Copy(out *T) error {
	s := n.topic.acquire()
	if s.version == 0 {
		n.topic.release(s)
		return fmt.Errorf("failed to copy %s: %w", n.topic.name, ErrStale)
	}

	*out = s.value
	n.last = s.version
	n.topic.release(s)
	return nil
}

// Version returns the last version this node copied.
func (n *Node[T]) Version() uint64 {
	return n.last
}

// Topic returns the hub the node reads from.
func (n *Node[T]) Topic() *Topic[T] {
	return n.topic
}

// Close detaches the node's callback, if any. The cursor stays usable.
func (n *Node[T]) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.topic.removeObserver(n.id)
	n.topic.nodes.Add(-1)
}
