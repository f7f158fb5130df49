// Package fifo provides the queue that holds decoded records until they are
// pulled by a consumer.
package fifo

// Queue is an unbounded first-in-first-out queue backed by a ring buffer that
// grows by doubling. It is not safe for concurrent access.
//
// Popped slots are zeroed so that records handed to the consumer are not kept
// alive by the queue.
type Queue[T any] struct {
	buf       []T
	head, len int
}

// minCapacity is the ring size allocated on first push.
const minCapacity = 16

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return q.len
}

// PushBack adds t to the end of the queue.
func (q *Queue[T]) PushBack(t T) {
	if q.len == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.len)%len(q.buf)] = t
	q.len++
}

// PopFront removes and returns the head of the queue. ok is false if the
// queue is empty.
func (q *Queue[T]) PopFront() (t T, ok bool) {
	if q.len == 0 {
		return t, false
	}
	var zero T
	t = q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.len--
	if q.len == 0 {
		q.head = 0
	}
	return t, true
}

// PeekFront returns the head of the queue without removing it.
func (q *Queue[T]) PeekFront() (t T, ok bool) {
	if q.len == 0 {
		return t, false
	}
	return q.buf[q.head], true
}

// Reset empties the queue and releases its storage.
func (q *Queue[T]) Reset() {
	q.buf = nil
	q.head = 0
	q.len = 0
}

func (q *Queue[T]) grow() {
	size := 2 * len(q.buf)
	if size < minCapacity {
		size = minCapacity
	}
	buf := make([]T, size)
	// Unwrap the ring so that the head lands at index 0.
	n := copy(buf, q.buf[q.head:])
	copy(buf[n:], q.buf[:q.head])
	q.buf = buf
	q.head = 0
}
