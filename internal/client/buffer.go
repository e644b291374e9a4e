package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/envmon/internal/models"
)

// ReadingBuffer is a thread-safe bounded FIFO of reading payloads held
// while the broker is unreachable. Storage is a fixed ring; nothing is
// reallocated after construction.
type ReadingBuffer struct {
	ring       []*models.ReadingPayload
	head       int // index of the oldest payload
	count      int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64     `json:"total_pushed"`
	TotalDropped  int64     `json:"total_dropped"`
	HighWaterMark int       `json:"high_water_mark"`
	LastPushTime  time.Time `json:"last_push_time,omitempty"`
	LastDropTime  time.Time `json:"last_drop_time,omitempty"`
}

// NewReadingBuffer creates a buffer holding at most capacity payloads.
// When full, dropOldest evicts the oldest payload; otherwise the new one is
// rejected.
func NewReadingBuffer(capacity int, dropOldest bool) *ReadingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReadingBuffer{
		ring:       make([]*models.ReadingPayload, capacity),
		dropOldest: dropOldest,
	}
}

func (rb *ReadingBuffer) slot(i int) int {
	return (rb.head + i) % len(rb.ring)
}

// Push appends a payload. It returns false when the buffer is full and
// the payload was rejected.
func (rb *ReadingBuffer) Push(reading *models.ReadingPayload) bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	now := time.Now()
	if rb.count == len(rb.ring) {
		rb.stats.TotalDropped++
		rb.stats.LastDropTime = now
		if !rb.dropOldest {
			return false
		}
		rb.ring[rb.head] = nil
		rb.head = rb.slot(1)
		rb.count--
	}

	rb.ring[rb.slot(rb.count)] = reading
	rb.count++
	rb.stats.TotalPushed++
	rb.stats.LastPushTime = now
	rb.stats.HighWaterMark = max(rb.stats.HighWaterMark, rb.count)
	return true
}

// PopBatch removes and returns up to n payloads, oldest first
func (rb *ReadingBuffer) PopBatch(n int) []*models.ReadingPayload {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	out := rb.copyOut(n)
	for range out {
		rb.ring[rb.head] = nil
		rb.head = rb.slot(1)
		rb.count--
	}
	return out
}

// Peek returns up to n payloads, oldest first, without removing them
func (rb *ReadingBuffer) Peek(n int) []*models.ReadingPayload {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.copyOut(n)
}

func (rb *ReadingBuffer) copyOut(n int) []*models.ReadingPayload {
	n = min(n, rb.count)
	if n <= 0 {
		return nil
	}
	out := make([]*models.ReadingPayload, n)
	for i := range out {
		out[i] = rb.ring[rb.slot(i)]
	}
	return out
}

// Size returns the current number of payloads in the buffer
func (rb *ReadingBuffer) Size() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count
}

// IsFull returns true if buffer is at capacity
func (rb *ReadingBuffer) IsFull() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count == len(rb.ring)
}

// IsEmpty returns true if buffer has no payloads
func (rb *ReadingBuffer) IsEmpty() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count == 0
}

// Clear removes all payloads and resets counters
func (rb *ReadingBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	clear(rb.ring)
	rb.head = 0
	rb.count = 0
	rb.stats = BufferStats{}
}

// Capacity returns the maximum number of payloads held
func (rb *ReadingBuffer) Capacity() int {
	return len(rb.ring)
}

// Stats returns a copy of current buffer statistics
func (rb *ReadingBuffer) Stats() BufferStats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.stats
}

// String returns a human-readable representation of buffer state
func (rb *ReadingBuffer) String() string {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	mode := "drop-newest"
	if rb.dropOldest {
		mode = "drop-oldest"
	}

	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		rb.count,
		len(rb.ring),
		rb.stats.TotalDropped,
		mode,
	)
}
