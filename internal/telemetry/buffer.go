package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

const defaultCapacity = 100

// RingBuffer is a thread-safe ring buffer holding the pending items of a
// single data category.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	tail     int
	size     int
	capacity int

	category       ratelimit.Category
	priority       ratelimit.Priority
	overflowPolicy OverflowPolicy

	offered   atomic.Int64
	dropped   atomic.Int64
	onDropped func(item T, reason DropReason)
}

// NewRingBuffer returns an empty buffer for category. A non-positive capacity
// selects the default of 100 items.
func NewRingBuffer[T any](category ratelimit.Category, capacity int, overflowPolicy OverflowPolicy) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &RingBuffer[T]{
		items:          make([]T, capacity),
		capacity:       capacity,
		category:       category,
		priority:       category.Priority(),
		overflowPolicy: overflowPolicy,
	}
}

// SetDroppedCallback registers callback to be invoked for every evicted item.
// The callback runs with the buffer lock held and must not call back into
// the buffer.
func (b *RingBuffer[T]) SetDroppedCallback(callback func(item T, reason DropReason)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDropped = callback
}

// Offer adds an item to the buffer, returns false if dropped due to overflow.
func (b *RingBuffer[T]) Offer(item T) bool {
	b.offered.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.items[b.tail] = item
		b.tail = (b.tail + 1) % b.capacity
		b.size++
		return true
	}

	switch b.overflowPolicy {
	case OverflowPolicyDropOldest:
		oldItem := b.items[b.head]
		b.items[b.head] = item
		b.head = (b.head + 1) % b.capacity
		b.tail = (b.tail + 1) % b.capacity
		b.drop(oldItem, DropReasonOldest)
		return true
	case OverflowPolicyDropNewest:
		b.drop(item, DropReasonNewest)
		return false
	default:
		b.drop(item, DropReasonUnknown)
		return false
	}
}

func (b *RingBuffer[T]) drop(item T, reason DropReason) {
	b.dropped.Add(1)
	if b.onDropped != nil {
		b.onDropped(item, reason)
	}
}

// PollBatch removes and returns up to maxItems, oldest first. It returns nil
// when the buffer is empty.
func (b *RingBuffer[T]) PollBatch(maxItems int) []T {
	if maxItems <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.take(min(maxItems, b.size))
}

func (b *RingBuffer[T]) take(n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.size--
	}
	return result
}

func (b *RingBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *RingBuffer[T]) Category() ratelimit.Category {
	return b.category
}

func (b *RingBuffer[T]) Priority() ratelimit.Priority {
	return b.priority
}

func (b *RingBuffer[T]) OfferedCount() int64 {
	return b.offered.Load()
}

func (b *RingBuffer[T]) DroppedCount() int64 {
	return b.dropped.Load()
}

// GetMetrics returns a point-in-time snapshot of the buffer counters.
func (b *RingBuffer[T]) GetMetrics() BufferMetrics {
	b.mu.RLock()
	size := b.size
	b.mu.RUnlock()

	offered := b.OfferedCount()
	dropped := b.DroppedCount()
	var dropRate float64
	if offered > 0 {
		dropRate = float64(dropped) / float64(offered)
	}

	return BufferMetrics{
		Category:     b.category,
		Priority:     b.priority,
		Capacity:     b.capacity,
		Size:         size,
		Utilization:  float64(size) / float64(b.capacity),
		OfferedCount: offered,
		DroppedCount: dropped,
		DropRate:     dropRate,
		LastUpdated:  time.Now(),
	}
}

type BufferMetrics struct {
	Category     ratelimit.Category `json:"category"`
	Priority     ratelimit.Priority `json:"priority"`
	Capacity     int                `json:"capacity"`
	Size         int                `json:"size"`
	Utilization  float64            `json:"utilization"`
	OfferedCount int64              `json:"offered_count"`
	DroppedCount int64              `json:"dropped_count"`
	DropRate     float64            `json:"drop_rate"`
	LastUpdated  time.Time          `json:"last_updated"`
}
