package telemetry

import (
	"sort"
	"sync"

	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

// Buffers keeps one RingBuffer per data category, created on first use.
type Buffers[T any] struct {
	mu        sync.Mutex
	buffers   map[ratelimit.Category]*RingBuffer[T]
	capacity  int
	policy    OverflowPolicy
	onDropped func(category ratelimit.Category, item T, reason DropReason)
}

// NewBuffers returns an empty set of category buffers. Every buffer created
// gets the given capacity and overflow policy. onDropped may be nil.
func NewBuffers[T any](capacity int, policy OverflowPolicy, onDropped func(ratelimit.Category, T, DropReason)) *Buffers[T] {
	return &Buffers[T]{
		buffers:   make(map[ratelimit.Category]*RingBuffer[T]),
		capacity:  capacity,
		policy:    policy,
		onDropped: onDropped,
	}
}

// Add offers item to the buffer of category. It returns false when the item
// was rejected, either because category is CategoryAll, which never labels a
// payload, or because the buffer was full under OverflowPolicyDropNewest.
func (b *Buffers[T]) Add(category ratelimit.Category, item T) bool {
	if category == ratelimit.CategoryAll {
		return false
	}
	return b.bufferFor(category).Offer(item)
}

func (b *Buffers[T]) bufferFor(category ratelimit.Category) *RingBuffer[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[category]
	if !ok {
		buf = NewRingBuffer[T](category, b.capacity, b.policy)
		if b.onDropped != nil {
			onDropped := b.onDropped
			buf.SetDroppedCallback(func(item T, reason DropReason) {
				onDropped(category, item, reason)
			})
		}
		b.buffers[category] = buf
	}
	return buf
}

// Len returns the number of buffered items across all categories.
func (b *Buffers[T]) Len() int {
	n := 0
	for _, buf := range b.snapshot() {
		n += buf.Size()
	}
	return n
}

// PollBatch removes and returns up to maxItems items, ordered by category
// priority, most important first, and by age within a category. It returns
// nil once every buffer is empty.
func (b *Buffers[T]) PollBatch(maxItems int) []T {
	var items []T
	for _, buf := range b.snapshot() {
		if len(items) >= maxItems {
			break
		}
		items = append(items, buf.PollBatch(maxItems-len(items))...)
	}
	return items
}

// Metrics returns the metrics of every buffer in priority order.
func (b *Buffers[T]) Metrics() []BufferMetrics {
	bufs := b.snapshot()
	metrics := make([]BufferMetrics, 0, len(bufs))
	for _, buf := range bufs {
		metrics = append(metrics, buf.GetMetrics())
	}
	return metrics
}

func (b *Buffers[T]) snapshot() []*RingBuffer[T] {
	b.mu.Lock()
	bufs := make([]*RingBuffer[T], 0, len(b.buffers))
	for _, buf := range b.buffers {
		bufs = append(bufs, buf)
	}
	b.mu.Unlock()

	sort.Slice(bufs, func(i, j int) bool {
		if bufs[i].Priority() != bufs[j].Priority() {
			return bufs[i].Priority() < bufs[j].Priority()
		}
		return bufs[i].Category() < bufs[j].Category()
	})
	return bufs
}
