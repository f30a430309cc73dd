package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

// MockTransport records envelopes instead of sending them. Rate limits are
// set per category with SetRateLimited.
type MockTransport struct {
	sentEnvelopes []*protocol.Envelope
	rateLimited   map[ratelimit.Category]bool
	sendError     error
	mu            sync.Mutex
	flushCount    int64
	closed        atomic.Bool
}

func (m *MockTransport) SendEnvelope(envelope *protocol.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendError != nil {
		return m.sendError
	}

	m.sentEnvelopes = append(m.sentEnvelopes, envelope)
	return nil
}

func (m *MockTransport) IsRateLimited(category ratelimit.Category) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rateLimited[category] || m.rateLimited[ratelimit.CategoryAll]
}

func (m *MockTransport) Flush(_ time.Duration) bool {
	atomic.AddInt64(&m.flushCount, 1)
	return true
}

func (m *MockTransport) FlushWithContext(_ context.Context) bool {
	atomic.AddInt64(&m.flushCount, 1)
	return true
}

func (m *MockTransport) Close() {
	m.closed.Store(true)
}

func (m *MockTransport) GetSentEnvelopes() []*protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*protocol.Envelope, len(m.sentEnvelopes))
	copy(result, m.sentEnvelopes)
	return result
}

// GetSentItemTypes returns the item types of every sent envelope, in order.
func (m *MockTransport) GetSentItemTypes() []protocol.EnvelopeItemType {
	var types []protocol.EnvelopeItemType
	for _, envelope := range m.GetSentEnvelopes() {
		for _, item := range envelope.Items {
			types = append(types, item.Header.Type)
		}
	}
	return types
}

func (m *MockTransport) SetRateLimited(category ratelimit.Category, limited bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rateLimited == nil {
		m.rateLimited = make(map[ratelimit.Category]bool)
	}
	m.rateLimited[category] = limited
}

func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
}

func (m *MockTransport) GetFlushCount() int64 {
	return atomic.LoadInt64(&m.flushCount)
}

func (m *MockTransport) IsClosed() bool {
	return m.closed.Load()
}
