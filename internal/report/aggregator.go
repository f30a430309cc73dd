package report

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/debuglog"
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

// Observer is notified of every outcome accepted by an Aggregator.
type Observer func(reason DiscardReason, category ratelimit.Category, quantity int64)

// Aggregator collects discarded event outcomes for client reports.
// It is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	outcomes map[OutcomeKey]int64

	enabled  atomic.Bool
	observer atomic.Pointer[Observer]
}

// NewAggregator creates a new client report Aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{
		outcomes: make(map[OutcomeKey]int64),
	}
	a.enabled.Store(true)
	return a
}

// SetEnabled enables or disables outcome recording.
func (a *Aggregator) SetEnabled(enabled bool) {
	if a == nil {
		return
	}
	a.enabled.Store(enabled)
}

// IsEnabled returns whether outcome recording is enabled.
func (a *Aggregator) IsEnabled() bool {
	return a != nil && a.enabled.Load()
}

// SetObserver installs fn to be called for every recorded outcome. A nil fn
// removes the observer.
func (a *Aggregator) SetObserver(fn Observer) {
	if a == nil {
		return
	}
	if fn == nil {
		a.observer.Store(nil)
		return
	}
	a.observer.Store(&fn)
}

// Record records a discarded event outcome.
//
// CategoryAll only exists for rate limits and is never recorded.
func (a *Aggregator) Record(reason DiscardReason, category ratelimit.Category, quantity int64) {
	if !a.IsEnabled() || quantity <= 0 || category == ratelimit.CategoryAll {
		return
	}

	key := OutcomeKey{Reason: reason, Category: category}

	a.mu.Lock()
	a.outcomes[key] += quantity
	a.mu.Unlock()

	if fn := a.observer.Load(); fn != nil {
		(*fn)(reason, category, quantity)
	}
}

// RecordOne is a helper method to record one discarded event outcome.
func (a *Aggregator) RecordOne(reason DiscardReason, category ratelimit.Category) {
	a.Record(reason, category, 1)
}

// RecordItem records one outcome for the category of an envelope item.
// Client reports themselves are never counted.
func (a *Aggregator) RecordItem(reason DiscardReason, item *protocol.EnvelopeItem) {
	if item == nil || item.Header == nil || item.Header.Type == protocol.EnvelopeItemTypeClientReport {
		return
	}
	a.RecordOne(reason, item.Category())
}

// RecordForEnvelope records client report outcomes for all items in the envelope.
func (a *Aggregator) RecordForEnvelope(reason DiscardReason, envelope *protocol.Envelope) {
	if envelope == nil {
		return
	}
	for _, item := range envelope.Items {
		a.RecordItem(reason, item)
	}
}

// TakeReport atomically takes all accumulated outcomes and returns a ClientReport.
// It returns nil if there is nothing to report.
func (a *Aggregator) TakeReport() *ClientReport {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.outcomes) == 0 {
		return nil
	}

	events := make([]DiscardedEvent, 0, len(a.outcomes))
	for key, quantity := range a.outcomes {
		events = append(events, DiscardedEvent{
			Reason:   key.Reason,
			Category: key.Category,
			Quantity: quantity,
		})
	}
	// Start over with an empty map so buckets never accumulate.
	a.outcomes = make(map[OutcomeKey]int64)

	sort.Slice(events, func(i, j int) bool {
		if events[i].Reason != events[j].Reason {
			return events[i].Reason < events[j].Reason
		}
		return events[i].Category < events[j].Category
	})

	return &ClientReport{
		Timestamp:       time.Now().UTC(),
		DiscardedEvents: events,
	}
}

// RestoreItem puts the outcomes of a client report item that was never sent
// back into the Aggregator, so they go out with the next report. The observer
// is not notified again.
func (a *Aggregator) RestoreItem(item *protocol.EnvelopeItem) {
	if a == nil {
		return
	}
	r, err := clientReportFromItem(item)
	if err != nil {
		debuglog.Printf("failed to restore client report: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range r.DiscardedEvents {
		if e.Quantity <= 0 || e.Category == ratelimit.CategoryAll {
			continue
		}
		a.outcomes[OutcomeKey{Reason: e.Reason, Category: e.Category}] += e.Quantity
	}
}

// AttachToEnvelope adds a client report to the envelope if the Aggregator has outcomes available.
func (a *Aggregator) AttachToEnvelope(envelope *protocol.Envelope) {
	r := a.TakeReport()
	if r == nil {
		return
	}
	rItem, err := r.ToEnvelopeItem()
	if err != nil {
		debuglog.Printf("failed to serialize client report: %v, with err: %v", r, err)
		return
	}
	envelope.AddItem(rItem)
}
