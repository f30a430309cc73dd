package report

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

var errNotClientReport = errors.New("not a client report item")

// OutcomeKey uniquely identifies an outcome bucket for aggregation.
type OutcomeKey struct {
	Reason   DiscardReason
	Category ratelimit.Category
}

// DiscardedEvent represents a single discard event outcome for the OutcomeKey.
type DiscardedEvent struct {
	Reason   DiscardReason      `json:"reason"`
	Category ratelimit.Category `json:"category"`
	Quantity int64              `json:"quantity"`
}

// ClientReport is the payload of a client_report envelope item.
type ClientReport struct {
	Timestamp       time.Time        `json:"timestamp"`
	DiscardedEvents []DiscardedEvent `json:"discarded_events"`
}

// ToEnvelopeItem serializes the report into a client_report envelope item.
func (r *ClientReport) ToEnvelopeItem() (*protocol.EnvelopeItem, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeClientReport, payload), nil
}

// clientReportFromItem decodes the payload of a client_report envelope item.
func clientReportFromItem(item *protocol.EnvelopeItem) (*ClientReport, error) {
	if item == nil || item.Header == nil || item.Header.Type != protocol.EnvelopeItemTypeClientReport {
		return nil, errNotClientReport
	}
	var r ClientReport
	if err := json.Unmarshal(item.Payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
