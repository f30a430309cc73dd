package report

import (
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

// ClientReportRecorder is used by components that need to record lost/discarded events.
type ClientReportRecorder interface {
	Record(reason DiscardReason, category ratelimit.Category, quantity int64)
	RecordOne(reason DiscardReason, category ratelimit.Category)
	RecordItem(reason DiscardReason, item *protocol.EnvelopeItem)
	RecordForEnvelope(reason DiscardReason, envelope *protocol.Envelope)
}

// ClientReportProvider is used by the single component responsible for sending client reports.
type ClientReportProvider interface {
	TakeReport() *ClientReport
	AttachToEnvelope(envelope *protocol.Envelope)
	RestoreItem(item *protocol.EnvelopeItem)
}

var (
	_ ClientReportRecorder = (*Aggregator)(nil)
	_ ClientReportProvider = (*Aggregator)(nil)
)
