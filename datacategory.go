package sentry

import (
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
)

// DataCategory classifies the payloads sent to Sentry for rate limiting and
// outcome accounting. Its Label is the string used on the wire.
type DataCategory = ratelimit.Category

// Data categories in ordinal order. The ordinals are stable.
const (
	DataCategoryAll          DataCategory = ratelimit.CategoryAll
	DataCategoryDefault      DataCategory = ratelimit.CategoryDefault
	DataCategoryError        DataCategory = ratelimit.CategoryError
	DataCategorySession      DataCategory = ratelimit.CategorySession
	DataCategoryTransaction  DataCategory = ratelimit.CategoryTransaction
	DataCategoryAttachment   DataCategory = ratelimit.CategoryAttachment
	DataCategoryUserFeedback DataCategory = ratelimit.CategoryUserFeedback
	DataCategoryUnknown      DataCategory = ratelimit.CategoryUnknown
)

// DataCategories returns every data category in ordinal order.
func DataCategories() []DataCategory {
	return ratelimit.Categories()
}

// ParseDataCategory returns the category for a wire label. Unrecognized
// labels map to DataCategoryUnknown.
func ParseDataCategory(label string) DataCategory {
	return ratelimit.ParseCategory(label)
}

// DiscardReason explains why the SDK dropped a payload.
type DiscardReason = report.DiscardReason

const (
	DiscardReasonQueueOverflow    DiscardReason = report.ReasonQueueOverflow
	DiscardReasonCacheOverflow    DiscardReason = report.ReasonCacheOverflow
	DiscardReasonBufferOverflow   DiscardReason = report.ReasonBufferOverflow
	DiscardReasonRateLimitBackoff DiscardReason = report.ReasonRateLimitBackoff
	DiscardReasonNetworkError     DiscardReason = report.ReasonNetworkError
	DiscardReasonSendError        DiscardReason = report.ReasonSendError
	DiscardReasonSampleRate       DiscardReason = report.ReasonSampleRate
	DiscardReasonBeforeSend       DiscardReason = report.ReasonBeforeSend
	DiscardReasonEventProcessor   DiscardReason = report.ReasonEventProcessor
	DiscardReasonInsufficientData DiscardReason = report.ReasonInsufficientData
	DiscardReasonInternalError    DiscardReason = report.ReasonInternalError
)

// Envelope is a batch of items sent to Sentry in a single request.
type Envelope = protocol.Envelope

// EnvelopeItem is a single payload inside an Envelope.
type EnvelopeItem = protocol.EnvelopeItem

// EnvelopeItemType identifies the payload of an EnvelopeItem.
type EnvelopeItemType = protocol.EnvelopeItemType

const (
	EnvelopeItemTypeEvent        EnvelopeItemType = protocol.EnvelopeItemTypeEvent
	EnvelopeItemTypeTransaction  EnvelopeItemType = protocol.EnvelopeItemTypeTransaction
	EnvelopeItemTypeSession      EnvelopeItemType = protocol.EnvelopeItemTypeSession
	EnvelopeItemTypeAttachment   EnvelopeItemType = protocol.EnvelopeItemTypeAttachment
	EnvelopeItemTypeUserReport   EnvelopeItemType = protocol.EnvelopeItemTypeUserReport
	EnvelopeItemTypeClientReport EnvelopeItemType = protocol.EnvelopeItemTypeClientReport
)

// NewEnvelopeItem returns an item of the given type carrying payload.
func NewEnvelopeItem(itemType EnvelopeItemType, payload []byte) *EnvelopeItem {
	return protocol.NewEnvelopeItem(itemType, payload)
}

// NewAttachmentItem returns an attachment item.
func NewAttachmentItem(filename, contentType string, payload []byte) *EnvelopeItem {
	return protocol.NewAttachmentItem(filename, contentType, payload)
}
