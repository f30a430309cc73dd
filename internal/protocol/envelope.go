package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
)

// SdkInfo identifies the SDK that produced an envelope.
type SdkInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Envelope represents a Sentry envelope containing headers and items.
type Envelope struct {
	Header *EnvelopeHeader `json:"-"`
	Items  []*EnvelopeItem `json:"-"`
}

// EnvelopeHeader represents the header of a Sentry envelope.
type EnvelopeHeader struct {
	// EventID is the unique identifier for this event
	EventID string `json:"event_id,omitempty"`

	// SentAt is the timestamp when the event was sent from the SDK as string in RFC 3339 format.
	// Used for clock drift correction of the event timestamp. The time zone must be UTC.
	SentAt time.Time `json:"sent_at,omitempty"`

	// Dsn can be used for self-authenticated envelopes.
	// This means that the envelope has all the information necessary to be sent to sentry.
	// In this case the full DSN must be stored in this key.
	Dsn string `json:"dsn,omitempty"`

	// Sdk carries the same payload as the sdk interface in the event payload but can be carried for all events.
	Sdk *SdkInfo `json:"sdk,omitempty"`
}

// EnvelopeItemType represents the type of envelope item.
type EnvelopeItemType string

// Constants for envelope item types as defined in the Sentry documentation.
const (
	EnvelopeItemTypeEvent        EnvelopeItemType = "event"
	EnvelopeItemTypeTransaction  EnvelopeItemType = "transaction"
	EnvelopeItemTypeSession      EnvelopeItemType = "session"
	EnvelopeItemTypeAttachment   EnvelopeItemType = "attachment"
	EnvelopeItemTypeUserReport   EnvelopeItemType = "user_report"
	EnvelopeItemTypeClientReport EnvelopeItemType = "client_report"
)

// Category maps an envelope item type to its rate limiting category.
// Item types without a dedicated category fall into CategoryDefault.
func (t EnvelopeItemType) Category() ratelimit.Category {
	switch t {
	case EnvelopeItemTypeEvent:
		return ratelimit.CategoryError
	case EnvelopeItemTypeSession:
		return ratelimit.CategorySession
	case EnvelopeItemTypeTransaction:
		return ratelimit.CategoryTransaction
	case EnvelopeItemTypeAttachment:
		return ratelimit.CategoryAttachment
	case EnvelopeItemTypeUserReport:
		return ratelimit.CategoryUserFeedback
	default:
		return ratelimit.CategoryDefault
	}
}

// EnvelopeItemHeader represents the header of an envelope item.
type EnvelopeItemHeader struct {
	// Type specifies the type of this Item and its contents.
	// Based on the Item type, more headers may be required.
	Type EnvelopeItemType `json:"type"`

	// Length is the length of the payload in bytes.
	// If no length is specified, the payload implicitly goes to the next newline.
	// For payloads containing newline characters, the length must be specified.
	Length *int `json:"length,omitempty"`

	// Filename is the name of the attachment file (used for attachments)
	Filename string `json:"filename,omitempty"`

	// ContentType is the MIME type of the item payload (used for attachments and some other item types)
	ContentType string `json:"content_type,omitempty"`
}

// EnvelopeItem represents a single item within an envelope.
type EnvelopeItem struct {
	Header  *EnvelopeItemHeader `json:"-"`
	Payload []byte              `json:"-"`
}

// Category returns the rate limiting category of the item.
func (i *EnvelopeItem) Category() ratelimit.Category {
	if i == nil || i.Header == nil {
		return ratelimit.CategoryDefault
	}
	return i.Header.Type.Category()
}

// NewEnvelope creates a new envelope with the given header.
func NewEnvelope(header *EnvelopeHeader) *Envelope {
	return &Envelope{
		Header: header,
		Items:  make([]*EnvelopeItem, 0),
	}
}

// AddItem adds an item to the envelope.
func (e *Envelope) AddItem(item *EnvelopeItem) {
	e.Items = append(e.Items, item)
}

// Filter returns a copy of the envelope holding only the items for which keep
// returns true. Items for which keep returns false are passed to dropped, if
// non-nil. The header is shared with the original envelope.
func (e *Envelope) Filter(keep func(*EnvelopeItem) bool, dropped func(*EnvelopeItem)) *Envelope {
	filtered := NewEnvelope(e.Header)
	for _, item := range e.Items {
		if item == nil {
			continue
		}
		if keep(item) {
			filtered.AddItem(item)
		} else if dropped != nil {
			dropped(item)
		}
	}
	return filtered
}

// Serialize serializes the envelope to the Sentry envelope format.
//
// Format: Headers "\n" { Item } [ "\n" ]
// Item: Headers "\n" Payload "\n".
func (e *Envelope) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	header := e.Header
	if header == nil {
		header = &EnvelopeHeader{}
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope header: %w", err)
	}

	buf.Write(headerBytes)
	buf.WriteByte('\n')

	for _, item := range e.Items {
		if err := e.writeItem(&buf, item); err != nil {
			return nil, fmt.Errorf("failed to write envelope item: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// WriteTo writes the envelope to the given writer in the Sentry envelope format.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	data, err := e.Serialize()
	if err != nil {
		return 0, err
	}

	n, err := w.Write(data)
	return int64(n), err
}

// writeItem writes a single envelope item to the buffer.
func (e *Envelope) writeItem(buf *bytes.Buffer, item *EnvelopeItem) error {
	if item == nil || item.Header == nil {
		return fmt.Errorf("envelope item without header")
	}
	headerBytes, err := json.Marshal(item.Header)
	if err != nil {
		return fmt.Errorf("failed to marshal item header: %w", err)
	}

	buf.Write(headerBytes)
	buf.WriteByte('\n')
	buf.Write(item.Payload)
	buf.WriteByte('\n')

	return nil
}

// Size returns the total size of the envelope when serialized.
func (e *Envelope) Size() (int, error) {
	data, err := e.Serialize()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// MarshalJSON converts the EnvelopeHeader to JSON, omitting a zero SentAt.
func (h *EnvelopeHeader) MarshalJSON() ([]byte, error) {
	type header EnvelopeHeader
	if h.SentAt.IsZero() {
		return json.Marshal(struct {
			header
			SentAt *time.Time `json:"sent_at,omitempty"`
		}{header: header(*h)})
	}
	return json.Marshal((*header)(h))
}

// NewEnvelopeItem creates a new envelope item with the specified type and payload.
func NewEnvelopeItem(itemType EnvelopeItemType, payload []byte) *EnvelopeItem {
	length := len(payload)
	return &EnvelopeItem{
		Header: &EnvelopeItemHeader{
			Type:   itemType,
			Length: &length,
		},
		Payload: payload,
	}
}

// NewAttachmentItem creates a new envelope item for an attachment.
// Parameters: filename, contentType, payload.
func NewAttachmentItem(filename, contentType string, payload []byte) *EnvelopeItem {
	length := len(payload)
	return &EnvelopeItem{
		Header: &EnvelopeItemHeader{
			Type:        EnvelopeItemTypeAttachment,
			Length:      &length,
			ContentType: contentType,
			Filename:    filename,
		},
		Payload: payload,
	}
}

// NewEnvelopeFromItems creates an envelope carrying the given items. A fresh
// event id is generated for the header.
func NewEnvelopeFromItems(dsn *Dsn, sdkInfo *SdkInfo, items ...*EnvelopeItem) (*Envelope, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot create envelope from empty items")
	}

	header := &EnvelopeHeader{
		EventID: GenerateEventID(),
		SentAt:  time.Now().UTC(),
		Sdk:     sdkInfo,
	}
	if dsn != nil {
		header.Dsn = dsn.String()
	}

	envelope := NewEnvelope(header)
	for _, item := range items {
		envelope.AddItem(item)
	}
	return envelope, nil
}
