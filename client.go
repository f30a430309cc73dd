package sentry

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/debuglog"
	httpinternal "github.com/getsentry/sentry-go-ratelimit/internal/http"
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
	"github.com/getsentry/sentry-go-ratelimit/internal/telemetry"
)

// The identifier of the SDK.
const SDKIdentifier = "sentry.go.ratelimit"

// The version of the SDK.
const SDKVersion = "0.1.0"

// maxEnvelopeItems is the largest number of buffered items sent in one
// envelope on Flush.
const maxEnvelopeItems = 100

// Transport is used by the Client to deliver envelopes to Sentry.
type Transport = httpinternal.Transport

var (
	// ErrTransportQueueFull is returned by Client.SendEnvelope when the
	// transport has no room for the envelope.
	ErrTransportQueueFull = httpinternal.ErrTransportQueueFull
	// ErrTransportClosed is returned after Client.Close.
	ErrTransportClosed = httpinternal.ErrTransportClosed
)

// Client buffers envelope items per data category, sends them to Sentry
// while honoring server rate limits, and reports what it had to drop.
type Client struct {
	options   ClientOptions
	dsn       *protocol.Dsn
	sdk       *protocol.SdkInfo
	recorder  *report.Aggregator
	buffers   *telemetry.Buffers[*protocol.EnvelopeItem]
	Transport Transport

	closeOnce sync.Once
}

// NewClient creates and returns an instance of Client configured using
// ClientOptions.
//
// Most users will not create clients directly. Instead, they configure a
// single client with LoadOptions and share it.
func NewClient(options ClientOptions) (*Client, error) {
	if options.Dsn == "" {
		options.Dsn = os.Getenv("SENTRY_DSN")
	}
	if !options.Debug {
		debug, _ := strconv.ParseBool(os.Getenv("SENTRY_DEBUG"))
		options.Debug = debug
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	if options.Debug {
		debugWriter := options.DebugWriter
		if debugWriter == nil {
			debugWriter = os.Stderr
		}
		debuglog.SetOutput(debugWriter)
	}

	var dsn *protocol.Dsn
	if options.Dsn == "" {
		debuglog.Println("Sentry client initialized with an empty DSN. Using noopTransport. No events will be delivered.")
	} else {
		var err error
		dsn, err = protocol.NewDsn(options.Dsn)
		if err != nil {
			return nil, err
		}
	}

	client := Client{
		options: options,
		dsn:     dsn,
		sdk: &protocol.SdkInfo{
			Name:    SDKIdentifier,
			Version: SDKVersion,
		},
	}

	// The aggregator must exist before the transport looks it up.
	client.recorder = report.GetOrCreateAggregator(options.Dsn)
	client.recorder.SetEnabled(!options.DisableClientReports)

	policy := telemetry.OverflowPolicyDropOldest
	if options.DropNewest {
		policy = telemetry.OverflowPolicyDropNewest
	}
	client.buffers = telemetry.NewBuffers[*protocol.EnvelopeItem](options.BufferSize, policy, client.onBufferDrop)

	client.setupTransport()

	return &client, nil
}

func (client *Client) setupTransport() {
	opts := client.options
	transport := opts.Transport

	if transport == nil {
		if opts.Dsn == "" {
			transport = noopTransport{}
		} else {
			async := httpinternal.NewAsyncTransport(httpinternal.TransportOptions{
				Dsn:           opts.Dsn,
				HTTPClient:    opts.HTTPClient,
				HTTPTransport: opts.HTTPTransport,
				HTTPProxy:     opts.HTTPProxy,
				HTTPSProxy:    opts.HTTPSProxy,
				CaCerts:       opts.CaCerts,
				Timeout:       opts.SendTimeout,
				QueueSize:     opts.QueueSize,
				MaxRetries:    opts.MaxRetries,
			})
			async.Start()
			transport = async
		}
	}

	client.Transport = transport
}

func (client *Client) onBufferDrop(_ DataCategory, item *protocol.EnvelopeItem, reason telemetry.DropReason) {
	debuglog.Printf("Dropping %q item: %s", item.Header.Type, reason)
	client.recorder.RecordItem(report.ReasonBufferOverflow, item)
}

// Options return ClientOptions for the current Client.
func (client *Client) Options() ClientOptions {
	// Note: internally, consider using `client.options` instead of `client.Options()` to avoid copying the object each time.
	return client.options
}

// Capture buffers item until the next Flush. Items whose category is
// currently rate limited are dropped right away. It reports whether the item
// was buffered.
func (client *Client) Capture(item *EnvelopeItem) bool {
	if item == nil || item.Header == nil {
		return false
	}

	category := item.Category()
	if client.Transport.IsRateLimited(category) {
		debuglog.Printf("Dropping %q item, category %q is rate limited", item.Header.Type, category.Label())
		client.recorder.RecordItem(report.ReasonRateLimitBackoff, item)
		return false
	}
	return client.buffers.Add(category, item)
}

// SendEnvelope hands envelope to the transport right away. A missing header
// is filled in with a fresh event ID.
func (client *Client) SendEnvelope(envelope *Envelope) error {
	if envelope == nil {
		return nil
	}
	if envelope.Header == nil {
		envelope.Header = &protocol.EnvelopeHeader{
			EventID: protocol.GenerateEventID(),
			SentAt:  time.Now().UTC(),
			Sdk:     client.sdk,
		}
		if client.dsn != nil {
			envelope.Header.Dsn = client.dsn.String()
		}
	}
	return client.Transport.SendEnvelope(envelope)
}

// RecordLostEvent records that quantity payloads of category were dropped
// for reason. Outcomes are sent to Sentry in the next client report.
func (client *Client) RecordLostEvent(reason DiscardReason, category DataCategory, quantity int) {
	client.recorder.Record(reason, category, int64(quantity))
}

// IsRateLimited reports whether payloads of category are currently rejected
// by the server.
func (client *Client) IsRateLimited(category DataCategory) bool {
	return client.Transport.IsRateLimited(category)
}

// Buffered returns the number of captured items waiting for Flush.
func (client *Client) Buffered() int {
	return client.buffers.Len()
}

// Flush sends every buffered item and any pending client report, then waits
// until the transport has delivered them or the timeout is reached. It
// returns false if the timeout was reached.
func (client *Client) Flush(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.FlushWithContext(ctx)
}

// FlushWithContext is like Flush but waits until ctx is done.
func (client *Client) FlushWithContext(ctx context.Context) bool {
	client.sendBuffered()
	client.sendClientReport()
	return client.Transport.FlushWithContext(ctx)
}

// Close stops the transport and unregisters the client report aggregator of
// the DSN. Buffered items are not sent; call Flush first.
func (client *Client) Close() {
	client.closeOnce.Do(func() {
		client.Transport.Close()
		report.UnregisterAggregator(client.options.Dsn)
	})
}

// sendBuffered empties the category buffers, most important category first,
// into envelopes of at most maxEnvelopeItems items.
func (client *Client) sendBuffered() {
	for batch := client.buffers.PollBatch(maxEnvelopeItems); len(batch) > 0; batch = client.buffers.PollBatch(maxEnvelopeItems) {
		envelope, err := protocol.NewEnvelopeFromItems(client.dsn, client.sdk, batch...)
		if err != nil {
			debuglog.Printf("Failed to create envelope: %v", err)
			continue
		}
		client.send(envelope)
	}
}

// sendClientReport sends the pending outcomes in an envelope of their own.
// While everything is rate limited they stay pending.
func (client *Client) sendClientReport() {
	if client.Transport.IsRateLimited(DataCategoryAll) {
		return
	}
	r := client.recorder.TakeReport()
	if r == nil {
		return
	}
	item, err := r.ToEnvelopeItem()
	if err != nil {
		debuglog.Printf("Failed to serialize client report: %v", err)
		return
	}
	envelope, err := protocol.NewEnvelopeFromItems(client.dsn, client.sdk, item)
	if err != nil {
		debuglog.Printf("Failed to create envelope: %v", err)
		return
	}
	client.send(envelope)
}

func (client *Client) send(envelope *protocol.Envelope) {
	err := client.Transport.SendEnvelope(envelope)
	switch {
	case err == nil, errors.Is(err, ErrTransportQueueFull):
		// Queue overflows are recorded by the transport.
	default:
		debuglog.Printf("Failed to send envelope: %v", err)
	}
}

type noopTransport struct{}

var _ Transport = noopTransport{}

func (noopTransport) SendEnvelope(*protocol.Envelope) error {
	debuglog.Println("Envelope dropped due to noopTransport usage.")
	return nil
}

func (noopTransport) IsRateLimited(DataCategory) bool {
	return false
}

func (noopTransport) Flush(time.Duration) bool {
	return true
}

func (noopTransport) FlushWithContext(context.Context) bool {
	return true
}

func (noopTransport) Close() {}
