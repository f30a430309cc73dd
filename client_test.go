package sentry

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go-ratelimit/internal/debuglog"
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
	"github.com/getsentry/sentry-go-ratelimit/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDsn = "https://key@sentry.io/1"

func setupClientTest(t *testing.T, options ClientOptions) (*Client, *testutils.MockTransport) {
	t.Helper()
	report.ClearRegistry()
	t.Cleanup(report.ClearRegistry)

	transport := &testutils.MockTransport{}
	if options.Dsn == "" {
		options.Dsn = testDsn
	}
	options.Transport = transport

	client, err := NewClient(options)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, transport
}

func newItem(itemType EnvelopeItemType) *EnvelopeItem {
	return NewEnvelopeItem(itemType, []byte(`{"message":"test"}`))
}

// sentReports returns the discarded events of every client report item the
// transport received.
func sentReports(t *testing.T, transport *testutils.MockTransport) []report.DiscardedEvent {
	t.Helper()
	var events []report.DiscardedEvent
	for _, envelope := range transport.GetSentEnvelopes() {
		for _, item := range envelope.Items {
			if item.Header.Type != EnvelopeItemTypeClientReport {
				continue
			}
			var r report.ClientReport
			require.NoError(t, json.Unmarshal(item.Payload, &r))
			events = append(events, r.DiscardedEvents...)
		}
	}
	return events
}

func TestNewClient(t *testing.T) {
	t.Run("invalid dsn", func(t *testing.T) {
		_, err := NewClient(ClientOptions{Dsn: "ftp://key@sentry.io/1"})
		assert.Error(t, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewClient(ClientOptions{Dsn: testDsn, QueueSize: -1})
		assert.ErrorContains(t, err, "queue_size")
	})

	t.Run("empty dsn uses noop transport", func(t *testing.T) {
		t.Setenv("SENTRY_DSN", "")
		client, err := NewClient(ClientOptions{})
		require.NoError(t, err)
		defer client.Close()

		assert.IsType(t, noopTransport{}, client.Transport)
		assert.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
		client.RecordLostEvent(DiscardReasonSampleRate, DataCategoryError, 1)
		assert.True(t, client.Flush(testutils.FlushTimeout()))
	})

	t.Run("dsn from environment", func(t *testing.T) {
		report.ClearRegistry()
		defer report.ClearRegistry()
		t.Setenv("SENTRY_DSN", testDsn)

		client, err := NewClient(ClientOptions{Transport: &testutils.MockTransport{}})
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, testDsn, client.Options().Dsn)
		assert.NotNil(t, report.GetAggregator(testDsn))
	})

	t.Run("debug writer", func(t *testing.T) {
		var buf bytes.Buffer
		t.Setenv("SENTRY_DSN", "")
		client, err := NewClient(ClientOptions{Debug: true, DebugWriter: &buf})
		require.NoError(t, err)
		defer client.Close()
		defer debuglog.SetOutput(io.Discard)

		assert.Contains(t, buf.String(), "empty DSN")
	})
}

func TestClient_CaptureAndFlush(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})

	require.True(t, client.Capture(newItem(EnvelopeItemTypeAttachment)))
	require.True(t, client.Capture(newItem(EnvelopeItemTypeTransaction)))
	require.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
	require.True(t, client.Capture(newItem(EnvelopeItemTypeSession)))
	assert.Equal(t, 4, client.Buffered())

	require.True(t, client.Flush(testutils.FlushTimeout()))
	assert.Equal(t, 0, client.Buffered())

	envelopes := transport.GetSentEnvelopes()
	require.Len(t, envelopes, 1)
	assert.Equal(t, []EnvelopeItemType{
		EnvelopeItemTypeEvent,
		EnvelopeItemTypeSession,
		EnvelopeItemTypeTransaction,
		EnvelopeItemTypeAttachment,
	}, transport.GetSentItemTypes(), "items must be sent in category priority order")

	header := envelopes[0].Header
	assert.Len(t, header.EventID, 32)
	assert.Equal(t, SDKIdentifier, header.Sdk.Name)
	assert.Equal(t, testDsn, header.Dsn)
	assert.Equal(t, int64(1), transport.GetFlushCount())
}

func TestClient_CaptureRejectsInvalidItems(t *testing.T) {
	client, _ := setupClientTest(t, ClientOptions{})

	assert.False(t, client.Capture(nil))
	assert.False(t, client.Capture(&EnvelopeItem{}))
	assert.Equal(t, 0, client.Buffered())
}

func TestClient_CaptureRateLimited(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})
	transport.SetRateLimited(DataCategoryError, true)

	assert.True(t, client.IsRateLimited(DataCategoryError))
	assert.False(t, client.IsRateLimited(DataCategoryTransaction))
	assert.False(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
	assert.True(t, client.Capture(newItem(EnvelopeItemTypeTransaction)))

	require.True(t, client.Flush(testutils.FlushTimeout()))
	assert.Equal(t, []EnvelopeItemType{
		EnvelopeItemTypeTransaction,
		EnvelopeItemTypeClientReport,
	}, transport.GetSentItemTypes())
	assert.Equal(t, []report.DiscardedEvent{
		{Reason: DiscardReasonRateLimitBackoff, Category: DataCategoryError, Quantity: 1},
	}, sentReports(t, transport))
}

func TestClient_CaptureRateLimitedAll(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})
	transport.SetRateLimited(DataCategoryAll, true)

	for _, itemType := range []EnvelopeItemType{EnvelopeItemTypeSession, EnvelopeItemTypeUserReport} {
		assert.False(t, client.Capture(newItem(itemType)), itemType)
	}
}

func TestClient_BufferOverflow(t *testing.T) {
	t.Run("drop oldest", func(t *testing.T) {
		client, transport := setupClientTest(t, ClientOptions{BufferSize: 2})

		for i := 0; i < 3; i++ {
			assert.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
		}
		assert.Equal(t, 2, client.Buffered())

		require.True(t, client.Flush(testutils.FlushTimeout()))
		assert.Equal(t, []EnvelopeItemType{
			EnvelopeItemTypeEvent,
			EnvelopeItemTypeEvent,
			EnvelopeItemTypeClientReport,
		}, transport.GetSentItemTypes())
		assert.Equal(t, []report.DiscardedEvent{
			{Reason: DiscardReasonBufferOverflow, Category: DataCategoryError, Quantity: 1},
		}, sentReports(t, transport))
	})

	t.Run("drop newest", func(t *testing.T) {
		client, transport := setupClientTest(t, ClientOptions{BufferSize: 1, DropNewest: true})

		first := newItem(EnvelopeItemTypeUserReport)
		assert.True(t, client.Capture(first))
		assert.False(t, client.Capture(newItem(EnvelopeItemTypeUserReport)))

		require.True(t, client.Flush(testutils.FlushTimeout()))
		envelopes := transport.GetSentEnvelopes()
		require.Len(t, envelopes, 2)
		assert.Same(t, first, envelopes[0].Items[0])
		assert.Equal(t, []report.DiscardedEvent{
			{Reason: DiscardReasonBufferOverflow, Category: DataCategoryUserFeedback, Quantity: 1},
		}, sentReports(t, transport))
	})
}

func TestClient_FlushSplitsLargeBatches(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{BufferSize: 2 * maxEnvelopeItems})

	for i := 0; i < maxEnvelopeItems+1; i++ {
		require.True(t, client.Capture(newItem(EnvelopeItemTypeTransaction)))
	}
	require.True(t, client.Flush(testutils.FlushTimeout()))

	envelopes := transport.GetSentEnvelopes()
	require.Len(t, envelopes, 2)
	assert.Len(t, envelopes[0].Items, maxEnvelopeItems)
	assert.Len(t, envelopes[1].Items, 1)
}

func TestClient_RecordLostEvent(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})

	client.RecordLostEvent(DiscardReasonSampleRate, DataCategoryTransaction, 3)
	client.RecordLostEvent(DiscardReasonBeforeSend, DataCategoryError, 1)
	client.RecordLostEvent(DiscardReasonBeforeSend, DataCategoryAll, 1)
	client.RecordLostEvent(DiscardReasonBeforeSend, DataCategoryError, 0)

	require.True(t, client.Flush(testutils.FlushTimeout()))
	assert.Equal(t, []report.DiscardedEvent{
		{Reason: DiscardReasonBeforeSend, Category: DataCategoryError, Quantity: 1},
		{Reason: DiscardReasonSampleRate, Category: DataCategoryTransaction, Quantity: 3},
	}, sentReports(t, transport))

	// The report was taken, so a second flush sends nothing.
	require.True(t, client.Flush(testutils.FlushTimeout()))
	assert.Len(t, transport.GetSentEnvelopes(), 1)
}

func TestClient_DisableClientReports(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{DisableClientReports: true})

	client.RecordLostEvent(DiscardReasonSampleRate, DataCategoryTransaction, 3)
	require.True(t, client.Flush(testutils.FlushTimeout()))
	assert.Empty(t, transport.GetSentEnvelopes())
}

func TestClient_SendEnvelope(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})

	envelope := &Envelope{}
	envelope.AddItem(newItem(EnvelopeItemTypeEvent))
	require.NoError(t, client.SendEnvelope(envelope))
	require.NoError(t, client.SendEnvelope(nil))

	require.NotNil(t, envelope.Header)
	assert.Len(t, envelope.Header.EventID, 32)
	assert.Equal(t, SDKVersion, envelope.Header.Sdk.Version)
	assert.Len(t, transport.GetSentEnvelopes(), 1)

	header := &protocol.EnvelopeHeader{EventID: "custom"}
	envelope = protocol.NewEnvelope(header)
	envelope.AddItem(newItem(EnvelopeItemTypeEvent))
	require.NoError(t, client.SendEnvelope(envelope))
	assert.Same(t, header, envelope.Header)
}

func TestClient_Close(t *testing.T) {
	client, transport := setupClientTest(t, ClientOptions{})
	require.NotNil(t, report.GetAggregator(testDsn))

	client.Close()
	client.Close()

	assert.True(t, transport.IsClosed())
	assert.Nil(t, report.GetAggregator(testDsn))
}

// envelopeServer is a fake Sentry ingestion endpoint.
type envelopeServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []string
}

func newEnvelopeServer(t *testing.T, handler func(w http.ResponseWriter)) *envelopeServer {
	t.Helper()
	s := &envelopeServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()
		handler(w)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *envelopeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

func TestClient_RateLimitedByServer(t *testing.T) {
	report.ClearRegistry()
	defer report.ClearRegistry()

	server := newEnvelopeServer(t, func(w http.ResponseWriter) {
		w.Header().Set("X-Sentry-Rate-Limits", "60:transaction:organization:quota_exceeded")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	dsn := strings.Replace(server.URL, "//", "//key@", 1) + "/1"

	client, err := NewClient(ClientOptions{Dsn: dsn})
	require.NoError(t, err)
	defer client.Close()

	require.True(t, client.Capture(newItem(EnvelopeItemTypeTransaction)))
	require.True(t, client.Flush(testutils.FlushTimeout()))

	assert.True(t, client.IsRateLimited(DataCategoryTransaction))
	assert.False(t, client.IsRateLimited(DataCategoryError))
	assert.False(t, client.Capture(newItem(EnvelopeItemTypeTransaction)))

	require.True(t, client.Flush(testutils.FlushTimeout()))

	bodies := server.received()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `{"type":"transaction"`)
	assert.Contains(t, bodies[1], `{"type":"client_report"`)
	assert.Contains(t, bodies[1], `{"reason":"ratelimit_backoff","category":"transaction","quantity":1}`)
}

func TestClient_ClientReportUnderRateLimits(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		report.ClearRegistry()
		defer report.ClearRegistry()

		server := newEnvelopeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("X-Sentry-Rate-Limits", "60:default")
			w.WriteHeader(http.StatusOK)
		})
		dsn := strings.Replace(server.URL, "//", "//key@", 1) + "/1"

		client, err := NewClient(ClientOptions{Dsn: dsn})
		require.NoError(t, err)
		defer client.Close()

		require.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
		require.True(t, client.Flush(testutils.FlushTimeout()))
		require.True(t, client.IsRateLimited(DataCategoryDefault))
		require.False(t, client.IsRateLimited(DataCategoryError))

		client.RecordLostEvent(DiscardReasonSampleRate, DataCategoryError, 3)
		require.True(t, client.Flush(testutils.FlushTimeout()))

		bodies := server.received()
		require.Len(t, bodies, 2)
		assert.Contains(t, bodies[1], `{"reason":"sample_rate","category":"error","quantity":3}`)
		assert.Nil(t, report.GetAggregator(dsn).TakeReport())
	})

	t.Run("all limited", func(t *testing.T) {
		report.ClearRegistry()
		defer report.ClearRegistry()

		server := newEnvelopeServer(t, func(w http.ResponseWriter) {
			w.Header().Set("X-Sentry-Rate-Limits", "60::organization")
			w.WriteHeader(http.StatusOK)
		})
		dsn := strings.Replace(server.URL, "//", "//key@", 1) + "/1"

		client, err := NewClient(ClientOptions{Dsn: dsn})
		require.NoError(t, err)
		defer client.Close()

		require.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
		require.True(t, client.Flush(testutils.FlushTimeout()))
		require.True(t, client.IsRateLimited(DataCategoryAll))

		client.RecordLostEvent(DiscardReasonSampleRate, DataCategoryError, 3)
		require.True(t, client.Flush(testutils.FlushTimeout()))

		assert.Len(t, server.received(), 1)
		r := report.GetAggregator(dsn).TakeReport()
		require.NotNil(t, r, "outcomes must stay pending while everything is limited")
		assert.Equal(t, []report.DiscardedEvent{
			{Reason: DiscardReasonSampleRate, Category: DataCategoryError, Quantity: 3},
		}, r.DiscardedEvents)
	})
}

func TestClient_FlushWithSendErrors(t *testing.T) {
	for _, err := range []error{ErrTransportQueueFull, ErrTransportClosed} {
		t.Run(err.Error(), func(t *testing.T) {
			client, transport := setupClientTest(t, ClientOptions{})
			transport.SetSendError(err)

			require.True(t, client.Capture(newItem(EnvelopeItemTypeEvent)))
			require.True(t, client.Flush(testutils.FlushTimeout()))
			assert.Equal(t, 0, client.Buffered())
			assert.Empty(t, transport.GetSentEnvelopes())
		})
	}
}
