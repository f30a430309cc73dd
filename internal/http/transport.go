package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go-ratelimit/internal/debuglog"
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
	"github.com/getsentry/sentry-go-ratelimit/internal/util"
)

const (
	apiVersion = 7

	defaultSdkName    = "sentry.go"
	defaultSdkVersion = "unknown"

	defaultTimeout      = 30 * time.Second
	defaultWorkerCount  = 1
	defaultQueueSize    = 1000
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
	flushPollInterval   = 10 * time.Millisecond
)

var (
	// ErrTransportQueueFull is returned when the transport queue is full,
	// providing backpressure signal to the caller.
	ErrTransportQueueFull = errors.New("transport queue full")

	// ErrTransportClosed is returned when trying to send on a closed transport.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrTransportNotConfigured is returned when the transport has no valid DSN.
	ErrTransportNotConfigured = errors.New("transport not configured")
)

// Transport delivers envelopes to Sentry while honoring rate limits.
type Transport interface {
	SendEnvelope(envelope *protocol.Envelope) error
	IsRateLimited(category ratelimit.Category) bool
	Flush(timeout time.Duration) bool
	FlushWithContext(ctx context.Context) bool
	Close()
}

// TransportOptions contains the configuration needed by the internal HTTP transports.
type TransportOptions struct {
	Dsn           string
	HTTPClient    *http.Client
	HTTPTransport http.RoundTripper
	HTTPProxy     string
	HTTPSProxy    string
	CaCerts       *x509.CertPool

	// Timeout is the HTTP request timeout. Defaults to 30 seconds.
	Timeout time.Duration
	// QueueSize is the capacity of the AsyncTransport send queue.
	QueueSize int
	// WorkerCount is the number of AsyncTransport workers.
	WorkerCount int
	// MaxRetries is how often AsyncTransport retries network and server errors.
	// Negative values disable retries.
	MaxRetries int
	// RetryBackoff is the initial delay between retries, doubled on each attempt.
	RetryBackoff time.Duration
}

func getProxyConfig(options TransportOptions) func(*http.Request) (*url.URL, error) {
	if options.HTTPSProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPSProxy)
		}
	}

	if options.HTTPProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPProxy)
		}
	}

	return http.ProxyFromEnvironment
}

func getTLSConfig(options TransportOptions) *tls.Config {
	if options.CaCerts != nil {
		return &tls.Config{
			RootCAs:    options.CaCerts,
			MinVersion: tls.VersionTLS12,
		}
	}

	return nil
}

func newHTTPClient(options TransportOptions, timeout time.Duration) *http.Client {
	if options.HTTPClient != nil {
		return options.HTTPClient
	}
	transport := options.HTTPTransport
	if transport == nil {
		transport = &http.Transport{
			Proxy:           getProxyConfig(options),
			TLSClientConfig: getTLSConfig(options),
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func getSentryRequestFromEnvelope(ctx context.Context, dsn *protocol.Dsn, envelope *protocol.Envelope) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var buf bytes.Buffer
	if _, err := envelope.WriteTo(&buf); err != nil {
		return nil, err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, dsn.GetAPIURL().String(), &buf)
	if err != nil {
		return nil, err
	}

	sdkName, sdkVersion := defaultSdkName, defaultSdkVersion
	if envelope.Header != nil && envelope.Header.Sdk != nil {
		if envelope.Header.Sdk.Name != "" {
			sdkName = envelope.Header.Sdk.Name
		}
		if envelope.Header.Sdk.Version != "" {
			sdkVersion = envelope.Header.Sdk.Version
		}
	}

	r.Header.Set("User-Agent", fmt.Sprintf("%s/%s", sdkName, sdkVersion))
	r.Header.Set("Content-Type", "application/x-sentry-envelope")

	auth := fmt.Sprintf("Sentry sentry_version=%d, "+
		"sentry_client=%s/%s, sentry_key=%s", apiVersion, sdkName, sdkVersion, dsn.GetPublicKey())

	// The key sentry_secret is effectively deprecated and no longer needs to be set.
	// However, since it was required in older self-hosted versions,
	// it should still be passed through to Sentry if set.
	if dsn.GetSecretKey() != "" {
		auth = fmt.Sprintf("%s, sentry_secret=%s", auth, dsn.GetSecretKey())
	}

	r.Header.Set("X-Sentry-Auth", auth)
	return r, nil
}

// limiter holds the rate limits announced by the server. Outcomes for
// everything the transport drops go to recorder, and pending client reports
// are taken from reports. Both are the aggregator registered for the DSN.
type limiter struct {
	mu       sync.RWMutex
	limits   ratelimit.Map
	recorder report.ClientReportRecorder
	reports  report.ClientReportProvider
}

func newLimiter(dsn string) *limiter {
	aggregator := report.GetAggregator(dsn)
	return &limiter{
		limits:   make(ratelimit.Map),
		recorder: aggregator,
		reports:  aggregator,
	}
}

func (l *limiter) isRateLimited(c ratelimit.Category) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits.IsRateLimited(c)
}

func (l *limiter) update(response *http.Response) {
	limits := ratelimit.FromResponse(response)
	if len(limits) == 0 {
		return
	}
	l.mu.Lock()
	l.limits.Merge(limits)
	l.mu.Unlock()
	for c, d := range limits {
		debuglog.Printf("Rate limited for category %q until %v", c.Label(), d)
	}
}

// filter returns a copy of envelope without the items whose category is
// currently rate limited, recording a ratelimit_backoff outcome for each. It
// returns nil when nothing is left to send.
//
// Client reports are only held back by a limit on CategoryAll. A dropped
// report goes back to the aggregator so its outcomes are not lost.
func (l *limiter) filter(envelope *protocol.Envelope) *protocol.Envelope {
	if envelope == nil {
		return nil
	}
	l.mu.RLock()
	limits := l.limits
	filtered := envelope.Filter(func(item *protocol.EnvelopeItem) bool {
		if isClientReport(item) {
			return !limits.IsRateLimited(ratelimit.CategoryAll)
		}
		return !limits.IsRateLimited(item.Category())
	}, func(item *protocol.EnvelopeItem) {
		if isClientReport(item) {
			debuglog.Printf("Holding back client report until %v", limits.Deadline(ratelimit.CategoryAll))
			l.reports.RestoreItem(item)
			return
		}
		debuglog.Printf("Dropping %q item, category %q is rate limited until %v",
			item.Header.Type, item.Category().Label(), limits.Deadline(item.Category()))
		l.recorder.RecordItem(report.ReasonRateLimitBackoff, item)
	})
	l.mu.RUnlock()

	if len(filtered.Items) == 0 {
		return nil
	}
	return filtered
}

func isClientReport(item *protocol.EnvelopeItem) bool {
	return item.Header != nil && item.Header.Type == protocol.EnvelopeItemTypeClientReport
}

// recordFailure records the outcome of a request that did not deliver the
// envelope. Requests answered with 429 are counted by the server. Statuses
// below 400, such as a redirect the HTTP client did not follow, are not
// counted either, since the server may have accepted the envelope.
func (l *limiter) recordFailure(envelope *protocol.Envelope, response *http.Response, err error) {
	switch {
	case err != nil:
		l.recorder.RecordForEnvelope(report.ReasonNetworkError, envelope)
	case response == nil:
	case response.StatusCode == http.StatusTooManyRequests:
	case response.StatusCode >= 400:
		l.recorder.RecordForEnvelope(report.ReasonSendError, envelope)
	}
}

func drainAndClose(response *http.Response) error {
	if _, err := io.CopyN(io.Discard, response.Body, util.MaxDrainResponseBytes); err != nil && !errors.Is(err, io.EOF) {
		debuglog.Printf("Failed to drain response body: %v", err)
	}
	return response.Body.Close()
}

// ================================
// SyncTransport
// ================================

// SyncTransport is a blocking implementation of Transport.
//
// Clients using this transport will send requests to Sentry sequentially and
// block until a response is returned.
//
// The blocking behavior is useful in a limited set of use cases. For example,
// use it when deploying code to a Function as a Service ("Serverless")
// platform, where any work happening in a background goroutine is not
// guaranteed to execute.
//
// For most cases, prefer AsyncTransport.
type SyncTransport struct {
	*limiter

	dsn    *protocol.Dsn
	client *http.Client

	// HTTP Client request timeout. Defaults to 30 seconds.
	Timeout time.Duration
}

// NewSyncTransport returns a new instance of SyncTransport configured with the given options.
func NewSyncTransport(options TransportOptions) *SyncTransport {
	transport := &SyncTransport{
		limiter: newLimiter(options.Dsn),
		Timeout: defaultTimeout,
	}
	if options.Timeout > 0 {
		transport.Timeout = options.Timeout
	}

	dsn, err := protocol.NewDsn(options.Dsn)
	if err != nil {
		debuglog.Printf("%v\n", err)
		return transport
	}
	transport.dsn = dsn
	transport.client = newHTTPClient(options, transport.Timeout)

	return transport
}

var _ Transport = (*SyncTransport)(nil)

// SendEnvelope assembles a new packet out of an Envelope and sends it to the remote server.
func (t *SyncTransport) SendEnvelope(envelope *protocol.Envelope) error {
	return t.SendEnvelopeWithContext(context.Background(), envelope)
}

// SendEnvelopeWithContext drops rate limited items from the envelope, attaches
// any pending client report and sends the rest to the remote server.
func (t *SyncTransport) SendEnvelopeWithContext(ctx context.Context, envelope *protocol.Envelope) error {
	if t.dsn == nil {
		return nil
	}

	envelope = t.filter(envelope)
	if envelope == nil {
		return nil
	}
	t.reports.AttachToEnvelope(envelope)

	request, err := getSentryRequestFromEnvelope(ctx, t.dsn, envelope)
	if err != nil {
		debuglog.Printf("There was an issue creating the request: %v", err)
		t.recorder.RecordForEnvelope(report.ReasonInternalError, envelope)
		return err
	}
	response, err := t.client.Do(request)
	if err != nil {
		debuglog.Printf("There was an issue with sending an event: %v", err)
		t.recordFailure(envelope, nil, err)
		return err
	}
	if !util.HandleHTTPResponse(response, util.EnvelopeIdentifier(envelope)) {
		t.recordFailure(envelope, response, nil)
	}

	t.update(response)

	// Drain body up to a limit and close it, allowing the
	// transport to reuse TCP connections.
	return drainAndClose(response)
}

// IsRateLimited checks if a specific category is currently rate limited.
func (t *SyncTransport) IsRateLimited(category ratelimit.Category) bool {
	return t.isRateLimited(category)
}

// Flush is a no-op for SyncTransport. It always returns true immediately.
func (t *SyncTransport) Flush(_ time.Duration) bool {
	return true
}

// FlushWithContext is a no-op for SyncTransport. It always returns true immediately.
func (t *SyncTransport) FlushWithContext(_ context.Context) bool {
	return true
}

// Close is a no-op for SyncTransport.
func (t *SyncTransport) Close() {}

// ================================
// AsyncTransport
// ================================

// Worker represents a single HTTP worker that processes envelopes.
type Worker struct {
	id        int
	transport *AsyncTransport
	done      chan struct{}
	wg        *sync.WaitGroup
}

// AsyncTransport uses a bounded worker pool for controlled concurrency and provides
// backpressure when the queue is full.
type AsyncTransport struct {
	*limiter

	dsn    *protocol.Dsn
	client *http.Client

	sendQueue    chan *protocol.Envelope
	workers      []*Worker
	workerCount  int
	maxRetries   int
	retryBackoff time.Duration
	timeout      time.Duration

	closeMu sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool

	pending      atomic.Int64
	sentCount    atomic.Int64
	droppedCount atomic.Int64
	errorCount   atomic.Int64

	startOnce sync.Once
}

// NewAsyncTransport returns an AsyncTransport configured with the given
// options. Call Start before sending.
func NewAsyncTransport(options TransportOptions) *AsyncTransport {
	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workerCount := options.WorkerCount
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	maxRetries := options.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	retryBackoff := options.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &AsyncTransport{
		limiter:      newLimiter(options.Dsn),
		sendQueue:    make(chan *protocol.Envelope, queueSize),
		workers:      make([]*Worker, workerCount),
		workerCount:  workerCount,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		timeout:      timeout,
		done:         make(chan struct{}),
	}

	dsn, err := protocol.NewDsn(options.Dsn)
	if err != nil {
		debuglog.Printf("%v\n", err)
		return transport
	}
	transport.dsn = dsn
	transport.client = newHTTPClient(options, timeout)

	return transport
}

var _ Transport = (*AsyncTransport)(nil)

// Start starts the worker goroutines. This method can only be called once.
func (t *AsyncTransport) Start() {
	t.startOnce.Do(func() {
		t.startWorkers()
	})
}

// SendEnvelope drops rate limited items and queues the rest for delivery.
// It returns ErrTransportQueueFull when the queue has no room.
func (t *AsyncTransport) SendEnvelope(envelope *protocol.Envelope) error {
	if t.dsn == nil {
		return ErrTransportNotConfigured
	}

	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return ErrTransportClosed
	}

	envelope = t.filter(envelope)
	if envelope == nil {
		return nil
	}

	t.pending.Add(1)
	select {
	case t.sendQueue <- envelope:
		return nil
	default:
		t.pending.Add(-1)
		t.droppedCount.Add(1)
		t.recorder.RecordForEnvelope(report.ReasonQueueOverflow, envelope)
		return ErrTransportQueueFull
	}
}

// Flush waits until every queued envelope has been processed or the timeout
// expires.
func (t *AsyncTransport) Flush(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.FlushWithContext(ctx)
}

// FlushWithContext waits until every queued envelope has been processed or
// ctx is done.
func (t *AsyncTransport) FlushWithContext(ctx context.Context) bool {
	if t.dsn == nil {
		return true
	}

	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for {
		if t.pending.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Close stops the workers. Envelopes still queued are discarded.
func (t *AsyncTransport) Close() {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return
	}
	t.closed = true
	close(t.done)
	close(t.sendQueue)
	t.closeMu.Unlock()

	t.wg.Wait()
	for range t.sendQueue {
		t.pending.Add(-1)
	}
}

// IsRateLimited checks if a specific category is currently rate limited.
func (t *AsyncTransport) IsRateLimited(category ratelimit.Category) bool {
	return t.isRateLimited(category)
}

// Stats returns how many envelopes were sent, dropped on a full queue, and
// given up on after retries.
func (t *AsyncTransport) Stats() (sent, dropped, failed int64) {
	return t.sentCount.Load(), t.droppedCount.Load(), t.errorCount.Load()
}

func (t *AsyncTransport) startWorkers() {
	for i := 0; i < t.workerCount; i++ {
		worker := &Worker{
			id:        i,
			transport: t,
			done:      t.done,
			wg:        &t.wg,
		}
		t.workers[i] = worker

		t.wg.Add(1)
		go worker.run()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case envelope, open := <-w.transport.sendQueue:
			if !open {
				return
			}
			w.processEnvelope(envelope)
			w.transport.pending.Add(-1)
		}
	}
}

// sendResult is the outcome of a single delivery attempt.
type sendResult int

const (
	sendOK sendResult = iota
	sendSkipped
	sendRetry
	sendFailed
)

func (w *Worker) processEnvelope(envelope *protocol.Envelope) {
	t := w.transport
	backoff := t.retryBackoff

	var response *http.Response
	var err error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-w.done:
				return
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		// Limits may have changed while the envelope waited in the queue.
		envelope = t.filter(envelope)
		if envelope == nil {
			return
		}

		response, err = w.send(envelope, attempt == 0)
		switch w.classify(response, err) {
		case sendOK:
			t.sentCount.Add(1)
			return
		case sendSkipped:
			return
		case sendFailed:
			t.errorCount.Add(1)
			t.recordFailure(envelope, response, err)
			return
		case sendRetry:
		}
	}

	t.errorCount.Add(1)
	debuglog.Printf("Failed to send envelope after %d attempts", t.maxRetries+1)
	t.recordFailure(envelope, response, err)
}

// send performs one HTTP request. Only the first attempt takes the pending
// client report so that retries do not duplicate it.
func (w *Worker) send(envelope *protocol.Envelope, attachReport bool) (*http.Response, error) {
	t := w.transport
	if attachReport {
		t.reports.AttachToEnvelope(envelope)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	request, err := getSentryRequestFromEnvelope(ctx, t.dsn, envelope)
	if err != nil {
		debuglog.Printf("Failed to create request from envelope: %v", err)
		t.recorder.RecordForEnvelope(report.ReasonInternalError, envelope)
		return nil, nil
	}

	response, err := t.client.Do(request)
	if err != nil {
		debuglog.Printf("HTTP request failed: %v", err)
		return nil, err
	}
	defer func() { _ = drainAndClose(response) }()

	util.HandleHTTPResponse(response, util.EnvelopeIdentifier(envelope))
	t.update(response)
	return response, nil
}

func (w *Worker) classify(response *http.Response, err error) sendResult {
	switch {
	case err != nil:
		return sendRetry
	case response == nil:
		return sendSkipped
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return sendOK
	case response.StatusCode == http.StatusTooManyRequests:
		return sendFailed
	case response.StatusCode >= 500:
		debuglog.Printf("Server error %d - will retry", response.StatusCode)
		return sendRetry
	default:
		return sendFailed
	}
}
