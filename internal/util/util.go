package util

import (
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go-ratelimit/internal/debuglog"
	"github.com/getsentry/sentry-go-ratelimit/internal/protocol"
)

// MaxDrainResponseBytes is the maximum number of bytes that transport
// implementations will read from response bodies when draining them.
//
// Sentry's ingestion API responses are typically short and the SDK doesn't need
// the contents of the response body. However, the net/http HTTP client requires
// response bodies to be fully drained (and closed) for TCP keep-alive to work.
const MaxDrainResponseBytes = 16 << 10

// HandleHTTPResponse is a helper method that reads the HTTP response and handles debug output.
func HandleHTTPResponse(response *http.Response, identifier string) bool {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return true
	}

	if response.StatusCode >= 400 && response.StatusCode <= 599 {
		body, err := io.ReadAll(io.LimitReader(response.Body, MaxDrainResponseBytes))
		if err != nil {
			debuglog.Printf("Error while reading response body: %v", err)
			return false
		}

		switch {
		case response.StatusCode == http.StatusTooManyRequests:
			debuglog.Printf("Sending %s was rate limited: %s", identifier, string(body))
		case response.StatusCode == http.StatusRequestEntityTooLarge:
			debuglog.Printf("Sending %s failed because the request was too large: %s", identifier, string(body))
		case response.StatusCode >= 500:
			debuglog.Printf("Sending %s failed with server error %d: %s", identifier, response.StatusCode, string(body))
		default:
			debuglog.Printf("Sending %s failed with client error %d: %s", identifier, response.StatusCode, string(body))
		}
		return false
	}

	debuglog.Printf("Unexpected status code %d for %s", response.StatusCode, identifier)
	return false
}

// EnvelopeIdentifier returns a human-readable identifier for the envelope to be used in log messages.
// Format: "<description> [<event-id>]".
func EnvelopeIdentifier(envelope *protocol.Envelope) string {
	if envelope == nil || len(envelope.Items) == 0 {
		return "empty envelope"
	}

	var payloads int
	for _, item := range envelope.Items {
		if item != nil && item.Header != nil && item.Header.Type != protocol.EnvelopeItemTypeClientReport {
			payloads++
		}
	}

	var description string
	switch {
	case payloads == 0:
		description = "client report"
	case payloads == 1:
		description = fmt.Sprintf("%s item", envelope.Items[0].Category().Label())
	default:
		description = fmt.Sprintf("%d items", payloads)
	}

	if envelope.Header == nil || envelope.Header.EventID == "" {
		return description
	}
	return fmt.Sprintf("%s [%s]", description, envelope.Header.EventID)
}
